package app

import (
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

// EntitlementPage is one page of a listing.
type EntitlementPage struct {
	Items []domain.Entitlement `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Size  int                  `json:"size"`
}

// ListEntitlements returns a page of all entitlements. A search term is
// resolved in two phases: entitlement rows only hold foreign references, so
// the term is first matched against books and users, then entitlements are
// filtered by the matched ids. An empty match set short-circuits without
// querying entitlements at all.
func (a *App) ListEntitlements(page, size int, searchTerm string) (EntitlementPage, error) {
	if page < 1 {
		page = 1
	}
	term := strings.TrimSpace(searchTerm)
	filter := store.EntitlementListFilter{Page: page, Size: size}
	if term != "" {
		var bookIDs, userIDs []string
		var g errgroup.Group
		g.Go(func() error {
			var err error
			bookIDs, err = a.books.SearchBookIDs(term)
			return err
		})
		g.Go(func() error {
			var err error
			userIDs, err = a.users.SearchUserIDs(term)
			return err
		})
		if err := g.Wait(); err != nil {
			return EntitlementPage{}, err
		}
		if len(bookIDs) == 0 && len(userIDs) == 0 {
			return EntitlementPage{Items: []domain.Entitlement{}, Total: 0, Page: page, Size: size}, nil
		}
		filter.BookIDs = bookIDs
		filter.UserIDs = userIDs
	}
	items, total, err := a.entitlements.List(filter)
	if err != nil {
		return EntitlementPage{}, err
	}
	return EntitlementPage{Items: items, Total: total, Page: page, Size: size}, nil
}

// ListUserEntitlements returns one user's entitlements.
func (a *App) ListUserEntitlements(userID string, page, size int) (EntitlementPage, error) {
	if page < 1 {
		page = 1
	}
	items, total, err := a.entitlements.ListForUser(userID, page, size)
	if err != nil {
		return EntitlementPage{}, err
	}
	return EntitlementPage{Items: items, Total: total, Page: page, Size: size}, nil
}

// GetEntitlement retrieves one entitlement by id.
func (a *App) GetEntitlement(id string) (domain.Entitlement, error) {
	row, ok, err := a.entitlements.Get(id)
	if err != nil {
		return domain.Entitlement{}, err
	}
	if !ok {
		return domain.Entitlement{}, notFoundf("entitlement %s not found", id)
	}
	return row, nil
}

// UpdateEntitlement applies an admin edit and returns the updated row.
func (a *App) UpdateEntitlement(id string, upd store.EntitlementUpdate) (domain.Entitlement, error) {
	if err := a.entitlements.Update(id, upd); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Entitlement{}, notFoundf("entitlement %s not found", id)
		}
		return domain.Entitlement{}, err
	}
	return a.reload(id)
}

// DeleteEntitlement removes an entitlement row.
func (a *App) DeleteEntitlement(id string) error {
	if _, ok, err := a.entitlements.Get(id); err != nil {
		return err
	} else if !ok {
		return notFoundf("entitlement %s not found", id)
	}
	return a.entitlements.Delete(id)
}
