package app

import (
	"errors"
	"strings"
	"time"

	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

// GrantAccess gives a user access to a book directly, without payment.
// expiresAt nil means permanent; rentedAt nil defaults to now. The boundary
// layer restricts this to admins.
func (a *App) GrantAccess(userID, bookID string, expiresAt, rentedAt *time.Time) (domain.Entitlement, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(bookID) == "" {
		return domain.Entitlement{}, validationf("userId and bookId are required")
	}
	start := a.now().UTC()
	if rentedAt != nil {
		start = rentedAt.UTC()
	}
	return a.grant(userID, bookID, expiresAt, start)
}

// RentBook grants the calling user time-bounded access. Unlike GrantAccess,
// the expiry is mandatory and the book must exist.
func (a *App) RentBook(userID, bookID string, expiresAt time.Time) (domain.Entitlement, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(bookID) == "" {
		return domain.Entitlement{}, validationf("userId and bookId are required")
	}
	if expiresAt.IsZero() {
		return domain.Entitlement{}, validationf("expiresAt is required")
	}
	if _, ok, err := a.books.GetBook(bookID); err != nil {
		return domain.Entitlement{}, err
	} else if !ok {
		return domain.Entitlement{}, notFoundf("book %s not found", bookID)
	}
	return a.grant(userID, bookID, &expiresAt, a.now().UTC())
}

// grant implements the shared grant algorithm: conflict check, content
// pointer resolution, then renew-in-place of a prior row or a fresh insert.
// A losing insert (ErrDuplicateEntitlement) is reconciled by re-reading.
func (a *App) grant(userID, bookID string, expiresAt *time.Time, rentedAt time.Time) (domain.Entitlement, error) {
	now := a.now().UTC()
	if active, ok, err := a.entitlements.GetActive(userID, bookID); err != nil {
		return domain.Entitlement{}, err
	} else if ok && active.ValidAt(now) {
		return domain.Entitlement{}, conflictf("user already has access %s", accessUntil(active))
	}

	pointer, ok, err := a.catalog.ActiveContent(bookID)
	if err != nil {
		return domain.Entitlement{}, err
	}
	if !ok {
		return domain.Entitlement{}, notFoundf("content not published for book %s", bookID)
	}

	// A prior expired or deactivated row is reopened in place so its id and
	// annotation history survive into the new access period.
	if latest, ok, err := a.entitlements.GetLatest(userID, bookID); err != nil {
		return domain.Entitlement{}, err
	} else if ok {
		return a.renew(latest.ID, rentedAt, expiresAt, pointer.PdfURL)
	}

	entitlement := domain.Entitlement{
		ID:        store.NewID(),
		UserID:    userID,
		BookID:    bookID,
		RentedAt:  rentedAt,
		ExpiresAt: normalizeExpiry(expiresAt),
		IsActive:  true,
		PdfURL:    pointer.PdfURL,
		Bookmarks: []domain.Bookmark{},
		Quotes:    []domain.Quote{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = a.entitlements.Create(entitlement)
	if err == nil {
		return entitlement, nil
	}
	if !errors.Is(err, store.ErrDuplicateEntitlement) {
		return domain.Entitlement{}, err
	}

	// Someone else inserted concurrently. Re-read to reconcile.
	if active, ok, err := a.entitlements.GetActive(userID, bookID); err != nil {
		return domain.Entitlement{}, err
	} else if ok && active.ValidAt(now) {
		return domain.Entitlement{}, conflictf("user already has access %s", accessUntil(active))
	}
	latest, ok, err := a.entitlements.GetLatest(userID, bookID)
	if err != nil {
		return domain.Entitlement{}, err
	}
	if !ok {
		return domain.Entitlement{}, conflictf("conflicting entitlement state for user %s and book %s", userID, bookID)
	}
	return a.renew(latest.ID, rentedAt, expiresAt, pointer.PdfURL)
}

func (a *App) renew(id string, rentedAt time.Time, expiresAt *time.Time, pdfURL string) (domain.Entitlement, error) {
	if err := a.entitlements.Renew(id, rentedAt, normalizeExpiry(expiresAt), pdfURL); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Entitlement{}, conflictf("entitlement disappeared during renewal")
		}
		return domain.Entitlement{}, err
	}
	renewed, ok, err := a.entitlements.Get(id)
	if err != nil {
		return domain.Entitlement{}, err
	}
	if !ok {
		return domain.Entitlement{}, conflictf("entitlement disappeared during renewal")
	}
	return renewed, nil
}

func normalizeExpiry(expiresAt *time.Time) *time.Time {
	if expiresAt == nil {
		return nil
	}
	t := expiresAt.UTC()
	return &t
}

func accessUntil(e domain.Entitlement) string {
	if e.ExpiresAt == nil {
		return "permanently"
	}
	return "until " + e.ExpiresAt.UTC().Format(time.RFC3339)
}
