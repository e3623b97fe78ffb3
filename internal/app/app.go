// Package app holds the entitlement and settlement core: granting and renting
// reading access, initiating purchases against the external payment gateway,
// and settling completed payments into entitlements exactly once.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Garima-Shrestha/novella-sub000/internal/epay"
	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

// ContentCatalog resolves the currently publishable document pointer for a
// book. Entitlement creation requires a pointer; its absence is a hard
// failure.
type ContentCatalog interface {
	ActiveContent(bookID string) (domain.ContentPointer, bool, error)
}

// PaymentGateway is the opaque external payment service.
type PaymentGateway interface {
	Configured() bool
	Initiate(ctx context.Context, req epay.InitiateRequest) (epay.InitiateResult, error)
	Lookup(ctx context.Context, pidx string) (epay.LookupResult, error)
}

// Config wires the stores and collaborators into the core.
type Config struct {
	Entitlements store.EntitlementStore
	Payments     store.PaymentLedger
	Books        store.BookStore
	Users        store.UserDirectory
	Catalog      ContentCatalog
	Gateway      PaymentGateway
	Now          func() time.Time // defaults to time.Now; injectable for tests
}

// App is the settlement coordinator. All operations are stateless
// request/response handlers over the shared stores; the only serialization
// point for the exactly-once guarantee is the entitlement store's uniqueness
// constraint on (userID, bookID).
type App struct {
	entitlements store.EntitlementStore
	payments     store.PaymentLedger
	books        store.BookStore
	users        store.UserDirectory
	catalog      ContentCatalog
	gateway      PaymentGateway
	now          func() time.Time
}

// New constructs the coordinator.
func New(cfg Config) (*App, error) {
	if cfg.Entitlements == nil {
		return nil, fmt.Errorf("entitlement store required")
	}
	if cfg.Payments == nil {
		return nil, fmt.Errorf("payment ledger required")
	}
	if cfg.Books == nil {
		return nil, fmt.Errorf("book store required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("content catalog required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		entitlements: cfg.Entitlements,
		payments:     cfg.Payments,
		books:        cfg.Books,
		users:        cfg.Users,
		catalog:      cfg.Catalog,
		gateway:      cfg.Gateway,
		now:          now,
	}, nil
}
