package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Garima-Shrestha/novella-sub000/internal/epay"
	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

// fakeGateway scripts gateway responses for tests.
type fakeGateway struct {
	configured   bool
	initiateFn   func(epay.InitiateRequest) (epay.InitiateResult, error)
	lookupFn     func(pidx string) (epay.LookupResult, error)
	lookupCalls  int
	initiateReqs []epay.InitiateRequest
}

func (f *fakeGateway) Configured() bool { return f.configured }

func (f *fakeGateway) Initiate(_ context.Context, req epay.InitiateRequest) (epay.InitiateResult, error) {
	f.initiateReqs = append(f.initiateReqs, req)
	if f.initiateFn != nil {
		return f.initiateFn(req)
	}
	return epay.InitiateResult{
		Pidx:       "pidx-1",
		PaymentURL: "https://pay.example/pidx-1",
		ExpiresAt:  time.Now().Add(30 * time.Minute),
		Raw:        json.RawMessage(`{"pidx":"pidx-1"}`),
	}, nil
}

func (f *fakeGateway) Lookup(_ context.Context, pidx string) (epay.LookupResult, error) {
	f.lookupCalls++
	if f.lookupFn != nil {
		return f.lookupFn(pidx)
	}
	return epay.LookupResult{
		Pidx:          pidx,
		Status:        "Completed",
		TransactionID: "txn-1",
		Raw:           json.RawMessage(`{"status":"Completed"}`),
	}, nil
}

func completedLookup(pidx string) (epay.LookupResult, error) {
	return epay.LookupResult{
		Pidx:          pidx,
		Status:        "Completed",
		TransactionID: "txn-1",
		Raw:           json.RawMessage(`{"status":"Completed"}`),
	}, nil
}

type testEnv struct {
	app     *App
	store   *store.MemoryStore
	gateway *fakeGateway
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	gw := &fakeGateway{configured: true}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, err := New(Config{
		Entitlements: mem,
		Payments:     mem,
		Books:        mem,
		Users:        mem,
		Catalog:      memCatalog{mem},
		Gateway:      gw,
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return &testEnv{app: a, store: mem, gateway: gw, now: now}
}

// memCatalog reads content pointers straight from the store.
type memCatalog struct {
	content store.ContentStore
}

func (c memCatalog) ActiveContent(bookID string) (domain.ContentPointer, bool, error) {
	return c.content.GetActiveContent(bookID)
}

func (e *testEnv) seedBook(t *testing.T, id string) {
	t.Helper()
	if err := e.store.SaveBook(domain.Book{ID: id, Title: "Book " + id, Author: "Author"}); err != nil {
		t.Fatalf("SaveBook: %v", err)
	}
}

func (e *testEnv) seedUser(t *testing.T, id string) {
	t.Helper()
	if err := e.store.SaveUser(domain.User{ID: id, Email: id + "@example.com", Name: "User " + id, Role: domain.RoleUser}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
}

func (e *testEnv) publishContent(t *testing.T, bookID, pdfURL string) {
	t.Helper()
	err := e.store.Activate(domain.ContentPointer{
		ID:        store.NewID(),
		BookID:    bookID,
		PdfURL:    pdfURL,
		PageCount: 10,
		IsActive:  true,
		CreatedAt: e.now,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
}

func (e *testEnv) seedAll(t *testing.T, userID, bookID, pdfURL string) {
	t.Helper()
	e.seedUser(t, userID)
	e.seedBook(t, bookID)
	e.publishContent(t, bookID, pdfURL)
}

func wantKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, kind, err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
