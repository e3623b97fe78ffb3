package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Garima-Shrestha/novella-sub000/internal/app"
	"github.com/Garima-Shrestha/novella-sub000/internal/catalog"
	"github.com/Garima-Shrestha/novella-sub000/internal/epay"
	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

type stubGateway struct {
	status string
}

func (g *stubGateway) Configured() bool { return true }

func (g *stubGateway) Initiate(_ context.Context, _ epay.InitiateRequest) (epay.InitiateResult, error) {
	return epay.InitiateResult{
		Pidx:       "pidx-1",
		PaymentURL: "https://pay.example/pidx-1",
		ExpiresAt:  time.Now().Add(30 * time.Minute),
		Raw:        json.RawMessage(`{"pidx":"pidx-1"}`),
	}, nil
}

func (g *stubGateway) Lookup(_ context.Context, pidx string) (epay.LookupResult, error) {
	status := g.status
	if status == "" {
		status = "Completed"
	}
	return epay.LookupResult{
		Pidx:          pidx,
		Status:        status,
		TransactionID: "txn-1",
		Raw:           json.RawMessage(`{}`),
	}, nil
}

type nullObjects struct{}

func (nullObjects) Put(_ context.Context, _ string, r io.Reader, _ int64, _ string) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func (nullObjects) PublicURL(key string) string { return "https://cdn.example/" + key }

type testServer struct {
	handler    http.Handler
	store      *store.MemoryStore
	adminToken string
	userToken  string
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, limiter PaymentLimiter) *testServer {
	t.Helper()
	mem := store.NewMemoryStore()

	bookCatalog, err := catalog.New(catalog.Config{Content: mem, Objects: nullObjects{}})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	appCore, err := app.New(app.Config{
		Entitlements: mem,
		Payments:     mem,
		Books:        mem,
		Users:        mem,
		Catalog:      bookCatalog,
		Gateway:      &stubGateway{},
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv, err := New(Config{App: appCore, Catalog: bookCatalog, Sessions: mem, Users: mem, PaymentLimiter: limiter})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	mem.SaveUser(domain.User{ID: "admin-1", Email: "root@example.com", Role: domain.RoleAdmin})
	mem.SaveUser(domain.User{ID: "u1", Email: "ana@example.com", Role: domain.RoleUser})
	adminToken, err := mem.NewSession("admin-1")
	if err != nil {
		t.Fatalf("admin session: %v", err)
	}
	userToken, err := mem.NewSession("u1")
	if err != nil {
		t.Fatalf("user session: %v", err)
	}

	mem.SaveBook(domain.Book{ID: "b1", Title: "Go in Practice", Author: "Carol"})
	mem.Activate(domain.ContentPointer{ID: "c1", BookID: "b1", PdfURL: "https://cdn.example/b1.pdf", IsActive: true})

	return &testServer{handler: srv.Router(), store: mem, adminToken: adminToken, userToken: userToken}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/me/entitlements", "/admin/entitlements", "/payments/verify"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: status = %d, want 401", path, rec.Code)
		}
		resp := decodeBody[errorResponse](t, rec)
		if resp.Code != "AUTH_INVALID_TOKEN" {
			t.Fatalf("%s code = %q, want AUTH_INVALID_TOKEN", path, resp.Code)
		}
	}
}

func TestAdminRoutesRejectPlainUsers(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/admin/entitlements", ts.userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGrantAndFetchEntitlement(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/admin/entitlements", ts.adminToken, map[string]any{
		"userId": "u1",
		"bookId": "b1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant status = %d body=%s, want 201", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.Entitlement](t, rec)
	if created.ID == "" || created.PdfURL != "https://cdn.example/b1.pdf" {
		t.Fatalf("created = %+v", created)
	}

	rec = ts.do(t, http.MethodGet, "/admin/entitlements/"+created.ID, ts.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, "/admin/entitlements/"+created.ID, ts.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/admin/entitlements/"+created.ID, ts.adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestRentalFlow(t *testing.T) {
	ts := newTestServer(t)
	expires := time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339)
	rec := ts.do(t, http.MethodPost, "/rentals", ts.userToken, map[string]any{
		"bookId":    "b1",
		"expiresAt": expires,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("rent status = %d body=%s, want 201", rec.Code, rec.Body.String())
	}

	// Renting again while valid conflicts.
	rec = ts.do(t, http.MethodPost, "/rentals", ts.userToken, map[string]any{
		"bookId":    "b1",
		"expiresAt": expires,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second rent status = %d, want 409", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "ENTITLEMENT_CONFLICT" {
		t.Fatalf("conflict code = %q", resp.Code)
	}

	rec = ts.do(t, http.MethodGet, "/me/entitlements", ts.userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	page := decodeBody[app.EntitlementPage](t, rec)
	if page.Total != 1 {
		t.Fatalf("total = %d, want 1", page.Total)
	}
}

func TestPurchaseFlow(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/payments/initiate", ts.userToken, map[string]any{
		"bookId":    "b1",
		"amount":    130000,
		"orderName": "Go in Practice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("initiate status = %d body=%s, want 200", rec.Code, rec.Body.String())
	}
	initiated := decodeBody[app.InitiateOutcome](t, rec)
	if initiated.Pidx == "" || initiated.PaymentURL == "" {
		t.Fatalf("initiate outcome = %+v", initiated)
	}

	rec = ts.do(t, http.MethodPost, "/payments/verify", ts.userToken, map[string]any{"pidx": initiated.Pidx})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d body=%s, want 200", rec.Code, rec.Body.String())
	}
	settled := decodeBody[app.SettlementOutcome](t, rec)
	if settled.Status != domain.PaymentCompleted || settled.EntitlementID == "" {
		t.Fatalf("settlement outcome = %+v", settled)
	}

	// Verifying someone else's payment is forbidden.
	rec = ts.do(t, http.MethodPost, "/payments/verify", ts.adminToken, map[string]any{"pidx": initiated.Pidx})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign verify status = %d, want 403", rec.Code)
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func TestPaymentInitiateRateLimited(t *testing.T) {
	ts := newTestServerWith(t, denyLimiter{})
	rec := ts.do(t, http.MethodPost, "/payments/initiate", ts.userToken, map[string]any{
		"bookId":    "b1",
		"amount":    130000,
		"orderName": "Go in Practice",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "PAYMENT_RATE_LIMITED" {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestBookmarkEndpoints(t *testing.T) {
	ts := newTestServer(t)
	expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec := ts.do(t, http.MethodPost, "/rentals", ts.userToken, map[string]any{"bookId": "b1", "expiresAt": expires})
	if rec.Code != http.StatusCreated {
		t.Fatalf("rent: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/me/books/b1/bookmarks", ts.userToken, map[string]any{"page": 4, "text": "here"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add bookmark status = %d body=%s", rec.Code, rec.Body.String())
	}
	row := decodeBody[domain.Entitlement](t, rec)
	if len(row.Bookmarks) != 1 {
		t.Fatalf("bookmarks = %d, want 1", len(row.Bookmarks))
	}

	rec = ts.do(t, http.MethodDelete, "/me/books/b1/bookmarks/0", ts.userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove bookmark status = %d", rec.Code)
	}
	row = decodeBody[domain.Entitlement](t, rec)
	if len(row.Bookmarks) != 0 {
		t.Fatalf("bookmarks = %d, want 0", len(row.Bookmarks))
	}

	rec = ts.do(t, http.MethodPut, "/me/books/b1/position", ts.userToken, map[string]any{"page": 9, "offsetY": 0.4, "zoom": 1.5})
	if rec.Code != http.StatusOK {
		t.Fatalf("position status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodDelete, "/me/books/b1/bookmarks/notanumber", ts.userToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad index status = %d, want 400", rec.Code)
	}
}

func TestAdminListWithSearch(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/admin/entitlements", ts.adminToken, map[string]any{"userId": "u1", "bookId": "b1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/admin/entitlements?search=practice", ts.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	page := decodeBody[app.EntitlementPage](t, rec)
	if page.Total != 1 {
		t.Fatalf("search total = %d, want 1", page.Total)
	}

	rec = ts.do(t, http.MethodGet, "/admin/entitlements?search=nosuchterm", ts.adminToken, nil)
	page = decodeBody[app.EntitlementPage](t, rec)
	if page.Total != 0 || len(page.Items) != 0 {
		t.Fatalf("no-match search returned %d/%d, want empty", page.Total, len(page.Items))
	}
}

func TestInvalidJSONBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/rentals", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Authorization", "Bearer "+ts.userToken)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "REQUEST_INVALID_BODY" {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodDelete, "/rentals", ts.userToken, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRequestIDEchoedInErrors(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/me/entitlements", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.RequestID != "req-42" {
		t.Fatalf("requestId = %q, want req-42", resp.RequestID)
	}
}

func TestPublishRejectsNonPDFUpload(t *testing.T) {
	ts := newTestServer(t)
	body := new(bytes.Buffer)
	boundary := "testboundary"
	fmt.Fprintf(body, "--%s\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.pdf\"\r\nContent-Type: application/pdf\r\n\r\nnot a pdf\r\n--%s--\r\n", boundary, boundary)
	req := httptest.NewRequest(http.MethodPost, "/admin/books/b1/content", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("Authorization", "Bearer "+ts.adminToken)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s, want 400", rec.Code, rec.Body.String())
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "CONTENT_INVALID_DOCUMENT" {
		t.Fatalf("code = %q, want CONTENT_INVALID_DOCUMENT", resp.Code)
	}
}
