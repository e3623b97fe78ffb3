package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Garima-Shrestha/novella-sub000/internal/epay"
	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if page < 1 {
		page = 1
	}
	return page, size
}

// --- admin entitlements ---

type grantRequest struct {
	UserID    string     `json:"userId"`
	BookID    string     `json:"bookId"`
	RentedAt  *time.Time `json:"rentedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (s *Server) handleAdminEntitlements(w http.ResponseWriter, r *http.Request, _ domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req grantRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		entitlement, err := s.app.GrantAccess(req.UserID, req.BookID, req.ExpiresAt, req.RentedAt)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entitlement)
	case http.MethodGet:
		page, size := pageParams(r)
		result, err := s.app.ListEntitlements(page, size, r.URL.Query().Get("search"))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		methodNotAllowed(w)
	}
}

type entitlementPatch struct {
	RentedAt    *time.Time `json:"rentedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	ClearExpiry bool       `json:"clearExpiry,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
}

// /admin/entitlements/{id}
func (s *Server) handleAdminEntitlementByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/admin/entitlements/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		entitlement, err := s.app.GetEntitlement(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entitlement)
	case http.MethodPatch:
		var req entitlementPatch
		if !decodeJSON(w, r, &req) {
			return
		}
		entitlement, err := s.app.UpdateEntitlement(id, store.EntitlementUpdate{
			RentedAt:    req.RentedAt,
			ExpiresAt:   req.ExpiresAt,
			ClearExpiry: req.ClearExpiry,
			IsActive:    req.IsActive,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entitlement)
	case http.MethodDelete:
		if err := s.app.DeleteEntitlement(id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// /admin/books/{id}/content
func (s *Server) handleAdminBook(w http.ResponseWriter, r *http.Request, _ domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/admin/books/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "content" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.handlePublishContent(w, r, parts[0])
}

func (s *Server) handlePublishContent(w http.ResponseWriter, r *http.Request, bookID string) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	pointer, err := s.catalog.Publish(r.Context(), bookID, header.Filename, file, header.Size)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pointer)
}

// --- user surface ---

type rentRequest struct {
	BookID    string    `json:"bookId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleRentals(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req rentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entitlement, err := s.app.RentBook(user.ID, req.BookID, req.ExpiresAt)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entitlement)
}

func (s *Server) handleMyEntitlements(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, size := pageParams(r)
	result, err := s.app.ListUserEntitlements(user.ID, page, size)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- payments ---

type initiateRequest struct {
	BookID    string             `json:"bookId"`
	Amount    int64              `json:"amount"`
	OrderID   string             `json:"orderId,omitempty"`
	OrderName string             `json:"orderName"`
	Customer  *epay.CustomerInfo `json:"customer,omitempty"`
}

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.paymentLimiter != nil && !s.paymentLimiter.Allow(user.ID) {
		writeError(w, http.StatusTooManyRequests, "too many checkout attempts")
		return
	}
	var req initiateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	outcome, err := s.app.InitiatePurchase(r.Context(), user.ID, req.BookID, req.Amount, req.OrderID, req.OrderName, req.Customer)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type verifyRequest struct {
	Pidx string `json:"pidx"`
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	outcome, err := s.app.VerifyPurchase(r.Context(), req.Pidx, user.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// --- annotations ---

// /me/books/{bookId}/bookmarks[/{index}], /me/books/{bookId}/quotes[/{index}],
// /me/books/{bookId}/position
func (s *Server) handleMyBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/me/books/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		notFound(w, "not found")
		return
	}
	bookID := parts[0]
	switch parts[1] {
	case "bookmarks":
		s.handleBookmarks(w, r, user, bookID, parts[2:])
	case "quotes":
		s.handleQuotes(w, r, user, bookID, parts[2:])
	case "position":
		if len(parts) != 2 {
			notFound(w, "not found")
			return
		}
		s.handlePosition(w, r, user, bookID)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request, user domain.User, bookID string, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var b domain.Bookmark
		if !decodeJSON(w, r, &b) {
			return
		}
		entitlement, err := s.app.AddBookmark(user.ID, bookID, b)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entitlement)
	case r.Method == http.MethodDelete && len(rest) == 1:
		index, err := strconv.Atoi(rest[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid bookmark index")
			return
		}
		entitlement, err := s.app.RemoveBookmark(user.ID, bookID, index)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entitlement)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request, user domain.User, bookID string, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var q domain.Quote
		if !decodeJSON(w, r, &q) {
			return
		}
		entitlement, err := s.app.AddQuote(user.ID, bookID, q)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entitlement)
	case r.Method == http.MethodDelete && len(rest) == 1:
		index, err := strconv.Atoi(rest[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid quote index")
			return
		}
		entitlement, err := s.app.RemoveQuote(user.ID, bookID, index)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entitlement)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request, user domain.User, bookID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var pos domain.ReadingPosition
	if !decodeJSON(w, r, &pos) {
		return
	}
	entitlement, err := s.app.UpdateLastPosition(user.ID, bookID, pos)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entitlement)
}
