// Package server exposes the HTTP boundary: routing, session auth, role
// checks, and the mapping from domain errors to HTTP responses.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Garima-Shrestha/novella-sub000/internal/app"
	"github.com/Garima-Shrestha/novella-sub000/internal/catalog"
	"github.com/Garima-Shrestha/novella-sub000/internal/util"
	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

// PaymentLimiter caps checkout initiations per user. Nil disables limiting.
type PaymentLimiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Catalog        *catalog.Catalog
	Sessions       store.SessionStore
	Users          store.UserDirectory
	PaymentLimiter PaymentLimiter
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the entitlement service.
type Server struct {
	app            *app.App
	catalog        *catalog.Catalog
	sessions       store.SessionStore
	users          store.UserDirectory
	paymentLimiter PaymentLimiter
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		catalog:        cfg.Catalog,
		sessions:       cfg.Sessions,
		users:          cfg.Users,
		paymentLimiter: cfg.PaymentLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("novella", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// admin surface
	s.mux.Handle("/admin/entitlements", s.withAdmin(s.handleAdminEntitlements))
	s.mux.Handle("/admin/entitlements/", s.withAdmin(s.handleAdminEntitlementByID))
	s.mux.Handle("/admin/books/", s.withAdmin(s.handleAdminBook))

	// user surface
	s.mux.Handle("/rentals", s.withUser(s.handleRentals))
	s.mux.Handle("/me/entitlements", s.withUser(s.handleMyEntitlements))
	s.mux.Handle("/me/books/", s.withUser(s.handleMyBook))
	s.mux.Handle("/payments/initiate", s.withUser(s.handleInitiatePayment))
	s.mux.Handle("/payments/verify", s.withUser(s.handleVerifyPayment))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.resolveUser(w, r)
		if !ok {
			return
		}
		next(w, r, user)
	})
}

func (s *Server) withAdmin(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.resolveUser(w, r)
		if !ok {
			return
		}
		if user.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) resolveUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	userID, ok, err := s.sessions.GetUserIDByToken(token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return domain.User{}, false
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	user, ok, err := s.users.GetUserByID(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return domain.User{}, false
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	return user, true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps a typed domain error onto the HTTP surface.
func writeAppError(w http.ResponseWriter, err error) {
	appErr, ok := app.AsError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch appErr.Kind {
	case app.KindValidation:
		writeError(w, http.StatusBadRequest, appErr.Message)
	case app.KindNotFound:
		writeError(w, http.StatusNotFound, appErr.Message)
	case app.KindConflict:
		writeError(w, http.StatusConflict, appErr.Message)
	case app.KindForbidden:
		writeError(w, http.StatusForbidden, appErr.Message)
	case app.KindUnavailable:
		writeError(w, http.StatusServiceUnavailable, appErr.Message)
	case app.KindGateway:
		// Upstream rejections surface as 502 with the upstream message; the
		// ledger was not touched.
		writeError(w, http.StatusBadGateway, appErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "AUTH_FORBIDDEN"
	case strings.Contains(message, "payment gateway"):
		return "PAYMENT_GATEWAY_ERROR"
	case strings.Contains(message, "payment") && status == http.StatusNotFound:
		return "PAYMENT_NOT_FOUND"
	case strings.Contains(message, "belongs to another user"):
		return "PAYMENT_FORBIDDEN"
	case strings.Contains(message, "already has access"):
		return "ENTITLEMENT_CONFLICT"
	case strings.Contains(message, "content not published"):
		return "CONTENT_NOT_PUBLISHED"
	case strings.Contains(message, "not a valid pdf"), strings.Contains(message, "document is empty"):
		return "CONTENT_INVALID_DOCUMENT"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "invalid form data", strings.Contains(message, "file is required"):
		return "CONTENT_INVALID_UPLOAD_FORM"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "AUTH_FORBIDDEN"
	case http.StatusNotFound:
		return "ENTITLEMENT_NOT_FOUND"
	case http.StatusConflict:
		return "ENTITLEMENT_CONFLICT"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "PAYMENT_RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "PAYMENT_GATEWAY_UNCONFIGURED"
	case http.StatusBadGateway:
		return "PAYMENT_GATEWAY_ERROR"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
