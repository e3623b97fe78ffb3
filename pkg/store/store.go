package store

import (
	"time"

	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
)

// EntitlementUpdate carries the fields an entitlement update may change.
// Nil pointer fields are left untouched; ClearExpiry sets expiresAt to null.
type EntitlementUpdate struct {
	RentedAt    *time.Time
	ExpiresAt   *time.Time
	ClearExpiry bool
	IsActive    *bool
}

// EntitlementListFilter narrows a paginated entitlement listing.
// BookIDs and UserIDs are OR-combined when both are set.
type EntitlementListFilter struct {
	BookIDs []string
	UserIDs []string
	Page    int
	Size    int
}

// EntitlementStore persists who owns access to what, and for how long.
//
// Create enforces the uniqueness of (userID, bookID) and reports a violation
// as ErrDuplicateEntitlement. Callers use that as a concurrency signal and
// reconcile by re-reading, never as a fatal error.
type EntitlementStore interface {
	Create(domain.Entitlement) error
	Get(id string) (domain.Entitlement, bool, error)
	GetActive(userID, bookID string) (domain.Entitlement, bool, error)
	GetLatest(userID, bookID string) (domain.Entitlement, bool, error)
	Update(id string, upd EntitlementUpdate) error
	// Renew reopens an existing row in place: new period, fresh content
	// snapshot, annotations untouched.
	Renew(id string, rentedAt time.Time, expiresAt *time.Time, pdfURL string) error
	Delete(id string) error

	List(f EntitlementListFilter) ([]domain.Entitlement, int64, error)
	ListForUser(userID string, page, size int) ([]domain.Entitlement, int64, error)

	// Annotation state. Appends are atomic; full-list writes back a
	// read-modify-edit result and may lose concurrent edits.
	AppendBookmark(id string, b domain.Bookmark) error
	AppendQuote(id string, q domain.Quote) error
	SetBookmarks(id string, bookmarks []domain.Bookmark) error
	SetQuotes(id string, quotes []domain.Quote) error
	SetLastPosition(id string, pos domain.ReadingPosition) error
}

// PaymentUpdate carries the fields a ledger update may change.
type PaymentUpdate struct {
	Status        *domain.PaymentStatus
	TransactionID *string
	LookupPayload []byte
	IsProcessed   *bool
	ProcessedAt   *time.Time
	EntitlementID *string
}

// PaymentLedger persists payment attempts keyed by the gateway pidx.
type PaymentLedger interface {
	CreatePayment(domain.PaymentAttempt) error
	GetByPidx(pidx string) (domain.PaymentAttempt, bool, error)
	UpdateByPidx(pidx string, upd PaymentUpdate) error
}

// BookStore resolves book records for existence checks and search.
type BookStore interface {
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	SearchBookIDs(term string) ([]string, error)
}

// UserDirectory resolves user records for identity and search.
type UserDirectory interface {
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	SearchUserIDs(term string) ([]string, error)
}

// ContentStore persists per-book content pointers. Activate deactivates any
// previous pointer for the book before inserting the new active one.
type ContentStore interface {
	Activate(domain.ContentPointer) error
	GetActiveContent(bookID string) (domain.ContentPointer, bool, error)
}

// SessionStore resolves bearer tokens to user ids.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
