package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContentPointer is the currently publishable document reference for a book.
// At most one pointer per book is active at a time.
type ContentPointer struct {
	ID         string    `json:"id"`
	BookID     string    `json:"bookId"`
	PdfURL     string    `json:"pdfUrl"`
	StorageKey string    `json:"-"`
	PageCount  int       `json:"pageCount"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Bookmark marks a page in a book, optionally with a text selection.
type Bookmark struct {
	Page      int    `json:"page"`
	Text      string `json:"text"`
	Selection string `json:"selection,omitempty"`
}

// Quote is a saved passage from a book.
type Quote struct {
	Page      int    `json:"page"`
	Text      string `json:"text"`
	Selection string `json:"selection,omitempty"`
}

// ReadingPosition is where the reader last stopped.
type ReadingPosition struct {
	Page    int     `json:"page"`
	OffsetY float64 `json:"offsetY"`
	Zoom    float64 `json:"zoom"`
}

// Entitlement grants a user timed or permanent access to a book's content.
// PdfURL is a snapshot taken at grant time; republishing a book's document
// never changes already-granted entitlements.
type Entitlement struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	BookID       string           `json:"bookId"`
	RentedAt     time.Time        `json:"rentedAt"`
	ExpiresAt    *time.Time       `json:"expiresAt"` // nil means permanent ownership
	IsActive     bool             `json:"isActive"`
	PdfURL       string           `json:"pdfUrl"`
	Bookmarks    []Bookmark       `json:"bookmarks"`
	Quotes       []Quote          `json:"quotes"`
	LastPosition *ReadingPosition `json:"lastPosition,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// ValidAt reports whether the entitlement grants access at the given time.
func (e Entitlement) ValidAt(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

type PaymentStatus string

const (
	PaymentInitiated         PaymentStatus = "Initiated"
	PaymentPending           PaymentStatus = "Pending"
	PaymentCompleted         PaymentStatus = "Completed"
	PaymentExpired           PaymentStatus = "Expired"
	PaymentFailed            PaymentStatus = "Failed"
	PaymentCanceled          PaymentStatus = "Canceled"
	PaymentRefunded          PaymentStatus = "Refunded"
	PaymentPartiallyRefunded PaymentStatus = "PartiallyRefunded"
)

// PaymentAttempt records one purchase flow, keyed by the gateway-assigned
// correlation id (pidx). Raw gateway payloads are retained for audit.
type PaymentAttempt struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	BookID          string        `json:"bookId"`
	Pidx            string        `json:"pidx"`
	Amount          int64         `json:"amount"` // minor units (paisa)
	OrderID         string        `json:"orderId"`
	OrderName       string        `json:"orderName"`
	Status          PaymentStatus `json:"status"`
	TransactionID   string        `json:"transactionId,omitempty"`
	InitiatePayload []byte        `json:"-"`
	LookupPayload   []byte        `json:"-"`
	IsProcessed     bool          `json:"isProcessed"`
	ProcessedAt     *time.Time    `json:"processedAt,omitempty"`
	EntitlementID   string        `json:"entitlementId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}
