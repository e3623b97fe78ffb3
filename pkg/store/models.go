package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	Name      string
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type BookModel struct {
	ID        string `gorm:"primaryKey"`
	Title     string `gorm:"not null;index"`
	Author    string
	CreatedAt time.Time `gorm:"not null"`
}

type ContentPointerModel struct {
	ID         string `gorm:"primaryKey"`
	BookID     string `gorm:"not null;index"`
	PdfURL     string `gorm:"not null"`
	StorageKey string
	PageCount  int
	IsActive   bool      `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
}

// EntitlementModel holds one access period per (user, book). The composite
// unique index is load-bearing: it is the only serialization point for
// concurrent grants of the same pair.
type EntitlementModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;uniqueIndex:idx_entitlements_user_book"`
	BookID       string `gorm:"not null;uniqueIndex:idx_entitlements_user_book"`
	RentedAt     time.Time
	ExpiresAt    *time.Time
	IsActive     bool   `gorm:"not null"`
	PdfURL       string `gorm:"not null"`
	Bookmarks    datatypes.JSON `gorm:"type:jsonb"`
	Quotes       datatypes.JSON `gorm:"type:jsonb"`
	LastPosition datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type PaymentAttemptModel struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"not null;index"`
	BookID          string `gorm:"not null;index"`
	Pidx            string `gorm:"uniqueIndex;not null"`
	Amount          int64  `gorm:"not null"`
	OrderID         string
	OrderName       string
	Status          string `gorm:"not null"`
	TransactionID   string
	InitiatePayload datatypes.JSON `gorm:"type:jsonb"`
	LookupPayload   datatypes.JSON `gorm:"type:jsonb"`
	IsProcessed     bool `gorm:"not null"`
	ProcessedAt     *time.Time
	EntitlementID   *string
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}
