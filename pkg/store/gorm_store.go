package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
)

// GormStore implements the persistence interfaces using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations. TranslateError is on so
// unique violations surface as gorm.ErrDuplicatedKey across drivers.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&BookModel{},
		&ContentPointerModel{},
		&EntitlementModel{},
		&PaymentAttemptModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreWithDB wraps an already opened gorm handle (used by tests).
func NewGormStoreWithDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create inserts a new entitlement row. A second row for the same
// (userID, bookID) fails with ErrDuplicateEntitlement.
func (s *GormStore) Create(e domain.Entitlement) error {
	model, err := entitlementToModel(e)
	if err != nil {
		return err
	}
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEntitlement
		}
		return err
	}
	return nil
}

// Get retrieves an entitlement by id.
func (s *GormStore) Get(id string) (domain.Entitlement, bool, error) {
	var model EntitlementModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Entitlement{}, false, nil
		}
		return domain.Entitlement{}, false, err
	}
	return entitlementFromModel(model), true, nil
}

// GetActive returns the row flagged active for the pair. Callers still check
// expiresAt; the flag is not auto-derived from it.
func (s *GormStore) GetActive(userID, bookID string) (domain.Entitlement, bool, error) {
	var model EntitlementModel
	err := s.db.Where("user_id = ? AND book_id = ? AND is_active = ?", userID, bookID, true).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Entitlement{}, false, nil
		}
		return domain.Entitlement{}, false, err
	}
	return entitlementFromModel(model), true, nil
}

// GetLatest returns the most recent row for the pair regardless of state,
// used to carry annotations forward into a new access period.
func (s *GormStore) GetLatest(userID, bookID string) (domain.Entitlement, bool, error) {
	var model EntitlementModel
	err := s.db.Where("user_id = ? AND book_id = ?", userID, bookID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Entitlement{}, false, nil
		}
		return domain.Entitlement{}, false, err
	}
	return entitlementFromModel(model), true, nil
}

// Update applies a partial admin edit.
func (s *GormStore) Update(id string, upd EntitlementUpdate) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if upd.RentedAt != nil {
		updates["rented_at"] = upd.RentedAt.UTC()
	}
	if upd.ClearExpiry {
		updates["expires_at"] = nil
	} else if upd.ExpiresAt != nil {
		updates["expires_at"] = upd.ExpiresAt.UTC()
	}
	if upd.IsActive != nil {
		updates["is_active"] = *upd.IsActive
	}
	return s.updateEntitlement(id, updates)
}

// Renew reopens an existing row in place, preserving its id and annotation
// history while starting a new access period with a fresh content snapshot.
func (s *GormStore) Renew(id string, rentedAt time.Time, expiresAt *time.Time, pdfURL string) error {
	updates := map[string]any{
		"rented_at":  rentedAt.UTC(),
		"expires_at": nil,
		"is_active":  true,
		"pdf_url":    pdfURL,
		"updated_at": time.Now().UTC(),
	}
	if expiresAt != nil {
		updates["expires_at"] = expiresAt.UTC()
	}
	return s.updateEntitlement(id, updates)
}

// Delete removes an entitlement row.
func (s *GormStore) Delete(id string) error {
	return s.db.Delete(&EntitlementModel{}, "id = ?", id).Error
}

// List returns a page of entitlements, newest first, optionally narrowed to
// matched book or user ids.
func (s *GormStore) List(f EntitlementListFilter) ([]domain.Entitlement, int64, error) {
	query := s.db.Model(&EntitlementModel{})
	switch {
	case len(f.BookIDs) > 0 && len(f.UserIDs) > 0:
		query = query.Where("book_id IN ? OR user_id IN ?", f.BookIDs, f.UserIDs)
	case len(f.BookIDs) > 0:
		query = query.Where("book_id IN ?", f.BookIDs)
	case len(f.UserIDs) > 0:
		query = query.Where("user_id IN ?", f.UserIDs)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []EntitlementModel
	if err := query.Order("created_at DESC").
		Offset(pageOffset(f.Page, f.Size)).
		Limit(pageSize(f.Size)).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return entitlementsFromModels(models), total, nil
}

// ListForUser returns one user's entitlements, newest first.
func (s *GormStore) ListForUser(userID string, page, size int) ([]domain.Entitlement, int64, error) {
	query := s.db.Model(&EntitlementModel{}).Where("user_id = ?", userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []EntitlementModel
	if err := query.Order("created_at DESC").
		Offset(pageOffset(page, size)).
		Limit(pageSize(size)).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return entitlementsFromModels(models), total, nil
}

// AppendBookmark appends atomically on the database side.
func (s *GormStore) AppendBookmark(id string, b domain.Bookmark) error {
	return s.appendAnnotation(id, "bookmarks", b)
}

// AppendQuote appends atomically on the database side.
func (s *GormStore) AppendQuote(id string, q domain.Quote) error {
	return s.appendAnnotation(id, "quotes", q)
}

func (s *GormStore) appendAnnotation(id, column string, item any) error {
	raw, err := json.Marshal([]any{item})
	if err != nil {
		return err
	}
	return s.updateEntitlement(id, map[string]any{
		column:       gorm.Expr("COALESCE("+column+", '[]'::jsonb) || ?::jsonb", string(raw)),
		"updated_at": time.Now().UTC(),
	})
}

// SetBookmarks writes the whole list back (read-modify-write removal path).
func (s *GormStore) SetBookmarks(id string, bookmarks []domain.Bookmark) error {
	raw, err := marshalList(bookmarks)
	if err != nil {
		return err
	}
	return s.updateEntitlement(id, map[string]any{
		"bookmarks":  raw,
		"updated_at": time.Now().UTC(),
	})
}

// SetQuotes writes the whole list back (read-modify-write removal path).
func (s *GormStore) SetQuotes(id string, quotes []domain.Quote) error {
	raw, err := marshalList(quotes)
	if err != nil {
		return err
	}
	return s.updateEntitlement(id, map[string]any{
		"quotes":     raw,
		"updated_at": time.Now().UTC(),
	})
}

// SetLastPosition records where the reader stopped.
func (s *GormStore) SetLastPosition(id string, pos domain.ReadingPosition) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return s.updateEntitlement(id, map[string]any{
		"last_position": datatypes.JSON(raw),
		"updated_at":    time.Now().UTC(),
	})
}

func (s *GormStore) updateEntitlement(id string, updates map[string]any) error {
	tx := s.db.Model(&EntitlementModel{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreatePayment inserts a new payment attempt.
func (s *GormStore) CreatePayment(p domain.PaymentAttempt) error {
	model := paymentToModel(p)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicatePayment
		}
		return err
	}
	return nil
}

// GetByPidx resolves a payment attempt by gateway correlation id.
func (s *GormStore) GetByPidx(pidx string) (domain.PaymentAttempt, bool, error) {
	var model PaymentAttemptModel
	if err := s.db.First(&model, "pidx = ?", pidx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PaymentAttempt{}, false, nil
		}
		return domain.PaymentAttempt{}, false, err
	}
	return paymentFromModel(model), true, nil
}

// UpdateByPidx applies a partial update to the payment attempt.
func (s *GormStore) UpdateByPidx(pidx string, upd PaymentUpdate) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if upd.Status != nil {
		updates["status"] = string(*upd.Status)
	}
	if upd.TransactionID != nil {
		updates["transaction_id"] = *upd.TransactionID
	}
	if upd.LookupPayload != nil {
		updates["lookup_payload"] = datatypes.JSON(upd.LookupPayload)
	}
	if upd.IsProcessed != nil {
		updates["is_processed"] = *upd.IsProcessed
	}
	if upd.ProcessedAt != nil {
		updates["processed_at"] = upd.ProcessedAt.UTC()
	}
	if upd.EntitlementID != nil {
		updates["entitlement_id"] = *upd.EntitlementID
	}
	tx := s.db.Model(&PaymentAttemptModel{}).Where("pidx = ?", pidx).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveBook stores or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := BookModel{ID: b.ID, Title: b.Title, Author: b.Author, CreatedAt: b.CreatedAt}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "author"}),
	}).Create(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return domain.Book{ID: model.ID, Title: model.Title, Author: model.Author, CreatedAt: model.CreatedAt}, true, nil
}

// SearchBookIDs returns ids of books whose title or author matches the term.
func (s *GormStore) SearchBookIDs(term string) ([]string, error) {
	pattern := "%" + strings.TrimSpace(term) + "%"
	var ids []string
	err := s.db.Model(&BookModel{}).
		Where("title ILIKE ? OR author ILIKE ?", pattern, pattern).
		Pluck("id", &ids).Error
	return ids, err
}

// SaveUser stores or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := UserModel{ID: u.ID, Email: u.Email, Name: u.Name, Role: string(u.Role), CreatedAt: u.CreatedAt}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "role"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return domain.User{ID: model.ID, Email: model.Email, Name: model.Name, Role: domain.UserRole(model.Role), CreatedAt: model.CreatedAt}, true, nil
}

// SearchUserIDs returns ids of users whose email or name matches the term.
func (s *GormStore) SearchUserIDs(term string) ([]string, error) {
	pattern := "%" + strings.TrimSpace(term) + "%"
	var ids []string
	err := s.db.Model(&UserModel{}).
		Where("email ILIKE ? OR name ILIKE ?", pattern, pattern).
		Pluck("id", &ids).Error
	return ids, err
}

// Activate deactivates any previous pointer for the book and inserts the new
// active one, all inside a transaction.
func (s *GormStore) Activate(p domain.ContentPointer) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ContentPointerModel{}).
			Where("book_id = ? AND is_active = ?", p.BookID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		model := ContentPointerModel{
			ID:         p.ID,
			BookID:     p.BookID,
			PdfURL:     p.PdfURL,
			StorageKey: p.StorageKey,
			PageCount:  p.PageCount,
			IsActive:   true,
			CreatedAt:  p.CreatedAt,
		}
		return tx.Create(&model).Error
	})
}

// GetActiveContent returns the currently publishable pointer for a book.
func (s *GormStore) GetActiveContent(bookID string) (domain.ContentPointer, bool, error) {
	var model ContentPointerModel
	err := s.db.Where("book_id = ? AND is_active = ?", bookID, true).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ContentPointer{}, false, nil
		}
		return domain.ContentPointer{}, false, err
	}
	return domain.ContentPointer{
		ID:         model.ID,
		BookID:     model.BookID,
		PdfURL:     model.PdfURL,
		StorageKey: model.StorageKey,
		PageCount:  model.PageCount,
		IsActive:   model.IsActive,
		CreatedAt:  model.CreatedAt,
	}, true, nil
}

func pageOffset(page, size int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize(size)
}

func pageSize(size int) int {
	if size <= 0 {
		return 20
	}
	return size
}

func marshalList(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func entitlementToModel(e domain.Entitlement) (EntitlementModel, error) {
	bookmarks, err := marshalList(emptyIfNilBookmarks(e.Bookmarks))
	if err != nil {
		return EntitlementModel{}, err
	}
	quotes, err := marshalList(emptyIfNilQuotes(e.Quotes))
	if err != nil {
		return EntitlementModel{}, err
	}
	model := EntitlementModel{
		ID:        e.ID,
		UserID:    e.UserID,
		BookID:    e.BookID,
		RentedAt:  e.RentedAt,
		ExpiresAt: e.ExpiresAt,
		IsActive:  e.IsActive,
		PdfURL:    e.PdfURL,
		Bookmarks: bookmarks,
		Quotes:    quotes,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.LastPosition != nil {
		raw, err := json.Marshal(e.LastPosition)
		if err != nil {
			return EntitlementModel{}, err
		}
		model.LastPosition = datatypes.JSON(raw)
	}
	return model, nil
}

func entitlementFromModel(m EntitlementModel) domain.Entitlement {
	e := domain.Entitlement{
		ID:        m.ID,
		UserID:    m.UserID,
		BookID:    m.BookID,
		RentedAt:  m.RentedAt,
		ExpiresAt: m.ExpiresAt,
		IsActive:  m.IsActive,
		PdfURL:    m.PdfURL,
		Bookmarks: []domain.Bookmark{},
		Quotes:    []domain.Quote{},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Bookmarks) > 0 {
		_ = json.Unmarshal(m.Bookmarks, &e.Bookmarks)
	}
	if len(m.Quotes) > 0 {
		_ = json.Unmarshal(m.Quotes, &e.Quotes)
	}
	if len(m.LastPosition) > 0 {
		var pos domain.ReadingPosition
		if err := json.Unmarshal(m.LastPosition, &pos); err == nil {
			e.LastPosition = &pos
		}
	}
	return e
}

func entitlementsFromModels(models []EntitlementModel) []domain.Entitlement {
	res := make([]domain.Entitlement, 0, len(models))
	for _, m := range models {
		res = append(res, entitlementFromModel(m))
	}
	return res
}

func paymentToModel(p domain.PaymentAttempt) PaymentAttemptModel {
	model := PaymentAttemptModel{
		ID:            p.ID,
		UserID:        p.UserID,
		BookID:        p.BookID,
		Pidx:          p.Pidx,
		Amount:        p.Amount,
		OrderID:       p.OrderID,
		OrderName:     p.OrderName,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		IsProcessed:   p.IsProcessed,
		ProcessedAt:   p.ProcessedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if len(p.InitiatePayload) > 0 {
		model.InitiatePayload = datatypes.JSON(p.InitiatePayload)
	}
	if len(p.LookupPayload) > 0 {
		model.LookupPayload = datatypes.JSON(p.LookupPayload)
	}
	if p.EntitlementID != "" {
		id := p.EntitlementID
		model.EntitlementID = &id
	}
	return model
}

func paymentFromModel(m PaymentAttemptModel) domain.PaymentAttempt {
	p := domain.PaymentAttempt{
		ID:              m.ID,
		UserID:          m.UserID,
		BookID:          m.BookID,
		Pidx:            m.Pidx,
		Amount:          m.Amount,
		OrderID:         m.OrderID,
		OrderName:       m.OrderName,
		Status:          domain.PaymentStatus(m.Status),
		TransactionID:   m.TransactionID,
		InitiatePayload: []byte(m.InitiatePayload),
		LookupPayload:   []byte(m.LookupPayload),
		IsProcessed:     m.IsProcessed,
		ProcessedAt:     m.ProcessedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.EntitlementID != nil {
		p.EntitlementID = *m.EntitlementID
	}
	return p
}

func emptyIfNilBookmarks(b []domain.Bookmark) []domain.Bookmark {
	if b == nil {
		return []domain.Bookmark{}
	}
	return b
}

func emptyIfNilQuotes(q []domain.Quote) []domain.Quote {
	if q == nil {
		return []domain.Quote{}
	}
	return q
}
