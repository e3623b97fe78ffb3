package store

import (
	"strings"
	"sync"
	"time"

	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
)

// MemoryStore keeps all records in-process. It enforces the same
// (userID, bookID) uniqueness rule as the database so coordinator tests
// exercise the real constraint-and-reconcile path.
type MemoryStore struct {
	mu           sync.RWMutex
	entitlements map[string]domain.Entitlement
	entOrder     []string
	pairIndex    map[string]string // userID+"/"+bookID -> entitlement ID
	payments     map[string]domain.PaymentAttempt // keyed by pidx
	books        map[string]domain.Book
	users        map[string]domain.User
	content      map[string]domain.ContentPointer // keyed by bookID, active pointer only
	sess         map[string]string                // token -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entitlements: make(map[string]domain.Entitlement),
		pairIndex:    make(map[string]string),
		payments:     make(map[string]domain.PaymentAttempt),
		books:        make(map[string]domain.Book),
		users:        make(map[string]domain.User),
		content:      make(map[string]domain.ContentPointer),
		sess:         make(map[string]string),
	}
}

func pairKey(userID, bookID string) string {
	return userID + "/" + bookID
}

// Create inserts a row, failing with ErrDuplicateEntitlement when the pair
// already has one.
func (m *MemoryStore) Create(e domain.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(e.UserID, e.BookID)
	if _, exists := m.pairIndex[key]; exists {
		return ErrDuplicateEntitlement
	}
	m.entitlements[e.ID] = copyEntitlement(e)
	m.entOrder = append(m.entOrder, e.ID)
	m.pairIndex[key] = e.ID
	return nil
}

// Get retrieves an entitlement by id.
func (m *MemoryStore) Get(id string) (domain.Entitlement, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entitlements[id]
	if !ok {
		return domain.Entitlement{}, false, nil
	}
	return copyEntitlement(e), true, nil
}

// GetActive returns the row flagged active for the pair.
func (m *MemoryStore) GetActive(userID, bookID string) (domain.Entitlement, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.pairIndex[pairKey(userID, bookID)]
	if !ok {
		return domain.Entitlement{}, false, nil
	}
	e := m.entitlements[id]
	if !e.IsActive {
		return domain.Entitlement{}, false, nil
	}
	return copyEntitlement(e), true, nil
}

// GetLatest returns the row for the pair regardless of state.
func (m *MemoryStore) GetLatest(userID, bookID string) (domain.Entitlement, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.pairIndex[pairKey(userID, bookID)]
	if !ok {
		return domain.Entitlement{}, false, nil
	}
	return copyEntitlement(m.entitlements[id]), true, nil
}

// Update applies a partial edit.
func (m *MemoryStore) Update(id string, upd EntitlementUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return ErrNotFound
	}
	if upd.RentedAt != nil {
		e.RentedAt = upd.RentedAt.UTC()
	}
	if upd.ClearExpiry {
		e.ExpiresAt = nil
	} else if upd.ExpiresAt != nil {
		t := upd.ExpiresAt.UTC()
		e.ExpiresAt = &t
	}
	if upd.IsActive != nil {
		e.IsActive = *upd.IsActive
	}
	e.UpdatedAt = time.Now().UTC()
	m.entitlements[id] = e
	return nil
}

// Renew reopens the row in place; annotations are untouched.
func (m *MemoryStore) Renew(id string, rentedAt time.Time, expiresAt *time.Time, pdfURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return ErrNotFound
	}
	e.RentedAt = rentedAt.UTC()
	if expiresAt != nil {
		t := expiresAt.UTC()
		e.ExpiresAt = &t
	} else {
		e.ExpiresAt = nil
	}
	e.IsActive = true
	e.PdfURL = pdfURL
	e.UpdatedAt = time.Now().UTC()
	m.entitlements[id] = e
	return nil
}

// Delete removes a row.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return nil
	}
	delete(m.entitlements, id)
	delete(m.pairIndex, pairKey(e.UserID, e.BookID))
	filtered := m.entOrder[:0]
	for _, item := range m.entOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.entOrder = filtered
	return nil
}

// List returns a page of entitlements, newest first.
func (m *MemoryStore) List(f EntitlementListFilter) ([]domain.Entitlement, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bookSet := toSet(f.BookIDs)
	userSet := toSet(f.UserIDs)
	filtered := make([]domain.Entitlement, 0, len(m.entOrder))
	for i := len(m.entOrder) - 1; i >= 0; i-- {
		e, ok := m.entitlements[m.entOrder[i]]
		if !ok {
			continue
		}
		if bookSet != nil || userSet != nil {
			if !bookSet[e.BookID] && !userSet[e.UserID] {
				continue
			}
		}
		filtered = append(filtered, copyEntitlement(e))
	}
	return paginate(filtered, f.Page, f.Size), int64(len(filtered)), nil
}

// ListForUser returns one user's entitlements, newest first.
func (m *MemoryStore) ListForUser(userID string, page, size int) ([]domain.Entitlement, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	filtered := make([]domain.Entitlement, 0)
	for i := len(m.entOrder) - 1; i >= 0; i-- {
		e, ok := m.entitlements[m.entOrder[i]]
		if ok && e.UserID == userID {
			filtered = append(filtered, copyEntitlement(e))
		}
	}
	return paginate(filtered, page, size), int64(len(filtered)), nil
}

// AppendBookmark appends under the store lock, mirroring the database-side
// atomic append.
func (m *MemoryStore) AppendBookmark(id string, b domain.Bookmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return ErrNotFound
	}
	e.Bookmarks = append(e.Bookmarks, b)
	e.UpdatedAt = time.Now().UTC()
	m.entitlements[id] = e
	return nil
}

// AppendQuote appends under the store lock.
func (m *MemoryStore) AppendQuote(id string, q domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return ErrNotFound
	}
	e.Quotes = append(e.Quotes, q)
	e.UpdatedAt = time.Now().UTC()
	m.entitlements[id] = e
	return nil
}

// SetBookmarks writes the whole list back.
func (m *MemoryStore) SetBookmarks(id string, bookmarks []domain.Bookmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return ErrNotFound
	}
	e.Bookmarks = append([]domain.Bookmark(nil), bookmarks...)
	e.UpdatedAt = time.Now().UTC()
	m.entitlements[id] = e
	return nil
}

// SetQuotes writes the whole list back.
func (m *MemoryStore) SetQuotes(id string, quotes []domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return ErrNotFound
	}
	e.Quotes = append([]domain.Quote(nil), quotes...)
	e.UpdatedAt = time.Now().UTC()
	m.entitlements[id] = e
	return nil
}

// SetLastPosition records where the reader stopped.
func (m *MemoryStore) SetLastPosition(id string, pos domain.ReadingPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return ErrNotFound
	}
	p := pos
	e.LastPosition = &p
	e.UpdatedAt = time.Now().UTC()
	m.entitlements[id] = e
	return nil
}

// CreatePayment inserts a payment attempt keyed by pidx.
func (m *MemoryStore) CreatePayment(p domain.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[p.Pidx]; exists {
		return ErrDuplicatePayment
	}
	m.payments[p.Pidx] = p
	return nil
}

// GetByPidx resolves a payment attempt.
func (m *MemoryStore) GetByPidx(pidx string) (domain.PaymentAttempt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[pidx]
	return p, ok, nil
}

// UpdateByPidx applies a partial update.
func (m *MemoryStore) UpdateByPidx(pidx string, upd PaymentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[pidx]
	if !ok {
		return ErrNotFound
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.TransactionID != nil {
		p.TransactionID = *upd.TransactionID
	}
	if upd.LookupPayload != nil {
		p.LookupPayload = append([]byte(nil), upd.LookupPayload...)
	}
	if upd.IsProcessed != nil {
		p.IsProcessed = *upd.IsProcessed
	}
	if upd.ProcessedAt != nil {
		t := upd.ProcessedAt.UTC()
		p.ProcessedAt = &t
	}
	if upd.EntitlementID != nil {
		p.EntitlementID = *upd.EntitlementID
	}
	p.UpdatedAt = time.Now().UTC()
	m.payments[pidx] = p
	return nil
}

// SaveBook stores or replaces a book.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// SearchBookIDs matches title or author, case-insensitive.
func (m *MemoryStore) SearchBookIDs(term string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(term))
	ids := make([]string, 0)
	for _, b := range m.books {
		if strings.Contains(strings.ToLower(b.Title), needle) ||
			strings.Contains(strings.ToLower(b.Author), needle) {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

// SaveUser registers a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SearchUserIDs matches email or name, case-insensitive.
func (m *MemoryStore) SearchUserIDs(term string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(term))
	ids := make([]string, 0)
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Email), needle) ||
			strings.Contains(strings.ToLower(u.Name), needle) {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// Activate replaces the book's active content pointer.
func (m *MemoryStore) Activate(p domain.ContentPointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.IsActive = true
	m.content[p.BookID] = p
	return nil
}

// GetActiveContent returns the currently publishable pointer for a book.
func (m *MemoryStore) GetActiveContent(bookID string) (domain.ContentPointer, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.content[bookID]
	return p, ok, nil
}

// NewSession creates an opaque session token for a user.
func (m *MemoryStore) NewSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := NewID()
	m.sess[token] = userID
	return token, nil
}

// GetUserIDByToken resolves a token to a user ID.
func (m *MemoryStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.sess[token]
	return uid, ok, nil
}

// DeleteSession removes a token mapping.
func (m *MemoryStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}

func copyEntitlement(e domain.Entitlement) domain.Entitlement {
	out := e
	out.Bookmarks = append([]domain.Bookmark(nil), e.Bookmarks...)
	out.Quotes = append([]domain.Quote(nil), e.Quotes...)
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	if e.LastPosition != nil {
		p := *e.LastPosition
		out.LastPosition = &p
	}
	return out
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func paginate(items []domain.Entitlement, page, size int) []domain.Entitlement {
	offset := pageOffset(page, size)
	if offset >= len(items) {
		return []domain.Entitlement{}
	}
	end := offset + pageSize(size)
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
