// Package catalog manages per-book content pointers: which document a book
// currently publishes, and where it lives in object storage.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/Garima-Shrestha/novella-sub000/pkg/domain"
	"github.com/Garima-Shrestha/novella-sub000/pkg/storage"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

var (
	// ErrNotPDF reports that the uploaded document could not be parsed as a PDF.
	ErrNotPDF = errors.New("document is not a valid PDF")
	// ErrEmptyDocument reports a document with no pages or no bytes.
	ErrEmptyDocument = errors.New("document is empty")
)

const maxDocumentBytes = 100 << 20

// Catalog publishes book documents and resolves active content pointers.
type Catalog struct {
	content store.ContentStore
	objects storage.ObjectStore
	now     func() time.Time
}

// Config wires the catalog's store and object storage.
type Config struct {
	Content store.ContentStore
	Objects storage.ObjectStore
	Now     func() time.Time
}

// New constructs the catalog.
func New(cfg Config) (*Catalog, error) {
	if cfg.Content == nil {
		return nil, fmt.Errorf("content store required")
	}
	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Catalog{content: cfg.Content, objects: cfg.Objects, now: now}, nil
}

// Publish validates and stores a new document for the book, then switches the
// book's active pointer to it. Previously granted entitlements keep their
// snapshot of the old URL; the old object stays in place.
func (c *Catalog) Publish(ctx context.Context, bookID, filename string, r io.Reader, size int64) (domain.ContentPointer, error) {
	if strings.TrimSpace(bookID) == "" {
		return domain.ContentPointer{}, fmt.Errorf("bookID required")
	}
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes))
	if err != nil {
		return domain.ContentPointer{}, fmt.Errorf("read document: %w", err)
	}
	if len(data) == 0 {
		return domain.ContentPointer{}, ErrEmptyDocument
	}
	pageCount, err := validatePDF(data)
	if err != nil {
		return domain.ContentPointer{}, err
	}

	pointerID := store.NewID()
	key := buildStorageKey(bookID, pointerID, filename)
	if err := c.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return domain.ContentPointer{}, fmt.Errorf("store document: %w", err)
	}
	pointer := domain.ContentPointer{
		ID:         pointerID,
		BookID:     bookID,
		PdfURL:     c.objects.PublicURL(key),
		StorageKey: key,
		PageCount:  pageCount,
		IsActive:   true,
		CreatedAt:  c.now().UTC(),
	}
	if err := c.content.Activate(pointer); err != nil {
		return domain.ContentPointer{}, fmt.Errorf("activate pointer: %w", err)
	}
	return pointer, nil
}

// ActiveContent resolves the currently publishable pointer for a book.
func (c *Catalog) ActiveContent(bookID string) (domain.ContentPointer, bool, error) {
	return c.content.GetActiveContent(bookID)
}

func validatePDF(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, ErrNotPDF
	}
	pages := reader.NumPage()
	if pages < 1 {
		return 0, ErrEmptyDocument
	}
	return pages, nil
}

// buildStorageKey namespaces documents by book and pointer id so republishing
// never overwrites an object a snapshot may still reference.
func buildStorageKey(bookID, pointerID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "document.pdf"
	}
	return path.Join("content", bookID, pointerID, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
