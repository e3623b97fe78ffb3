package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

type fakeObjects struct {
	puts map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.puts[key] = data
	return nil
}

func (f *fakeObjects) PublicURL(key string) string {
	return "https://cdn.example/" + key
}

func newTestCatalog(t *testing.T) (*Catalog, *store.MemoryStore, *fakeObjects) {
	t.Helper()
	mem := store.NewMemoryStore()
	objects := newFakeObjects()
	c, err := New(Config{Content: mem, Objects: objects})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, mem, objects
}

func TestPublishRejectsNonPDF(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	_, err := c.Publish(context.Background(), "b1", "notes.txt", strings.NewReader("just text"), 9)
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("error = %v, want ErrNotPDF", err)
	}
}

func TestPublishRejectsEmptyDocument(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	_, err := c.Publish(context.Background(), "b1", "empty.pdf", bytes.NewReader(nil), 0)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("error = %v, want ErrEmptyDocument", err)
	}
}

func TestPublishRequiresBookID(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	_, err := c.Publish(context.Background(), "  ", "a.pdf", strings.NewReader("x"), 1)
	if err == nil {
		t.Fatalf("expected error for blank bookID")
	}
}

func TestActiveContentMissing(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	if _, ok, err := c.ActiveContent("b1"); ok || err != nil {
		t.Fatalf("ok=%v err=%v, want no pointer", ok, err)
	}
}

func TestBuildStorageKeyNamespacesByPointer(t *testing.T) {
	key := buildStorageKey("b1", "p1", "My Book (final).pdf")
	if key != "content/b1/p1/My_Book_final_.pdf" {
		t.Fatalf("key = %q", key)
	}
	other := buildStorageKey("b1", "p2", "My Book (final).pdf")
	if key == other {
		t.Fatalf("republishing the same filename must never reuse a key")
	}
}

func TestBuildStorageKeyFallbackName(t *testing.T) {
	key := buildStorageKey("b1", "p1", "///")
	if key != "content/b1/p1/document.pdf" {
		t.Fatalf("key = %q, want fallback name", key)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain.pdf", "plain.pdf"},
		{"with space.pdf", "with_space.pdf"},
		{"ünïcödé.pdf", "n_c_d_.pdf"},
		{"a&&&b.pdf", "a_b.pdf"},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
