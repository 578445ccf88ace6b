package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/shelfscan/internal/entities"
)

const volumeResponse = `{
  "totalItems": 1,
  "items": [{
    "volumeInfo": {
      "title": "Effective Go",
      "authors": ["A. Gopher", "B. Gopher"],
      "publisher": "Example Press",
      "publishedDate": "2015-03",
      "pageCount": 300,
      "industryIdentifiers": [
        {"type": "ISBN_10", "identifier": "0134190440"},
        {"type": "ISBN_13", "identifier": "9780134190440"}
      ],
      "imageLinks": {"smallThumbnail": "http://books.google.com/thumb?id=1"}
    }
  }]
}`

func TestGoogleBooksLookupISBN(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		if query == "isbn:9780134190440" {
			_, _ = w.Write([]byte(volumeResponse))
			return
		}
		_, _ = w.Write([]byte(`{"totalItems": 0}`))
	}))
	defer server.Close()

	client := NewGoogleBooksClient(server.URL, 0, "test")

	t.Run("found", func(t *testing.T) {
		meta, err := client.LookupISBN(context.Background(), "9780134190440")
		require.NoError(t, err)
		assert.Equal(t, "isbn:9780134190440", query)
		assert.Equal(t, "Effective Go", meta.Title)
		assert.Equal(t, "A. Gopher, B. Gopher", meta.Author)
		assert.Equal(t, "0134190440", meta.ISBN10)
		assert.Equal(t, 2015, meta.PublicationYear)
		assert.Equal(t, "https://books.google.com/thumb?id=1", meta.Thumbnail)
		assert.Equal(t, "googlebooks", meta.Source)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.LookupISBN(context.Background(), "9780306406157")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

type stubProvider struct {
	name  string
	meta  *BookMetadata
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) LookupISBN(context.Context, string) (*BookMetadata, error) {
	s.calls++
	return s.meta, s.err
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to the next provider", func(t *testing.T) {
		first := &stubProvider{name: "first", err: ErrNotFound}
		second := &stubProvider{name: "second", meta: &BookMetadata{Title: "Found"}}
		l := NewLookup(nil, first, second)

		meta, err := l.LookupISBN(ctx, "978-0-13-419044-0")
		require.NoError(t, err)
		assert.Equal(t, "Found", meta.Title)
		assert.Equal(t, 1, first.calls)
	})

	t.Run("accepts ISBN-10 input", func(t *testing.T) {
		p := &stubProvider{name: "p", meta: &BookMetadata{Title: "X"}}
		_, err := NewLookup(nil, p).LookupISBN(ctx, "0306406152")
		require.NoError(t, err)
	})

	t.Run("invalid input makes no request", func(t *testing.T) {
		p := &stubProvider{name: "p"}
		_, err := NewLookup(nil, p).LookupISBN(ctx, "1234567890123")
		assert.ErrorIs(t, err, ErrInvalidISBN)
		assert.Equal(t, 0, p.calls)
	})

	t.Run("all misses", func(t *testing.T) {
		l := NewLookup(nil, &stubProvider{name: "a", err: ErrNotFound}, &stubProvider{name: "b", err: ErrNotFound})
		_, err := l.LookupISBN(ctx, "9780134190440")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("provider failures are aggregated", func(t *testing.T) {
		boom := errors.New("boom")
		l := NewLookup(nil, &stubProvider{name: "a", err: boom}, &stubProvider{name: "b", err: ErrNotFound})
		_, err := l.LookupISBN(ctx, "9780134190440")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestFill(t *testing.T) {
	book := entities.Book{ID: "1", Title: "Kept", ISBN13: "9780134190440"}
	filled := Fill(book, &BookMetadata{Title: "Ignored", Author: "Someone", Thumbnail: "https://x/y.jpg"})

	assert.Equal(t, "Kept", filled.Title)
	assert.Equal(t, "Someone", filled.Author)
	assert.Equal(t, "https://x/y.jpg", filled.Thumbnail)
	assert.Equal(t, book, Fill(book, nil))
}
