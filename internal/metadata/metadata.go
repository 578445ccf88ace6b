// Package metadata looks up public book details by ISBN. It is used to show
// something useful for a scanned barcode before, or without, the backend
// knowing the book.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/multierr"

	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/isbn"
)

// ErrNotFound means no provider knows the ISBN.
var ErrNotFound = errors.New("book not found")

// ErrInvalidISBN is returned before any request is made.
var ErrInvalidISBN = errors.New("invalid ISBN")

// BookMetadata contains book information from a public catalogue.
type BookMetadata struct {
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	ISBN13          string `json:"isbn13,omitempty"`
	ISBN10          string `json:"isbn10,omitempty"`
	Thumbnail       string `json:"thumbnail,omitempty"`
	Publisher       string `json:"publisher,omitempty"`
	PublicationYear int    `json:"publication_year,omitempty"`
	Description     string `json:"description,omitempty"`
	PageCount       int    `json:"page_count,omitempty"`
	Source          string `json:"source"`
}

// Book converts the metadata into a collection entry without a server id.
func (m BookMetadata) Book() entities.Book {
	return entities.Book{
		Title:     m.Title,
		Author:    m.Author,
		ISBN13:    m.ISBN13,
		ISBN10:    m.ISBN10,
		Thumbnail: m.Thumbnail,
	}
}

// Provider looks books up in one catalogue.
type Provider interface {
	Name() string
	LookupISBN(ctx context.Context, isbn13 string) (*BookMetadata, error)
}

// Lookup queries providers in order and returns the first hit.
type Lookup struct {
	providers []Provider
	logger    *slog.Logger
}

// NewLookup creates a Lookup that tries providers in the given order.
func NewLookup(logger *slog.Logger, providers ...Provider) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{providers: providers, logger: logger}
}

// LookupISBN accepts ISBN-13 or ISBN-10 input, hyphenated or not.
func (l *Lookup) LookupISBN(ctx context.Context, raw string) (*BookMetadata, error) {
	code, ok := isbn.Canonical(raw)
	if !ok {
		return nil, ErrInvalidISBN
	}

	var errs error
	for _, p := range l.providers {
		meta, err := p.LookupISBN(ctx, code)
		if err == nil {
			return meta, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			l.logger.Warn("metadata provider failed", "provider", p.Name(), "isbn", code, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}

	if errs != nil {
		return nil, errs
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
}

// Fill copies title, author and thumbnail into book where it has none.
func Fill(book entities.Book, meta *BookMetadata) entities.Book {
	if meta == nil {
		return book
	}
	if book.Title == "" {
		book.Title = meta.Title
	}
	if book.Author == "" {
		book.Author = meta.Author
	}
	if book.Thumbnail == "" {
		book.Thumbnail = meta.Thumbnail
	}
	if book.ISBN10 == "" {
		book.ISBN10 = meta.ISBN10
	}
	return book
}

// secureURL upgrades plain http image links, which mixed-content clients refuse.
func secureURL(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
