// Package library ties the scanner, the sync client and the collection
// mirror together into the operations the CLI and the companion API expose.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mrlokans/shelfscan/internal/backend"
	"github.com/mrlokans/shelfscan/internal/collection"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/isbn"
	"github.com/mrlokans/shelfscan/internal/metadata"
	"github.com/mrlokans/shelfscan/internal/scanner"
	"github.com/mrlokans/shelfscan/internal/tagging"
	"github.com/mrlokans/shelfscan/internal/workers"
)

var (
	// ErrBookNotFound means no mirrored book matches the given key.
	ErrBookNotFound = errors.New("book not found in collection")

	// ErrLookupDisabled is returned by Lookup when no metadata source is configured.
	ErrLookupDisabled = errors.New("metadata lookup is disabled")

	// ErrNoHistory is returned when scan history is not persisted.
	ErrNoHistory = errors.New("scan history is not available")
)

// Library is the application service behind every user-facing command.
type Library struct {
	account    Account
	collection Collection
	tagger     Tagger
	dedup      *scanner.Deduplicator
	history    ScanHistory
	lookup     MetadataLookup
	autoTags   []string
	logger     *slog.Logger
}

// Option configures a Library.
type Option func(*Library)

// WithHistory persists every scan.
func WithHistory(h ScanHistory) Option {
	return func(l *Library) {
		l.history = h
	}
}

// WithMetadata enables ISBN lookups and fills display details the server
// left empty.
func WithMetadata(m MetadataLookup) Option {
	return func(l *Library) {
		l.lookup = m
	}
}

// WithAutoTags tags every book added by a scan with names.
func WithAutoTags(names ...string) Option {
	return func(l *Library) {
		l.autoTags = names
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		l.logger = logger
	}
}

// New creates a Library.
func New(account Account, coll Collection, tagger Tagger, dedup *scanner.Deduplicator, opts ...Option) *Library {
	l := &Library{
		account:    account,
		collection: coll,
		tagger:     tagger,
		dedup:      dedup,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.dedup == nil {
		l.dedup = scanner.NewDeduplicator()
	}
	return l
}

// Start loads the collection for a signed-in user, honoring the default tag
// filter from the user's preferences. Without a session it does nothing.
func (l *Library) Start(ctx context.Context) error {
	session, ok := l.account.Session(ctx)
	if !ok {
		l.logger.Info("not signed in, collection not loaded")
		return nil
	}
	l.logger.Info("loading collection", "session", session)

	prefs, err := l.account.GetPreferences(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthenticated) {
			return err
		}
		l.logger.Warn("failed to load preferences, showing every book", "error", err)
		return l.Resync(ctx)
	}

	if err := l.collection.FilterByTags(ctx, prefs.DefaultTagIDs); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	l.seedScanner()
	return nil
}

// Resync reloads books and tags from the server with the current filter.
func (l *Library) Resync(ctx context.Context) error {
	if _, ok := l.account.Session(ctx); !ok {
		return backend.ErrUnauthenticated
	}
	if err := l.collection.Refresh(ctx); err != nil {
		return err
	}
	l.seedScanner()
	return nil
}

// seedScanner marks owned books as already scanned.
func (l *Library) seedScanner() {
	books := l.collection.Books()
	isbns := make([]string, 0, len(books))
	for _, b := range books {
		if b.ISBN13 != "" {
			isbns = append(isbns, b.ISBN13)
		}
	}
	l.dedup.Seed(isbns...)
}

// SignIn exchanges an identity assertion for a session and loads the
// collection.
func (l *Library) SignIn(ctx context.Context, assertion string) (entities.Session, error) {
	session, err := l.account.SignIn(ctx, assertion)
	if err != nil {
		return entities.Session{}, err
	}
	if err := l.Start(ctx); err != nil {
		l.logger.Warn("signed in but failed to load collection", "error", err)
	}
	return session, nil
}

// SignInSilently signs in without user interaction when the identity
// provider can supply an assertion on its own.
func (l *Library) SignInSilently(ctx context.Context) (entities.Session, error) {
	session, err := l.account.SignInSilently(ctx)
	if err != nil {
		return entities.Session{}, err
	}
	if err := l.Start(ctx); err != nil {
		l.logger.Warn("signed in but failed to load collection", "error", err)
	}
	return session, nil
}

// SignOut forgets the credential and everything mirrored for the user.
func (l *Library) SignOut(ctx context.Context) error {
	if err := l.account.SignOut(ctx); err != nil {
		return err
	}
	l.dedup.Reset()
	return l.collection.Clear()
}

// Profile returns the signed-in user's session.
func (l *Library) Profile(ctx context.Context) (entities.Session, bool) {
	return l.account.Session(ctx)
}

// Books returns the mirrored books.
func (l *Library) Books() []entities.Book {
	return l.collection.Books()
}

// Book returns the mirrored book matching key: a server id, an ISBN or a
// prefixed key.
func (l *Library) Book(key string) (entities.Book, bool) {
	return l.collection.Find(key)
}

// Tags returns the known tags.
func (l *Library) Tags() []entities.Tag {
	return l.collection.Tags()
}

// Filter returns the tag ids the collection is filtered by.
func (l *Library) Filter() []string {
	return l.collection.Filter()
}

// Subscribe streams changes to the mirrored collection until the returned
// func is called.
func (l *Library) Subscribe() (<-chan collection.Change, func()) {
	return l.collection.Subscribe()
}

// FilterByTags reloads the collection with only books carrying every tag id.
func (l *Library) FilterByTags(ctx context.Context, tagIDs []string) ([]entities.Book, error) {
	if err := l.collection.FilterByTags(ctx, tagIDs); err != nil {
		return nil, err
	}
	return l.collection.Books(), nil
}

// AddBook adds a book by ISBN. Hyphenated input and ISBN-10 are accepted.
func (l *Library) AddBook(ctx context.Context, raw string) (entities.Book, error) {
	code, ok := isbn.Canonical(raw)
	if !ok {
		return entities.Book{}, fmt.Errorf("%w: %q", metadata.ErrInvalidISBN, raw)
	}
	book, err := workers.Await(ctx, l.collection.Add(ctx, code))
	if err != nil {
		return entities.Book{}, err
	}
	l.dedup.Seed(code)
	return book, nil
}

// CreateBook adds a book the server cannot look up by barcode.
func (l *Library) CreateBook(ctx context.Context, nb entities.NewBook) (entities.Book, error) {
	nb.Title = strings.TrimSpace(nb.Title)
	if nb.Title == "" {
		return entities.Book{}, errors.New("title is required")
	}
	if nb.ISBN != "" {
		code, ok := isbn.Canonical(nb.ISBN)
		if !ok {
			return entities.Book{}, fmt.Errorf("%w: %q", metadata.ErrInvalidISBN, nb.ISBN)
		}
		nb.ISBN = code
	}
	return workers.Await(ctx, l.collection.Create(ctx, nb))
}

// RemoveBook deletes the book matching key. The book disappears locally at
// once and comes back if the server refuses.
func (l *Library) RemoveBook(ctx context.Context, key string) error {
	book, ok := l.collection.Find(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBookNotFound, key)
	}
	select {
	case err := <-l.collection.Remove(ctx, book):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// findAll resolves keys to mirrored books.
func (l *Library) findAll(keys []string) ([]entities.Book, error) {
	books := make([]entities.Book, 0, len(keys))
	for _, key := range keys {
		book, ok := l.collection.Find(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBookNotFound, key)
		}
		books = append(books, book)
	}
	return books, nil
}

// TagBooks gives every book matching keys exactly the named tags.
func (l *Library) TagBooks(ctx context.Context, keys, names []string) (tagging.Report, error) {
	books, err := l.findAll(keys)
	if err != nil {
		return tagging.Report{}, err
	}
	return l.tagger.Apply(ctx, books, names)
}

// CommonTags returns the tag names shared by every book matching keys.
func (l *Library) CommonTags(keys []string) ([]string, error) {
	books, err := l.findAll(keys)
	if err != nil {
		return nil, err
	}
	return tagging.CommonTagNames(books), nil
}

// Preferences returns the server-side user preferences.
func (l *Library) Preferences(ctx context.Context) (entities.UserPreference, error) {
	return l.account.GetPreferences(ctx)
}

// UpdatePreferences stores the default tag filter and applies it.
func (l *Library) UpdatePreferences(ctx context.Context, tagIDs []string) (entities.UserPreference, error) {
	prefs, err := l.account.UpdatePreferences(ctx, tagIDs)
	if err != nil {
		return entities.UserPreference{}, err
	}
	if err := l.collection.FilterByTags(ctx, prefs.DefaultTagIDs); err != nil {
		l.logger.Warn("preferences saved but reload failed", "error", err)
	}
	return prefs, nil
}

// Lookup fetches public metadata for an ISBN without touching the collection.
func (l *Library) Lookup(ctx context.Context, raw string) (*metadata.BookMetadata, error) {
	if l.lookup == nil {
		return nil, ErrLookupDisabled
	}
	return l.lookup.LookupISBN(ctx, raw)
}

// History returns the latest scans, newest first.
func (l *Library) History(ctx context.Context, limit int) ([]entities.ScanRecord, error) {
	if l.history == nil {
		return nil, ErrNoHistory
	}
	return l.history.Recent(ctx, limit)
}

// HistorySummary counts scans per outcome.
func (l *Library) HistorySummary(ctx context.Context) (map[entities.ScanOutcome]int64, error) {
	if l.history == nil {
		return nil, ErrNoHistory
	}
	return l.history.CountByOutcome(ctx)
}
