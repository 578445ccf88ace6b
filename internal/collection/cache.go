// Package collection is the local mirror of the user's books and tags.
//
// A single owner goroutine (Run) holds the state. Reads and mutations are
// commands processed in one total order; network calls run on the worker
// pool and their outcomes come back as commands, so nothing outside the owner
// ever touches the mirror. Mutations apply locally first and are confirmed
// or rolled back when the server answers.
package collection

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/workers"
)

// ErrClosed is returned once the owner goroutine has stopped.
var ErrClosed = errors.New("collection cache is not running")

const (
	commandBuffer    = 64
	subscriberBuffer = 64
)

// Backend is the server side of the mirror.
type Backend interface {
	ListBooks(ctx context.Context, tagIDs []string) ([]entities.Book, error)
	ListTags(ctx context.Context) ([]entities.Tag, error)
	AddBook(ctx context.Context, isbn string) (entities.Book, error)
	CreateBook(ctx context.Context, nb entities.NewBook) (entities.Book, error)
	DeleteBook(ctx context.Context, id string) error
	SetBookTags(ctx context.Context, id string, names []string) error
}

// Cache is the Optimistic Collection Cache.
type Cache struct {
	api    Backend
	pool   *workers.Pool
	logger *slog.Logger

	cmds    chan func()
	stopped chan struct{}

	// Owner-only state below.
	books      []entities.Book
	tags       []entities.Tag
	filter     []string
	wantFilter []string // latest requested filter, possibly still loading
	seq        *sequencer
	pending    map[*mutation]struct{}
	reloadSeq  uint64
	reloadDone uint64
	subs       map[int]chan Change
	nextSub    int
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a Cache. Nothing is processed until Run is called.
func New(api Backend, pool *workers.Pool, opts ...Option) *Cache {
	c := &Cache{
		api:     api,
		pool:    pool,
		logger:  slog.Default(),
		cmds:    make(chan func(), commandBuffer),
		stopped: make(chan struct{}),
		seq:     newSequencer(),
		pending: make(map[*mutation]struct{}),
		subs:    make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes commands until ctx ends. Call it exactly once.
func (c *Cache) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			if n := len(c.pending); n > 0 {
				c.logger.Warn("collection cache stopped with unconfirmed mutations", "pending", n)
			}
			return nil
		case cmd := <-c.cmds:
			cmd()
		}
	}
}

// Stopped is closed when Run returns.
func (c *Cache) Stopped() <-chan struct{} {
	return c.stopped
}

// exec runs fn on the owner and waits for it. Never call from inside a command.
func (c *Cache) exec(fn func()) error {
	done := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(done) }:
	case <-c.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrClosed
	}
}

// post queues fn on the owner without waiting.
func (c *Cache) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

// AddOrReplace inserts book, or replaces the entry with the same identity.
func (c *Cache) AddOrReplace(book entities.Book) error {
	return c.exec(func() {
		c.upsert(book)
		c.emit(Change{Kind: ChangeUpserted, Book: book.Clone()})
	})
}

// Books returns a copy of the mirrored books.
func (c *Cache) Books() []entities.Book {
	var out []entities.Book
	_ = c.exec(func() {
		out = make([]entities.Book, 0, len(c.books))
		for _, b := range c.books {
			out = append(out, b.Clone())
		}
	})
	return out
}

// Tags returns a copy of the known tags.
func (c *Cache) Tags() []entities.Tag {
	var out []entities.Tag
	_ = c.exec(func() {
		out = slices.Clone(c.tags)
	})
	return out
}

// Filter returns the tag ids the mirror is currently filtered by.
func (c *Cache) Filter() []string {
	var out []string
	_ = c.exec(func() {
		out = slices.Clone(c.filter)
	})
	return out
}

// Len returns the number of mirrored books.
func (c *Cache) Len() int {
	var n int
	_ = c.exec(func() {
		n = len(c.books)
	})
	return n
}

// Pending returns the number of unconfirmed optimistic mutations.
func (c *Cache) Pending() int {
	var n int
	_ = c.exec(func() {
		n = len(c.pending)
	})
	return n
}

// Find looks a book up by key: "id:<id>", "isbn:<isbn13>", or a bare
// server id or ISBN.
func (c *Cache) Find(key string) (entities.Book, bool) {
	var (
		book  entities.Book
		found bool
	)
	_ = c.exec(func() {
		for _, b := range c.books {
			if matchesKey(b, key) {
				book, found = b.Clone(), true
				return
			}
		}
	})
	return book, found
}

func matchesKey(b entities.Book, key string) bool {
	switch {
	case strings.HasPrefix(key, "id:"):
		return b.ID != "" && b.ID == strings.TrimPrefix(key, "id:")
	case strings.HasPrefix(key, "isbn:"):
		return b.ISBN13 != "" && b.ISBN13 == strings.TrimPrefix(key, "isbn:")
	default:
		return key != "" && (b.ID == key || b.ISBN13 == key || b.ISBN10 == key)
	}
}

// SetTags replaces the known tags.
func (c *Cache) SetTags(tags []entities.Tag) error {
	return c.exec(func() {
		c.tags = slices.Clone(tags)
		c.emit(Change{Kind: ChangeTags})
	})
}

// AddTag adds or replaces a tag, matching by id or name.
func (c *Cache) AddTag(tag entities.Tag) error {
	return c.exec(func() {
		for i, t := range c.tags {
			if (tag.ID != "" && t.ID == tag.ID) || entities.SameTagName(t.Name, tag.Name) {
				c.tags[i] = tag
				c.emit(Change{Kind: ChangeTags})
				return
			}
		}
		c.tags = append(c.tags, tag)
		c.emit(Change{Kind: ChangeTags})
	})
}

// upsert replaces every entry with the identity of book by book. Owner-only.
func (c *Cache) upsert(book entities.Book) {
	book = book.Clone()
	replaced := false
	kept := c.books[:0]
	for _, b := range c.books {
		if !entities.SameBook(b, book) {
			kept = append(kept, b)
			continue
		}
		if !replaced {
			kept = append(kept, book)
			replaced = true
		}
	}
	c.books = kept
	if !replaced {
		c.books = append(c.books, book)
	}
}

// take removes every entry with the identity of book and returns the first.
// Owner-only.
func (c *Cache) take(book entities.Book) (entities.Book, bool) {
	var (
		removed entities.Book
		found   bool
	)
	kept := c.books[:0]
	for _, b := range c.books {
		if entities.SameBook(b, book) {
			if !found {
				removed, found = b, true
			}
			continue
		}
		kept = append(kept, b)
	}
	c.books = kept
	return removed, found
}

// lookup returns the index of the entry with the identity of book, or -1.
// Owner-only.
func (c *Cache) lookup(book entities.Book) int {
	return slices.IndexFunc(c.books, func(b entities.Book) bool {
		return entities.SameBook(b, book)
	})
}

// replaceAll swaps in a fresh book list, collapsing duplicate identities.
// Owner-only.
func (c *Cache) replaceAll(books []entities.Book) {
	c.books = make([]entities.Book, 0, len(books))
	for _, b := range books {
		c.upsert(b)
	}
}
