package library

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/shelfscan/internal/backend"
	"github.com/mrlokans/shelfscan/internal/collection"
	"github.com/mrlokans/shelfscan/internal/database"
	"github.com/mrlokans/shelfscan/internal/database/scans"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/metadata"
	"github.com/mrlokans/shelfscan/internal/scanner"
	"github.com/mrlokans/shelfscan/internal/tagging"
	"github.com/mrlokans/shelfscan/internal/workers"
)

// fakeServer plays the book service: it signs users in and owns books,
// tags and preferences.
type fakeServer struct {
	mu       sync.Mutex
	session  *entities.Session
	books    []entities.Book
	tags     []entities.Tag
	prefs    entities.UserPreference
	nextID   int
	addErr   error
	addCalls int
	prefsErr error
	listed   [][]string
}

func (f *fakeServer) SignIn(_ context.Context, assertion string) (entities.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if assertion != "good" {
		return entities.Session{}, backend.ErrUnauthenticated
	}
	f.session = &entities.Session{Token: "token-1", Email: "reader@example.com"}
	return *f.session, nil
}

func (f *fakeServer) SignInSilently(ctx context.Context) (entities.Session, error) {
	return f.SignIn(ctx, "good")
}

func (f *fakeServer) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = nil
	return nil
}

func (f *fakeServer) Session(context.Context) (entities.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return entities.Session{}, false
	}
	return *f.session, true
}

func (f *fakeServer) GetPreferences(context.Context) (entities.UserPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs, f.prefsErr
}

func (f *fakeServer) UpdatePreferences(_ context.Context, tagIDs []string) (entities.UserPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs.DefaultTagIDs = tagIDs
	return f.prefs, nil
}

func (f *fakeServer) ListBooks(_ context.Context, tagIDs []string) ([]entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, tagIDs)
	var out []entities.Book
	for _, b := range f.books {
		keep := true
		for _, id := range tagIDs {
			if !slices.ContainsFunc(b.Tags, func(t entities.Tag) bool { return t.ID == id }) {
				keep = false
			}
		}
		if keep {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

func (f *fakeServer) ListTags(context.Context) ([]entities.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tags), nil
}

func (f *fakeServer) AddBook(_ context.Context, isbn string) (entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return entities.Book{}, f.addErr
	}
	f.nextID++
	book := entities.Book{ID: "b" + strconv.Itoa(f.nextID), ISBN13: isbn, Title: "Book " + isbn}
	f.books = append(f.books, book)
	return book, nil
}

func (f *fakeServer) CreateBook(_ context.Context, nb entities.NewBook) (entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	book := entities.Book{ID: "b" + strconv.Itoa(f.nextID), ISBN13: nb.ISBN, Title: nb.Title, Author: nb.Author}
	f.books = append(f.books, book)
	return book, nil
}

func (f *fakeServer) DeleteBook(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books = slices.DeleteFunc(f.books, func(b entities.Book) bool { return b.ID == id })
	return nil
}

func (f *fakeServer) SetBookTags(_ context.Context, id string, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.books {
		if b.ID != id {
			continue
		}
		var tags []entities.Tag
		for _, name := range names {
			if t, ok := entities.FindTagByName(f.tags, name); ok {
				tags = append(tags, t)
			}
		}
		f.books[i].Tags = tags
	}
	return nil
}

func (f *fakeServer) CreateTag(_ context.Context, name string) (entities.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tag := entities.Tag{ID: "t-" + strings.ToLower(name), Name: name}
	f.tags = append(f.tags, tag)
	return tag, nil
}

type fakeLookup struct {
	meta *metadata.BookMetadata
	err  error
}

func (f fakeLookup) LookupISBN(context.Context, string) (*metadata.BookMetadata, error) {
	return f.meta, f.err
}

type testEnv struct {
	lib     *Library
	server  *fakeServer
	cache   *collection.Cache
	history *scans.Repository
	dedup   *scanner.Deduplicator
}

func newTestEnv(t *testing.T, server *fakeServer, opts ...Option) *testEnv {
	t.Helper()

	pool := workers.New(4, nil)
	cache := collection.New(server, pool)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = cache.Run(ctx) }()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	history := scans.NewRepository(db.DB)

	t.Cleanup(func() {
		cancel()
		<-cache.Stopped()
		pool.Close()
		db.Close()
	})

	reconciler := tagging.NewReconciler(server, cache, nil)
	opts = append([]Option{WithHistory(history)}, opts...)
	dedup := scanner.NewDeduplicator()
	lib := New(server, cache, reconciler, dedup, opts...)
	return &testEnv{lib: lib, server: server, cache: cache, history: history, dedup: dedup}
}

func signedIn() *fakeServer {
	return &fakeServer{session: &entities.Session{Token: "token-1"}}
}

func TestStart(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the default tag filter", func(t *testing.T) {
		server := signedIn()
		server.tags = []entities.Tag{{ID: "t1", Name: "fiction"}}
		server.books = []entities.Book{
			{ID: "1", ISBN13: "9780134190440", Tags: []entities.Tag{{ID: "t1", Name: "fiction"}}},
			{ID: "2", ISBN13: "9780306406157"},
		}
		server.prefs = entities.UserPreference{DefaultTagIDs: []string{"t1"}}
		env := newTestEnv(t, server)

		require.NoError(t, env.lib.Start(ctx))

		assert.Len(t, env.lib.Books(), 1)
		assert.Equal(t, []string{"t1"}, env.lib.Filter())
		assert.Len(t, env.lib.Tags(), 1)

		res, err := env.lib.Scan(ctx, "9780134190440")
		require.NoError(t, err)
		assert.Equal(t, entities.ScanOutcomeDuplicate, res.Outcome)
	})

	t.Run("preferences failure falls back to every book", func(t *testing.T) {
		server := signedIn()
		server.prefsErr = errors.New("boom")
		server.books = []entities.Book{{ID: "1"}, {ID: "2"}}
		env := newTestEnv(t, server)

		require.NoError(t, env.lib.Start(ctx))
		assert.Len(t, env.lib.Books(), 2)
	})

	t.Run("no session loads nothing", func(t *testing.T) {
		server := &fakeServer{books: []entities.Book{{ID: "1"}}}
		env := newTestEnv(t, server)

		require.NoError(t, env.lib.Start(ctx))
		assert.Empty(t, env.lib.Books())
		assert.Empty(t, server.listed)
		assert.ErrorIs(t, env.lib.Resync(ctx), backend.ErrUnauthenticated)
	})
}

func TestScan(t *testing.T) {
	ctx := context.Background()

	t.Run("pipeline outcomes are recorded", func(t *testing.T) {
		env := newTestEnv(t, signedIn())

		res, err := env.lib.Scan(ctx, "9780134190440")
		require.NoError(t, err)
		assert.Equal(t, entities.ScanOutcomeAdded, res.Outcome)
		require.NotNil(t, res.Book)
		assert.Equal(t, "b1", res.Book.ID)

		res, err = env.lib.Scan(ctx, "9780134190440")
		require.NoError(t, err)
		assert.Equal(t, entities.ScanOutcomeDuplicate, res.Outcome)

		res, err = env.lib.Scan(ctx, "1234567890123")
		require.NoError(t, err)
		assert.Equal(t, entities.ScanOutcomeInvalid, res.Outcome)

		assert.Len(t, env.lib.Books(), 1)

		records, err := env.lib.History(ctx, 10)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, entities.ScanOutcomeInvalid, records[0].Outcome)
		assert.Equal(t, entities.ScanOutcomeAdded, records[2].Outcome)
		assert.Equal(t, "b1", records[2].BookID)

		summary, err := env.lib.HistorySummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), summary[entities.ScanOutcomeDuplicate])
	})

	t.Run("failed add stays in the scan set", func(t *testing.T) {
		server := signedIn()
		server.addErr = &backend.RequestError{StatusCode: 500}
		env := newTestEnv(t, server)

		res, err := env.lib.Scan(ctx, "9780134190440")
		assert.ErrorIs(t, err, backend.ErrRequestFailed)
		assert.Equal(t, entities.ScanOutcomeFailed, res.Outcome)
		assert.NotEmpty(t, res.Error)

		assert.True(t, env.dedup.Seen("9780134190440"))

		server.mu.Lock()
		server.addErr = nil
		server.mu.Unlock()

		res, err = env.lib.Scan(ctx, "9780134190440")
		require.NoError(t, err)
		assert.Equal(t, entities.ScanOutcomeDuplicate, res.Outcome)

		server.mu.Lock()
		defer server.mu.Unlock()
		assert.Equal(t, 1, server.addCalls)
	})

	t.Run("auto tags keep existing tags", func(t *testing.T) {
		server := signedIn()
		server.tags = []entities.Tag{{ID: "t-owned", Name: "owned"}}
		env := newTestEnv(t, server, WithAutoTags("to-read", "Owned"))
		require.NoError(t, env.lib.Resync(ctx))

		res, err := env.lib.Scan(ctx, "9780306406157")
		require.NoError(t, err)
		require.NotNil(t, res.Tagging)
		assert.Equal(t, 1, res.Tagging.Updated)
		require.Len(t, res.Tagging.Created, 1)
		assert.Equal(t, "to-read", res.Tagging.Created[0].Name)

		book, ok := env.cache.Find("9780306406157")
		require.True(t, ok)
		assert.ElementsMatch(t, []string{"owned", "to-read"}, book.TagNames())
	})

	t.Run("metadata fills missing cover", func(t *testing.T) {
		env := newTestEnv(t, signedIn(), WithMetadata(fakeLookup{
			meta: &metadata.BookMetadata{Title: "ignored", Thumbnail: "https://covers.example/x.jpg"},
		}))

		res, err := env.lib.Scan(ctx, "9781492052593")
		require.NoError(t, err)
		require.NotNil(t, res.Book)
		assert.Equal(t, "Book 9781492052593", res.Book.Title)
		assert.Equal(t, "https://covers.example/x.jpg", res.Book.Thumbnail)
	})

	t.Run("reset starts a new session but keeps owned books", func(t *testing.T) {
		env := newTestEnv(t, signedIn())
		_, err := env.lib.Scan(ctx, "9780134190440")
		require.NoError(t, err)

		env.lib.ResetScans()

		res, err := env.lib.Scan(ctx, "9780134190440")
		require.NoError(t, err)
		assert.Equal(t, entities.ScanOutcomeDuplicate, res.Outcome)
	})
}

func TestBooks(t *testing.T) {
	ctx := context.Background()

	t.Run("add accepts ISBN-10", func(t *testing.T) {
		env := newTestEnv(t, signedIn())
		book, err := env.lib.AddBook(ctx, "0-306-40615-2")
		require.NoError(t, err)
		assert.Equal(t, "9780306406157", book.ISBN13)

		res, err := env.lib.Scan(ctx, "9780306406157")
		require.NoError(t, err)
		assert.Equal(t, entities.ScanOutcomeDuplicate, res.Outcome)
	})

	t.Run("add rejects garbage", func(t *testing.T) {
		env := newTestEnv(t, signedIn())
		_, err := env.lib.AddBook(ctx, "12345")
		assert.ErrorIs(t, err, metadata.ErrInvalidISBN)
	})

	t.Run("create requires a title", func(t *testing.T) {
		env := newTestEnv(t, signedIn())
		_, err := env.lib.CreateBook(ctx, entities.NewBook{Title: "  "})
		assert.Error(t, err)

		book, err := env.lib.CreateBook(ctx, entities.NewBook{Title: "Zine", Author: "Me"})
		require.NoError(t, err)
		assert.Equal(t, "Zine", book.Title)
		assert.Len(t, env.lib.Books(), 1)
	})

	t.Run("remove by key", func(t *testing.T) {
		server := signedIn()
		server.books = []entities.Book{{ID: "1", ISBN13: "9780134190440"}}
		env := newTestEnv(t, server)
		require.NoError(t, env.lib.Resync(ctx))

		found, ok := env.lib.Book("9780134190440")
		require.True(t, ok)
		assert.Equal(t, "1", found.ID)

		require.NoError(t, env.lib.RemoveBook(ctx, "isbn:9780134190440"))
		assert.Empty(t, env.lib.Books())

		assert.ErrorIs(t, env.lib.RemoveBook(ctx, "id:1"), ErrBookNotFound)

		assert.True(t, env.dedup.Seen("9780134190440"))
		res, err := env.lib.Scan(ctx, "9780134190440")
		require.NoError(t, err)
		assert.Equal(t, entities.ScanOutcomeDuplicate, res.Outcome)
	})
}

func TestTagging(t *testing.T) {
	ctx := context.Background()
	server := signedIn()
	server.tags = []entities.Tag{{ID: "t1", Name: "fiction"}}
	server.books = []entities.Book{
		{ID: "1", ISBN13: "9780134190440", Tags: []entities.Tag{{ID: "t1", Name: "fiction"}}},
		{ID: "2", ISBN13: "9780306406157", Tags: []entities.Tag{{ID: "t1", Name: "fiction"}}},
	}
	env := newTestEnv(t, server)
	require.NoError(t, env.lib.Resync(ctx))

	common, err := env.lib.CommonTags([]string{"id:1", "id:2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fiction"}, common)

	report, err := env.lib.TagBooks(ctx, []string{"id:1", "id:2"}, []string{"FICTION", "classics"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)

	common, err = env.lib.CommonTags([]string{"id:1", "id:2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fiction", "classics"}, common)

	_, err = env.lib.TagBooks(ctx, []string{"id:404"}, []string{"x"})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("sign in loads the collection", func(t *testing.T) {
		server := &fakeServer{books: []entities.Book{{ID: "1", ISBN13: "9780134190440"}}}
		env := newTestEnv(t, server)

		_, err := env.lib.SignIn(ctx, "bad")
		assert.ErrorIs(t, err, backend.ErrUnauthenticated)

		session, err := env.lib.SignIn(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "reader@example.com", session.Email)
		assert.Len(t, env.lib.Books(), 1)

		profile, ok := env.lib.Profile(ctx)
		require.True(t, ok)
		assert.Equal(t, "reader@example.com", profile.Email)
	})

	t.Run("sign out clears the mirror", func(t *testing.T) {
		server := signedIn()
		server.books = []entities.Book{{ID: "1", ISBN13: "9780134190440"}}
		env := newTestEnv(t, server)
		require.NoError(t, env.lib.Start(ctx))

		require.NoError(t, env.lib.SignOut(ctx))

		assert.Empty(t, env.lib.Books())
		_, ok := env.lib.Profile(ctx)
		assert.False(t, ok)
	})

	t.Run("preferences update reloads with the new filter", func(t *testing.T) {
		server := signedIn()
		server.books = []entities.Book{
			{ID: "1", Tags: []entities.Tag{{ID: "t1"}}},
			{ID: "2"},
		}
		env := newTestEnv(t, server)
		require.NoError(t, env.lib.Start(ctx))
		require.Len(t, env.lib.Books(), 2)

		prefs, err := env.lib.UpdatePreferences(ctx, []string{"t1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"t1"}, prefs.DefaultTagIDs)
		assert.Len(t, env.lib.Books(), 1)
	})
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t, signedIn())
	_, err := env.lib.Lookup(ctx, "9780134190440")
	assert.ErrorIs(t, err, ErrLookupDisabled)

	env = newTestEnv(t, signedIn(), WithMetadata(fakeLookup{err: metadata.ErrNotFound}))
	_, err = env.lib.Lookup(ctx, "9780134190440")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}
