package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/mrlokans/shelfscan/internal/backend"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/library"
	"github.com/mrlokans/shelfscan/internal/metadata"
	"github.com/mrlokans/shelfscan/internal/tagging"
)

type fakeService struct {
	session   *entities.Session
	books     []entities.Book
	tags      []entities.Tag
	prefs     entities.UserPreference
	assertion string
	scanned   []string
	removed   []string
	tagged    []string
	history   []entities.ScanRecord
}

func (f *fakeService) SignIn(_ context.Context, assertion string) (entities.Session, error) {
	if assertion == "bad" {
		return entities.Session{}, backend.ErrUnauthenticated
	}
	f.assertion = assertion
	f.session = &entities.Session{Token: "t", Email: "reader@example.com", Name: "Reader"}
	return *f.session, nil
}

func (f *fakeService) SignInSilently(ctx context.Context) (entities.Session, error) {
	return f.SignIn(ctx, "silent")
}

func (f *fakeService) SignOut(context.Context) error {
	f.session = nil
	return nil
}

func (f *fakeService) Profile(context.Context) (entities.Session, bool) {
	if f.session == nil {
		return entities.Session{}, false
	}
	return *f.session, true
}

func (f *fakeService) Books() []entities.Book { return f.books }

func (f *fakeService) FilterByTags(_ context.Context, ids []string) ([]entities.Book, error) {
	var out []entities.Book
	for _, b := range f.books {
		for _, t := range b.Tags {
			if t.ID == ids[0] {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (f *fakeService) AddBook(_ context.Context, raw string) (entities.Book, error) {
	if raw == "bad" {
		return entities.Book{}, metadata.ErrInvalidISBN
	}
	return entities.Book{ID: "new-" + raw, ISBN13: raw, Title: "Book " + raw}, nil
}

func (f *fakeService) CreateBook(_ context.Context, nb entities.NewBook) (entities.Book, error) {
	return entities.Book{ID: "manual", Title: nb.Title, Author: nb.Author}, nil
}

func (f *fakeService) RemoveBook(_ context.Context, key string) error {
	if key == "missing" {
		return library.ErrBookNotFound
	}
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeService) Scan(_ context.Context, raw string) (library.ScanResult, error) {
	f.scanned = append(f.scanned, raw)
	switch raw {
	case "9780134190440":
		book := entities.Book{ID: "1", Title: "Effective Java"}
		return library.ScanResult{Barcode: raw, Outcome: entities.ScanOutcomeAdded, Book: &book}, nil
	case "dup":
		return library.ScanResult{Barcode: raw, Outcome: entities.ScanOutcomeDuplicate}, nil
	case "fail":
		err := &backend.RequestError{StatusCode: 500}
		return library.ScanResult{Barcode: raw, Outcome: entities.ScanOutcomeFailed, Error: err.Error()}, err
	default:
		return library.ScanResult{Barcode: raw, Outcome: entities.ScanOutcomeInvalid}, nil
	}
}

func (f *fakeService) History(_ context.Context, limit int) ([]entities.ScanRecord, error) {
	return f.history, nil
}

func (f *fakeService) HistorySummary(context.Context) (map[entities.ScanOutcome]int64, error) {
	return map[entities.ScanOutcome]int64{entities.ScanOutcomeAdded: 3}, nil
}

func (f *fakeService) Tags() []entities.Tag { return f.tags }

func (f *fakeService) TagBooks(_ context.Context, keys, names []string) (tagging.Report, error) {
	f.tagged = names
	return tagging.Report{Requested: len(keys), Updated: len(keys), Created: []entities.Tag{{ID: "9", Name: "new"}}}, nil
}

func (f *fakeService) CommonTags(keys []string) ([]string, error) {
	return []string{"fiction", "classics"}, nil
}

func (f *fakeService) Preferences(context.Context) (entities.UserPreference, error) {
	return f.prefs, nil
}

func (f *fakeService) UpdatePreferences(_ context.Context, ids []string) (entities.UserPreference, error) {
	f.prefs.DefaultTagIDs = ids
	return f.prefs, nil
}

func (f *fakeService) Lookup(_ context.Context, raw string) (*metadata.BookMetadata, error) {
	return &metadata.BookMetadata{Title: "Found", Author: "Someone", ISBN13: raw, Source: "google_books"}, nil
}

func testEnv(svc *fakeService, stdin string) (Env, *bytes.Buffer, *int) {
	var out bytes.Buffer
	released := 0
	return Env{
		Open: func(context.Context) (Service, func(), error) {
			return svc, func() { released++ }, nil
		},
		In:  strings.NewReader(stdin),
		Out: &out,
	}, &out, &released
}

func run(t *testing.T, cmd Command, args ...string) error {
	t.Helper()
	require.NoError(t, cmd.ParseFlags(args))
	return cmd.Run(context.Background())
}

func TestLoginCommand(t *testing.T) {
	t.Run("token flag", func(t *testing.T) {
		svc := &fakeService{}
		env, out, released := testEnv(svc, "")

		require.NoError(t, run(t, NewLoginCommand(env), "-token", "abc"))
		assert.Equal(t, "abc", svc.assertion)
		assert.Contains(t, out.String(), "Reader <reader@example.com>")
		assert.Equal(t, 1, *released)
	})

	t.Run("token file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "id_token")
		require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
		svc := &fakeService{}
		env, _, _ := testEnv(svc, "")

		require.NoError(t, run(t, NewLoginCommand(env), "-token-file", path))
		assert.Equal(t, "from-file", svc.assertion)
	})

	t.Run("silent", func(t *testing.T) {
		svc := &fakeService{}
		env, _, _ := testEnv(svc, "")

		require.NoError(t, run(t, NewLoginCommand(env)))
		assert.Equal(t, "silent", svc.assertion)
	})

	t.Run("rejected", func(t *testing.T) {
		env, _, _ := testEnv(&fakeService{}, "")
		err := run(t, NewLoginCommand(env), "-token", "bad")
		assert.ErrorIs(t, err, backend.ErrUnauthenticated)
	})
}

func TestWhoamiAndLogout(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	svc := &fakeService{session: &entities.Session{Email: "reader@example.com", Name: "Reader", ExpiresAt: &expires}}
	env, out, _ := testEnv(svc, "")

	require.NoError(t, run(t, NewWhoamiCommand(env)))
	assert.Contains(t, out.String(), "reader@example.com")
	assert.Contains(t, out.String(), "(valid)")

	require.NoError(t, run(t, NewLogoutCommand(env)))
	assert.Nil(t, svc.session)

	assert.Error(t, run(t, NewWhoamiCommand(env)))
}

func TestBooksCommand(t *testing.T) {
	svc := &fakeService{books: []entities.Book{
		{ID: "1", Title: "Dune", Author: "Frank Herbert", ISBN13: "9780441013593", Tags: []entities.Tag{{ID: "t1", Name: "sci-fi"}}},
		{ID: "2", Title: "Emma"},
	}}

	t.Run("table", func(t *testing.T) {
		env, out, _ := testEnv(svc, "")
		require.NoError(t, run(t, NewBooksCommand(env)))
		assert.Contains(t, out.String(), "Dune by Frank Herbert")
		assert.Contains(t, out.String(), "sci-fi")
		assert.Contains(t, out.String(), "2 books")
	})

	t.Run("filtered json", func(t *testing.T) {
		env, out, _ := testEnv(svc, "")
		require.NoError(t, run(t, NewBooksCommand(env), "-tags", "t1", "-json"))

		var books []entities.Book
		require.NoError(t, json.Unmarshal(out.Bytes(), &books))
		require.Len(t, books, 1)
		assert.Equal(t, "Dune", books[0].Title)
	})
}

func TestAddCommand(t *testing.T) {
	t.Run("reports every failure", func(t *testing.T) {
		env, out, _ := testEnv(&fakeService{}, "")
		err := run(t, NewAddCommand(env), "9780134190440", "bad", "9780306406157")

		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 1)
		assert.ErrorIs(t, err, metadata.ErrInvalidISBN)
		assert.Contains(t, out.String(), "Added Book 9780134190440")
		assert.Contains(t, out.String(), "Added Book 9780306406157")
	})

	t.Run("manual", func(t *testing.T) {
		env, out, _ := testEnv(&fakeService{}, "")
		require.NoError(t, run(t, NewAddCommand(env), "-title", "Zine", "-author", "Me"))
		assert.Contains(t, out.String(), "Created Zine by Me")
	})

	t.Run("requires input", func(t *testing.T) {
		env, _, _ := testEnv(&fakeService{}, "")
		assert.Error(t, NewAddCommand(env).ParseFlags(nil))
	})
}

func TestRemoveCommand(t *testing.T) {
	svc := &fakeService{}
	env, _, _ := testEnv(svc, "")

	err := run(t, NewRemoveCommand(env), "id:1", "missing", "9780134190440")
	assert.ErrorIs(t, err, library.ErrBookNotFound)
	assert.Equal(t, []string{"id:1", "9780134190440"}, svc.removed)
}

func TestScanCommand(t *testing.T) {
	t.Run("summary", func(t *testing.T) {
		svc := &fakeService{}
		env, out, _ := testEnv(svc, "9780134190440\n\n  dup  \nnope\nfail\n")

		require.NoError(t, run(t, NewScanCommand(env)))
		assert.Equal(t, []string{"9780134190440", "dup", "nope", "fail"}, svc.scanned)
		assert.Contains(t, out.String(), "Effective Java")
		assert.Contains(t, out.String(), "added 1, duplicate 1, invalid 1, failed 1")
	})

	t.Run("json lines", func(t *testing.T) {
		env, out, _ := testEnv(&fakeService{}, "dup\n")
		require.NoError(t, run(t, NewScanCommand(env), "-json"))

		var res library.ScanResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &res))
		assert.Equal(t, entities.ScanOutcomeDuplicate, res.Outcome)
	})
}

func TestTagCommands(t *testing.T) {
	svc := &fakeService{tags: []entities.Tag{{ID: "1", Name: "fiction"}}}

	t.Run("tags", func(t *testing.T) {
		env, out, _ := testEnv(svc, "")
		require.NoError(t, run(t, NewTagsCommand(env)))
		assert.Contains(t, out.String(), "fiction")
	})

	t.Run("tag", func(t *testing.T) {
		env, out, _ := testEnv(svc, "")
		require.NoError(t, run(t, NewTagCommand(env), "-names", "fiction, new", "id:1", "id:2"))
		assert.Equal(t, []string{"fiction", "new"}, svc.tagged)
		assert.Contains(t, out.String(), "Created tag new")
		assert.Contains(t, out.String(), "Updated 2 of 2 books")
	})

	t.Run("common", func(t *testing.T) {
		env, out, _ := testEnv(svc, "")
		require.NoError(t, run(t, NewTagCommand(env), "-common", "id:1", "id:2"))
		assert.Equal(t, "fiction, classics\n", out.String())
	})
}

func TestPrefsCommand(t *testing.T) {
	svc := &fakeService{tags: []entities.Tag{{ID: "12", Name: "to-read"}}}

	env, out, _ := testEnv(svc, "")
	require.NoError(t, run(t, NewPrefsCommand(env), "-set", "12,34"))
	assert.Equal(t, []string{"12", "34"}, svc.prefs.DefaultTagIDs)
	assert.Contains(t, out.String(), "to-read (12), 34")

	env, out, _ = testEnv(svc, "")
	require.NoError(t, run(t, NewPrefsCommand(env), "-clear"))
	assert.Empty(t, svc.prefs.DefaultTagIDs)
	assert.Contains(t, out.String(), "none")

	env, _, _ = testEnv(svc, "")
	assert.Error(t, NewPrefsCommand(env).ParseFlags([]string{"-clear", "-set", "1"}))
}

func TestLookupCommand(t *testing.T) {
	env, out, _ := testEnv(&fakeService{}, "")
	require.NoError(t, run(t, NewLookupCommand(env), "9780134190440"))
	assert.Contains(t, out.String(), "Found")
	assert.Contains(t, out.String(), "google_books")

	assert.Error(t, NewLookupCommand(env).ParseFlags(nil))
}

func TestHistoryCommand(t *testing.T) {
	svc := &fakeService{history: []entities.ScanRecord{
		{Barcode: "9780134190440", Outcome: entities.ScanOutcomeAdded, Title: "Effective Java", ScannedAt: time.Now()},
		{Barcode: "fail", Outcome: entities.ScanOutcomeFailed, Error: "server down", ScannedAt: time.Now()},
	}}
	env, out, _ := testEnv(svc, "")

	require.NoError(t, run(t, NewHistoryCommand(env)))
	assert.Contains(t, out.String(), "Effective Java")
	assert.Contains(t, out.String(), "server down")
	assert.Contains(t, out.String(), "added 3")
}

func TestOpenFailure(t *testing.T) {
	env := Env{Open: func(context.Context) (Service, func(), error) {
		return nil, nil, errors.New("database locked")
	}}
	err := run(t, NewTagsCommand(env))
	assert.EqualError(t, err, "database locked")
}
