package http

import (
	"context"

	"github.com/mrlokans/shelfscan/internal/collection"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/library"
	"github.com/mrlokans/shelfscan/internal/metadata"
	"github.com/mrlokans/shelfscan/internal/scheduler"
	"github.com/mrlokans/shelfscan/internal/tagging"
)

// Each controller depends on the narrow slice of *library.Library it uses.

// SessionService signs the user in and out.
type SessionService interface {
	SignIn(ctx context.Context, assertion string) (entities.Session, error)
	SignInSilently(ctx context.Context) (entities.Session, error)
	SignOut(ctx context.Context) error
	Profile(ctx context.Context) (entities.Session, bool)
}

// ScanService runs decoded barcodes through the scan pipeline.
type ScanService interface {
	Scan(ctx context.Context, raw string) (library.ScanResult, error)
	ResetScans()
	History(ctx context.Context, limit int) ([]entities.ScanRecord, error)
	HistorySummary(ctx context.Context) (map[entities.ScanOutcome]int64, error)
}

// BookService manages the mirrored collection.
type BookService interface {
	Books() []entities.Book
	Book(key string) (entities.Book, bool)
	Filter() []string
	FilterByTags(ctx context.Context, tagIDs []string) ([]entities.Book, error)
	AddBook(ctx context.Context, raw string) (entities.Book, error)
	CreateBook(ctx context.Context, nb entities.NewBook) (entities.Book, error)
	RemoveBook(ctx context.Context, key string) error
}

// TagService lists tags and applies them to books.
type TagService interface {
	Tags() []entities.Tag
	TagBooks(ctx context.Context, keys, names []string) (tagging.Report, error)
	CommonTags(keys []string) ([]string, error)
}

// PreferenceService reads and writes user preferences.
type PreferenceService interface {
	Preferences(ctx context.Context) (entities.UserPreference, error)
	UpdatePreferences(ctx context.Context, tagIDs []string) (entities.UserPreference, error)
}

// LookupService fetches public metadata.
type LookupService interface {
	Lookup(ctx context.Context, raw string) (*metadata.BookMetadata, error)
}

// SyncService reloads the mirror on demand.
type SyncService interface {
	Resync(ctx context.Context) error
}

// EventService streams collection changes.
type EventService interface {
	Subscribe() (<-chan collection.Change, func())
}

// CoverStore caches thumbnails. *covers.Cache implements it.
type CoverStore interface {
	Get(ctx context.Context, book entities.Book) (string, error)
}

// SyncStatus reports the periodic resync. *scheduler.ResyncScheduler implements it.
type SyncStatus interface {
	Status() scheduler.Status
}

// Service combines every capability; *library.Library implements it.
type Service interface {
	SessionService
	ScanService
	BookService
	TagService
	PreferenceService
	LookupService
	SyncService
	EventService
}

var _ Service = (*library.Library)(nil)
