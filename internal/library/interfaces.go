package library

import (
	"context"

	"github.com/mrlokans/shelfscan/internal/collection"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/metadata"
	"github.com/mrlokans/shelfscan/internal/tagging"
	"github.com/mrlokans/shelfscan/internal/workers"
)

// Account signs the user in and out and manages server-side preferences.
// *backend.Client implements it.
type Account interface {
	SignIn(ctx context.Context, assertion string) (entities.Session, error)
	SignInSilently(ctx context.Context) (entities.Session, error)
	SignOut(ctx context.Context) error
	Session(ctx context.Context) (entities.Session, bool)
	GetPreferences(ctx context.Context) (entities.UserPreference, error)
	UpdatePreferences(ctx context.Context, tagIDs []string) (entities.UserPreference, error)
}

// Collection is the local mirror. *collection.Cache implements it.
type Collection interface {
	Books() []entities.Book
	Tags() []entities.Tag
	Filter() []string
	Find(key string) (entities.Book, bool)
	Refresh(ctx context.Context) error
	FilterByTags(ctx context.Context, tagIDs []string) error
	Clear() error
	Add(ctx context.Context, isbn string) <-chan workers.Result[entities.Book]
	Create(ctx context.Context, nb entities.NewBook) <-chan workers.Result[entities.Book]
	Remove(ctx context.Context, book entities.Book) <-chan error
	Subscribe() (<-chan collection.Change, func())
}

// Tagger applies tag names to books. *tagging.Reconciler implements it.
type Tagger interface {
	Apply(ctx context.Context, books []entities.Book, names []string) (tagging.Report, error)
}

// ScanHistory persists scans. *scans.Repository implements it.
type ScanHistory interface {
	Record(ctx context.Context, rec entities.ScanRecord) error
	Recent(ctx context.Context, limit int) ([]entities.ScanRecord, error)
	CountByOutcome(ctx context.Context) (map[entities.ScanOutcome]int64, error)
}

// MetadataLookup finds public details for an ISBN. *metadata.Lookup
// implements it.
type MetadataLookup interface {
	LookupISBN(ctx context.Context, raw string) (*metadata.BookMetadata, error)
}
