// Package tagging turns free-text tag names into server tags and applies them
// to batches of books.
package tagging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/multierr"

	"github.com/mrlokans/shelfscan/internal/entities"
)

// TagCreator creates tags on the server.
type TagCreator interface {
	CreateTag(ctx context.Context, name string) (entities.Tag, error)
}

// Mirror is the part of the collection cache the reconciler works through.
type Mirror interface {
	Tags() []entities.Tag
	AddTag(tag entities.Tag) error
	SetBookTags(ctx context.Context, book entities.Book, names []string) <-chan error
	Refresh(ctx context.Context) error
}

// Report summarizes one Apply.
type Report struct {
	Requested int
	Updated   int
	Failed    int
	Created   []entities.Tag

	// Errors aggregates per-book failures and a failed final refresh.
	Errors error
}

// Reconciler is the Tag Reconciler.
type Reconciler struct {
	api    TagCreator
	mirror Mirror
	logger *slog.Logger
}

// NewReconciler creates a Reconciler. A nil logger uses slog.Default.
func NewReconciler(api TagCreator, mirror Mirror, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{api: api, mirror: mirror, logger: logger}
}

type bookResult struct {
	book entities.Book
	err  error
}

// Apply gives every book exactly the tags named in names, creating unknown
// tags first. Tags are created one at a time; a creation failure aborts
// before any book is touched. Book updates run concurrently and are all
// awaited; a failed update is counted and reported but does not stop the
// batch. Books and tags are refreshed once at the end.
func (r *Reconciler) Apply(ctx context.Context, books []entities.Book, names []string) (Report, error) {
	report := Report{Requested: len(books)}

	resolved, missing := Resolve(r.mirror.Tags(), names)

	for _, name := range missing {
		tag, err := r.api.CreateTag(ctx, name)
		if err != nil {
			return report, fmt.Errorf("failed to create tag %q: %w", name, err)
		}
		if err := r.mirror.AddTag(tag); err != nil {
			return report, err
		}
		report.Created = append(report.Created, tag)
		resolved = append(resolved, tag.Name)
		r.logger.Info("created tag", "tag_id", tag.ID, "name", tag.Name)
	}

	if len(books) == 0 && len(report.Created) == 0 {
		return report, nil
	}

	results := make(chan bookResult, len(books))
	for _, book := range books {
		done := r.mirror.SetBookTags(ctx, book, resolved)
		go func(book entities.Book) {
			results <- bookResult{book: book, err: <-done}
		}(book)
	}

	for completed := 0; completed < len(books); completed++ {
		res := <-results
		if res.err != nil {
			report.Failed++
			report.Errors = multierr.Append(report.Errors, fmt.Errorf("book %s: %w", res.book.Key(), res.err))
			r.logger.Warn("failed to update book tags",
				"book_id", res.book.ID, "isbn", res.book.ISBN13, "error", res.err)
			continue
		}
		report.Updated++
	}

	if err := r.mirror.Refresh(ctx); err != nil {
		report.Errors = multierr.Append(report.Errors, fmt.Errorf("refresh after tagging: %w", err))
		r.logger.Warn("failed to refresh after tagging", "error", err)
	}

	r.logger.Info("tags applied",
		"books", report.Requested,
		"updated", report.Updated,
		"failed", report.Failed,
		"created", len(report.Created))

	return report, nil
}

// Resolve matches names against known tags ignoring case. It returns the
// server spelling of every matched name and, separately, the names that have
// no tag yet. Blank and repeated names are dropped.
func Resolve(known []entities.Tag, names []string) (resolved, missing []string) {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		folded := strings.ToLower(name)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}

		if tag, ok := entities.FindTagByName(known, name); ok {
			resolved = append(resolved, tag.Name)
		} else {
			missing = append(missing, name)
		}
	}
	return resolved, missing
}

// CommonTagNames returns the tag names every book carries, compared ignoring
// case and in the order of the first book.
func CommonTagNames(books []entities.Book) []string {
	if len(books) == 0 {
		return []string{}
	}

	common := []string{}
	for _, name := range books[0].TagNames() {
		shared := true
		for _, other := range books[1:] {
			if _, ok := entities.FindTagByName(other.Tags, name); !ok {
				shared = false
				break
			}
		}
		if shared {
			if _, dup := entities.FindTagByName(toTags(common), name); !dup {
				common = append(common, name)
			}
		}
	}
	return common
}

func toTags(names []string) []entities.Tag {
	tags := make([]entities.Tag, len(names))
	for i, n := range names {
		tags[i] = entities.Tag{Name: n}
	}
	return tags
}
