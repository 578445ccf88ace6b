package collection

import (
	"context"
	"slices"

	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/workers"
)

// Refresh reloads books and tags from the server. Books are fetched with the
// most recently requested filter, even if that FilterByTags has not landed.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.reload(ctx, nil, false)
}

// FilterByTags replaces the mirror with the server's books carrying all of
// tagIDs, and reloads the tags. No ids means every book.
func (c *Cache) FilterByTags(ctx context.Context, tagIDs []string) error {
	return c.reload(ctx, slices.Clone(tagIDs), true)
}

// reload fetches books and tags in parallel. With setFilter the given filter
// becomes the requested one; otherwise the latest requested one is reused.
func (c *Cache) reload(ctx context.Context, filter []string, setFilter bool) error {
	var gen uint64
	if err := c.exec(func() {
		c.reloadSeq++
		gen = c.reloadSeq
		if setFilter {
			c.wantFilter = slices.Clone(filter)
		} else {
			filter = slices.Clone(c.wantFilter)
		}
	}); err != nil {
		return err
	}

	booksCh := workers.Submit(c.pool, func() ([]entities.Book, error) {
		return c.api.ListBooks(ctx, filter)
	})
	tagsCh := workers.Submit(c.pool, func() ([]entities.Tag, error) {
		return c.api.ListTags(ctx)
	})

	books, err := workers.Await(ctx, booksCh)
	if err != nil {
		return err
	}
	tags, err := workers.Await(ctx, tagsCh)
	if err != nil {
		return err
	}

	return c.exec(func() {
		c.applyReload(gen, filter, books, tags)
	})
}

// applyReload installs fetched books and tags unless a newer reload already
// landed. Owner-only.
func (c *Cache) applyReload(gen uint64, filter []string, books []entities.Book, tags []entities.Tag) {
	if gen < c.reloadDone {
		c.logger.Debug("discarding stale reload", "generation", gen, "latest", c.reloadDone)
		return
	}
	c.reloadDone = gen
	c.filter = filter
	c.tags = slices.Clone(tags)
	c.replaceAll(books)
	c.emit(Change{Kind: ChangeTags})
	c.emit(Change{Kind: ChangeReloaded})
}

// Clear empties the mirror, e.g. after sign-out. Reloads still in flight are
// discarded when they land.
func (c *Cache) Clear() error {
	return c.exec(func() {
		c.reloadSeq++
		c.reloadDone = c.reloadSeq
		c.books = nil
		c.tags = nil
		c.filter = nil
		c.wantFilter = nil
		c.emit(Change{Kind: ChangeTags})
		c.emit(Change{Kind: ChangeReloaded})
	})
}
