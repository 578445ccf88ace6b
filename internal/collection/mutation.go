package collection

import (
	"context"

	"github.com/mrlokans/shelfscan/internal/backend"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/workers"
)

type mutationKind string

const (
	mutationAdd    mutationKind = "add"
	mutationRemove mutationKind = "remove"
	mutationTags   mutationKind = "tags"
)

// mutation pairs a pending change with what is needed to undo it. It lives
// from the local apply until the server confirms or rejects the change.
type mutation struct {
	kind        mutationKind
	key         string
	seq         uint64
	snapshot    entities.Book
	hasSnapshot bool
}

// seqKey groups operations on the same physical book. The ISBN survives the
// book gaining a server id, so an add and a later remove share a key.
func seqKey(b entities.Book) string {
	if b.ISBN13 != "" {
		return "isbn:" + b.ISBN13
	}
	return b.Key()
}

// mutate runs apply on the owner, the network call on the pool, and settle on
// the owner in per-key issue order. apply reports whether the server needs to
// be called; an apply error is delivered without any network I/O. The call
// runs detached from ctx cancellation so late results are still settled.
func mutate[T any](
	ctx context.Context,
	c *Cache,
	m *mutation,
	apply func(m *mutation) (bool, error),
	call func(ctx context.Context) (T, error),
	settle func(m *mutation, v T, err error) error,
) <-chan workers.Result[T] {
	out := make(chan workers.Result[T], 1)
	deliver := func(v T, err error) {
		out <- workers.Result[T]{Value: v, Err: err}
		close(out)
	}

	var (
		needCall bool
		applyErr error
	)
	err := c.exec(func() {
		needCall, applyErr = apply(m)
		if needCall {
			m.seq = c.seq.issue(m.key)
			c.pending[m] = struct{}{}
		}
	})

	var zero T
	switch {
	case err != nil:
		deliver(zero, err)
		return out
	case applyErr != nil:
		deliver(zero, applyErr)
		return out
	case !needCall:
		deliver(zero, nil)
		return out
	}

	finish := func(v T, callErr error) {
		queued := c.post(func() {
			c.seq.complete(m.key, m.seq, func() {
				delete(c.pending, m)
				deliver(v, settle(m, v, callErr))
			})
		})
		if !queued {
			deliver(v, callErr)
		}
	}

	detached := context.WithoutCancel(ctx)
	if !c.pool.Go(func() {
		v, callErr := call(detached)
		finish(v, callErr)
	}) {
		finish(zero, workers.ErrPoolClosed)
	}
	return out
}

// Add creates the book for isbn on the server and upserts the result. The
// result is applied even if the caller stopped waiting.
func (c *Cache) Add(ctx context.Context, isbn string) <-chan workers.Result[entities.Book] {
	m := &mutation{kind: mutationAdd, key: "isbn:" + isbn}
	return mutate(ctx, c, m,
		func(*mutation) (bool, error) { return true, nil },
		func(ctx context.Context) (entities.Book, error) {
			return c.api.AddBook(ctx, isbn)
		},
		c.settleAdd,
	)
}

// Create adds a manually described book and upserts the result.
func (c *Cache) Create(ctx context.Context, nb entities.NewBook) <-chan workers.Result[entities.Book] {
	key := "isbn:" + nb.ISBN
	if nb.ISBN == "" {
		key = "title:" + nb.Title
	}
	m := &mutation{kind: mutationAdd, key: key}
	return mutate(ctx, c, m,
		func(*mutation) (bool, error) { return true, nil },
		func(ctx context.Context) (entities.Book, error) {
			return c.api.CreateBook(ctx, nb)
		},
		c.settleAdd,
	)
}

func (c *Cache) settleAdd(_ *mutation, book entities.Book, err error) error {
	if err != nil {
		return err
	}
	c.upsert(book)
	c.emit(Change{Kind: ChangeUpserted, Book: book.Clone()})
	return nil
}

// Remove drops book from the mirror immediately and deletes it on the server.
// If the delete fails the removed entry, tags included, is put back unless a
// newer entry with the same identity arrived meanwhile; the error is
// delivered on the channel. Books without a server id are removed locally
// only.
func (c *Cache) Remove(ctx context.Context, book entities.Book) <-chan error {
	m := &mutation{kind: mutationRemove, key: seqKey(book)}
	res := mutate(ctx, c, m,
		func(m *mutation) (bool, error) {
			removed, found := c.take(book)
			if found {
				m.snapshot, m.hasSnapshot = removed.Clone(), true
				c.emit(Change{Kind: ChangeRemoved, Book: removed.Clone()})
			}
			return book.ID != "", nil
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.DeleteBook(ctx, book.ID)
		},
		func(m *mutation, _ struct{}, err error) error {
			if err == nil {
				// A refresh may have brought it back while the delete was in flight.
				if removed, found := c.take(book); found {
					c.emit(Change{Kind: ChangeRemoved, Book: removed})
				}
				return nil
			}

			c.logger.Warn("book removal failed, restoring it",
				"book_id", book.ID, "isbn", book.ISBN13, "error", err)
			if m.hasSnapshot && c.lookup(m.snapshot) < 0 {
				c.upsert(m.snapshot)
				c.emit(Change{Kind: ChangeRestored, Book: m.snapshot.Clone(), Err: err})
			}
			return err
		},
	)
	return workers.Done(res)
}

// SetBookTags assigns the named tags to book, locally first. Names resolve
// against the known tags ignoring case. On failure the previous tags are put
// back.
func (c *Cache) SetBookTags(ctx context.Context, book entities.Book, names []string) <-chan error {
	m := &mutation{kind: mutationTags, key: seqKey(book)}
	res := mutate(ctx, c, m,
		func(m *mutation) (bool, error) {
			if book.ID == "" {
				return false, backend.ErrNoServerID
			}
			if i := c.lookup(book); i >= 0 {
				m.snapshot, m.hasSnapshot = c.books[i].Clone(), true
				updated := c.books[i].Clone()
				updated.Tags = c.resolveTags(names)
				c.books[i] = updated
				c.emit(Change{Kind: ChangeUpserted, Book: updated.Clone()})
			}
			return true, nil
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.SetBookTags(ctx, book.ID, names)
		},
		func(m *mutation, _ struct{}, err error) error {
			if err == nil {
				// Re-apply so an earlier rollback for this book cannot win.
				if i := c.lookup(book); i >= 0 {
					confirmed := c.books[i].Clone()
					confirmed.Tags = c.resolveTags(names)
					c.books[i] = confirmed
				}
				return nil
			}
			c.logger.Warn("tag update failed, restoring previous tags",
				"book_id", book.ID, "error", err)
			if !m.hasSnapshot {
				return err
			}
			if i := c.lookup(m.snapshot); i >= 0 {
				restored := c.books[i].Clone()
				restored.Tags = m.snapshot.Clone().Tags
				c.books[i] = restored
				c.emit(Change{Kind: ChangeRestored, Book: restored.Clone(), Err: err})
			}
			return err
		},
	)
	return workers.Done(res)
}

// resolveTags maps names onto known tags. Unknown names keep an empty id
// until the next refresh. Owner-only.
func (c *Cache) resolveTags(names []string) []entities.Tag {
	out := make([]entities.Tag, 0, len(names))
	for _, name := range names {
		if _, dup := entities.FindTagByName(out, name); dup {
			continue
		}
		if t, ok := entities.FindTagByName(c.tags, name); ok {
			out = append(out, t)
			continue
		}
		out = append(out, entities.Tag{Name: name})
	}
	return out
}
