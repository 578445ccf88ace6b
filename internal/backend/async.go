package backend

import (
	"context"

	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/workers"
)

// The Async variants run on the client's pool. Each returned channel yields
// exactly one result.

func (c *Client) ListBooksAsync(ctx context.Context, tagIDs []string) <-chan workers.Result[[]entities.Book] {
	return workers.Submit(c.pool, func() ([]entities.Book, error) {
		return c.ListBooks(ctx, tagIDs)
	})
}

func (c *Client) AddBookAsync(ctx context.Context, isbn string) <-chan workers.Result[entities.Book] {
	return workers.Submit(c.pool, func() (entities.Book, error) {
		return c.AddBook(ctx, isbn)
	})
}

func (c *Client) DeleteBookAsync(ctx context.Context, id string) <-chan workers.Result[struct{}] {
	return workers.Submit(c.pool, func() (struct{}, error) {
		return struct{}{}, c.DeleteBook(ctx, id)
	})
}

func (c *Client) ListTagsAsync(ctx context.Context) <-chan workers.Result[[]entities.Tag] {
	return workers.Submit(c.pool, func() ([]entities.Tag, error) {
		return c.ListTags(ctx)
	})
}

func (c *Client) SetBookTagsAsync(ctx context.Context, id string, names []string) <-chan workers.Result[struct{}] {
	return workers.Submit(c.pool, func() (struct{}, error) {
		return struct{}{}, c.SetBookTags(ctx, id, names)
	})
}
