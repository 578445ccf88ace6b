package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/mrlokans/shelfscan/internal/entities"
)

// ErrNoServerID is returned for book operations that need a server id.
var ErrNoServerID = errors.New("book has no server id")

type booksResponse struct {
	Books []entities.Book `json:"books"`
	Count int             `json:"count"`
}

type tagsResponse struct {
	Tags  []entities.Tag `json:"tags"`
	Count int            `json:"count"`
}

type addBookRequest struct {
	ISBN string `json:"isbn"`
}

type createTagRequest struct {
	Name string `json:"name"`
}

type setBookTagsRequest struct {
	Tags []string `json:"tags"`
}

type updatePreferencesRequest struct {
	DefaultTagIDs []string `json:"default_tag_ids"`
}

// ListBooks returns the user's books carrying all of tagIDs; no ids means
// every book.
func (c *Client) ListBooks(ctx context.Context, tagIDs []string) ([]entities.Book, error) {
	req := call{method: http.MethodGet, path: "/api/books"}
	if len(tagIDs) > 0 {
		req.query = url.Values{"tags": []string{strings.Join(tagIDs, ",")}}
	}

	var resp booksResponse
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	if resp.Books == nil {
		resp.Books = []entities.Book{}
	}
	return resp.Books, nil
}

// AddBook creates the book for isbn server-side, or returns the existing one.
func (c *Client) AddBook(ctx context.Context, isbn string) (entities.Book, error) {
	var book entities.Book
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/books/add",
		body:   addBookRequest{ISBN: isbn},
	}, &book)
	return book, err
}

// GetBookByISBN looks a book up in the user's collection.
func (c *Client) GetBookByISBN(ctx context.Context, isbn string) (entities.Book, error) {
	var book entities.Book
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/books/isbn/" + url.PathEscape(isbn),
	}, &book)
	return book, err
}

// CreateBook adds a book from manually entered details.
func (c *Client) CreateBook(ctx context.Context, nb entities.NewBook) (entities.Book, error) {
	var book entities.Book
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/books",
		body:   nb,
	}, &book)
	return book, err
}

// DeleteBook removes a book by server id.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoServerID
	}
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   "/api/books/" + url.PathEscape(id),
	}, nil)
}

// ListTags returns the user's tags.
func (c *Client) ListTags(ctx context.Context) ([]entities.Tag, error) {
	var resp tagsResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/tags"}, &resp); err != nil {
		return nil, err
	}
	if resp.Tags == nil {
		resp.Tags = []entities.Tag{}
	}
	return resp.Tags, nil
}

// CreateTag creates a tag named name.
func (c *Client) CreateTag(ctx context.Context, name string) (entities.Tag, error) {
	var tag entities.Tag
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/tags",
		body:   createTagRequest{Name: name},
	}, &tag)
	return tag, err
}

// SetBookTags replaces the book's tags with names.
func (c *Client) SetBookTags(ctx context.Context, id string, names []string) error {
	if id == "" {
		return ErrNoServerID
	}
	if names == nil {
		names = []string{}
	}
	return c.do(ctx, call{
		method: http.MethodPut,
		path:   "/api/books/" + url.PathEscape(id) + "/tags",
		body:   setBookTagsRequest{Tags: names},
	}, nil)
}

// GetPreferences returns the user's stored preferences.
func (c *Client) GetPreferences(ctx context.Context) (entities.UserPreference, error) {
	var pref entities.UserPreference
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/user/preferences"}, &pref)
	return pref, err
}

// UpdatePreferences stores the default tag filter.
func (c *Client) UpdatePreferences(ctx context.Context, tagIDs []string) (entities.UserPreference, error) {
	if tagIDs == nil {
		tagIDs = []string{}
	}
	pref := entities.UserPreference{DefaultTagIDs: tagIDs}
	err := c.do(ctx, call{
		method:  http.MethodPut,
		path:    "/api/user/preferences",
		body:    updatePreferencesRequest{DefaultTagIDs: tagIDs},
		emptyOK: true,
	}, &pref)
	return pref, err
}
