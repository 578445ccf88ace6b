package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/entities"
)

type BooksController struct {
	service BookService
}

func NewBooksController(service BookService) *BooksController {
	return &BooksController{service: service}
}

// List returns the mirrored books. With ?tags=a,b the collection is reloaded
// from the server filtered by those tag ids first.
// GET /books
func (bc *BooksController) List(c *gin.Context) {
	books := bc.service.Books()
	if _, filtered := c.GetQuery("tags"); filtered {
		var err error
		books, err = bc.service.FilterByTags(c.Request.Context(), parseListQuery(c, "tags"))
		if err != nil {
			respondServiceError(c, err, "filter books")
			return
		}
	}
	if books == nil {
		books = []entities.Book{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":   books,
		"count":  len(books),
		"filter": bc.service.Filter(),
	})
}

type addBookRequest struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
}

// Add adds a book. An ISBN alone is looked up by the server; a title
// creates the book manually.
// POST /books
func (bc *BooksController) Add(c *gin.Context) {
	var req addBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	req.ISBN = strings.TrimSpace(req.ISBN)

	var (
		book entities.Book
		err  error
	)
	switch {
	case strings.TrimSpace(req.Title) != "":
		book, err = bc.service.CreateBook(c.Request.Context(), entities.NewBook{
			Title:       req.Title,
			ISBN:        req.ISBN,
			Author:      req.Author,
			Description: req.Description,
			Thumbnail:   req.Thumbnail,
		})
	case req.ISBN != "":
		book, err = bc.service.AddBook(c.Request.Context(), req.ISBN)
	default:
		respondBadRequest(c, "isbn or title is required")
		return
	}
	if err != nil {
		respondServiceError(c, err, "add book")
		return
	}
	respondCreated(c, book)
}

// Remove deletes a book by key: "id:<id>", "isbn:<isbn13>" or a bare value.
// DELETE /books/:key
func (bc *BooksController) Remove(c *gin.Context) {
	key := c.Param("key")
	if strings.TrimSpace(key) == "" {
		respondBadRequest(c, "book key is required")
		return
	}
	if err := bc.service.RemoveBook(c.Request.Context(), key); err != nil {
		respondServiceError(c, err, "remove book")
		return
	}
	respondSuccess(c, "book removed")
}
