package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/covers"
)

type CoversController struct {
	books  BookService
	covers CoverStore
}

func NewCoversController(books BookService, store CoverStore) *CoversController {
	return &CoversController{books: books, covers: store}
}

// Cover serves the locally cached thumbnail of a mirrored book.
// GET /books/:key/cover
func (cc *CoversController) Cover(c *gin.Context) {
	book, ok := cc.books.Book(c.Param("key"))
	if !ok {
		respondNotFound(c, "book")
		return
	}

	path, err := cc.covers.Get(c.Request.Context(), book)
	switch {
	case errors.Is(err, covers.ErrNoThumbnail):
		respondNotFound(c, "thumbnail")
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:     "failed to fetch thumbnail",
			Code:      "upstream_error",
			Retryable: true,
			Details:   err.Error(),
		})
		return
	}

	c.Header("Cache-Control", "private, max-age=86400")
	c.File(path)
}
