package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type LookupController struct {
	service LookupService
}

func NewLookupController(service LookupService) *LookupController {
	return &LookupController{service: service}
}

// Lookup returns public metadata for an ISBN without adding the book.
// GET /lookup/:isbn
func (lc *LookupController) Lookup(c *gin.Context) {
	meta, err := lc.service.Lookup(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		respondServiceError(c, err, "metadata lookup")
		return
	}
	c.JSON(http.StatusOK, meta)
}
