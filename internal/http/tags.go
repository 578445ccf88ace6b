package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/entities"
)

type TagsController struct {
	service TagService
}

func NewTagsController(service TagService) *TagsController {
	return &TagsController{service: service}
}

// List returns the known tags.
// GET /tags
func (tc *TagsController) List(c *gin.Context) {
	tags := tc.service.Tags()
	if tags == nil {
		tags = []entities.Tag{}
	}
	c.JSON(http.StatusOK, ListResponse{Data: tags, Count: len(tags)})
}

// TagBooks gives the selected books exactly the named tags, creating
// unknown tags.
// POST /books/tags
func (tc *TagsController) TagBooks(c *gin.Context) {
	var req struct {
		Keys  []string `json:"keys" binding:"required,min=1"`
		Names []string `json:"names"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "keys are required")
		return
	}

	report, err := tc.service.TagBooks(c.Request.Context(), req.Keys, req.Names)
	if err != nil {
		respondServiceError(c, err, "tag books")
		return
	}

	resp := gin.H{
		"requested": report.Requested,
		"updated":   report.Updated,
		"failed":    report.Failed,
		"created":   report.Created,
	}
	if report.Errors != nil {
		resp["errors"] = report.Errors.Error()
	}

	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

// Common returns the tag names shared by every selected book.
// GET /books/tags/common?keys=id:1,id:2
func (tc *TagsController) Common(c *gin.Context) {
	keys := parseListQuery(c, "keys")
	if len(keys) == 0 {
		respondBadRequest(c, "keys are required")
		return
	}
	names, err := tc.service.CommonTags(keys)
	if err != nil {
		respondServiceError(c, err, "common tags")
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, ListResponse{Data: names, Count: len(names)})
}
