package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type SyncController struct {
	service SyncService
	status  SyncStatus
}

func NewSyncController(service SyncService, status SyncStatus) *SyncController {
	return &SyncController{service: service, status: status}
}

// Resync reloads books and tags from the server now.
// POST /sync
func (sc *SyncController) Resync(c *gin.Context) {
	if err := sc.service.Resync(c.Request.Context()); err != nil {
		respondServiceError(c, err, "resync")
		return
	}
	respondSuccess(c, "collection reloaded")
}

// Status reports the periodic resync.
// GET /sync
func (sc *SyncController) Status(c *gin.Context) {
	if sc.status == nil {
		c.JSON(http.StatusOK, gin.H{"running": false})
		return
	}
	c.JSON(http.StatusOK, sc.status.Status())
}
