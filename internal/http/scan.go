package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/entities"
)

const defaultHistoryLimit = 50

type ScanController struct {
	service ScanService
}

func NewScanController(service ScanService) *ScanController {
	return &ScanController{service: service}
}

// Scan submits one decoded barcode.
// POST /scan
func (sc *ScanController) Scan(c *gin.Context) {
	var req struct {
		Barcode string `json:"barcode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "barcode is required")
		return
	}

	res, err := sc.service.Scan(c.Request.Context(), strings.TrimSpace(req.Barcode))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case res.Outcome == entities.ScanOutcomeAdmitted:
		// The add is still in flight and will land in the collection.
		c.JSON(http.StatusAccepted, res)
	default:
		respondServiceError(c, err, "scan")
	}
}

// Reset starts a new scanning session.
// POST /scan/reset
func (sc *ScanController) Reset(c *gin.Context) {
	sc.service.ResetScans()
	respondSuccess(c, "scan session reset")
}

// History lists recent scans.
// GET /scans?limit=50
func (sc *ScanController) History(c *gin.Context) {
	limit, ok := parseLimit(c, defaultHistoryLimit)
	if !ok {
		return
	}
	records, err := sc.service.History(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err, "scan history")
		return
	}
	summary, err := sc.service.HistorySummary(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "scan summary")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":    records,
		"count":   len(records),
		"summary": summary,
	})
}
