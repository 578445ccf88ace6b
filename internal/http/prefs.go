package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type PreferencesController struct {
	service PreferenceService
}

func NewPreferencesController(service PreferenceService) *PreferencesController {
	return &PreferencesController{service: service}
}

// Get returns the stored preferences.
// GET /prefs
func (pc *PreferencesController) Get(c *gin.Context) {
	prefs, err := pc.service.Preferences(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "get preferences")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// Update replaces the default tag filter and reloads the collection with it.
// PUT /prefs
func (pc *PreferencesController) Update(c *gin.Context) {
	var req struct {
		DefaultTagIDs []string `json:"default_tag_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.DefaultTagIDs == nil {
		req.DefaultTagIDs = []string{}
	}

	prefs, err := pc.service.UpdatePreferences(c.Request.Context(), req.DefaultTagIDs)
	if err != nil {
		respondServiceError(c, err, "update preferences")
		return
	}
	c.JSON(http.StatusOK, prefs)
}
