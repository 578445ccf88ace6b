package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/entities"
)

// ProfileResponse is the signed-in user. The token is never returned.
type ProfileResponse struct {
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
}

func newProfileResponse(s entities.Session) ProfileResponse {
	return ProfileResponse{
		UserID:    s.UserID,
		Email:     s.Email,
		Name:      s.Name,
		ExpiresAt: s.ExpiresAt,
		Expired:   s.Expired(time.Now()),
	}
}

type SessionController struct {
	service SessionService
}

func NewSessionController(service SessionService) *SessionController {
	return &SessionController{service: service}
}

// Profile returns the current user.
// GET /session
func (sc *SessionController) Profile(c *gin.Context) {
	session, ok := sc.service.Profile(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not signed in", Code: "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(session))
}

// SignIn exchanges an identity token for a session. Without a token the
// configured identity provider is asked for one.
// POST /session
func (sc *SessionController) SignIn(c *gin.Context) {
	var req struct {
		IDToken string `json:"id_token"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	var (
		session entities.Session
		err     error
	)
	if token := strings.TrimSpace(req.IDToken); token != "" {
		session, err = sc.service.SignIn(c.Request.Context(), token)
	} else {
		session, err = sc.service.SignInSilently(c.Request.Context())
	}
	if err != nil {
		respondServiceError(c, err, "sign in")
		return
	}
	respondCreated(c, newProfileResponse(session))
}

// SignOut forgets the session and the mirrored collection.
// DELETE /session
func (sc *SessionController) SignOut(c *gin.Context) {
	if err := sc.service.SignOut(c.Request.Context()); err != nil {
		respondInternalError(c, err, "sign out")
		return
	}
	respondSuccess(c, "signed out")
}
