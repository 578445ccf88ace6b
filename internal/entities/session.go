package entities

import (
	"fmt"
	"log/slog"
	"time"
)

// Session is the backend-issued credential plus the minimal user profile
// returned by the identity exchange.
type Session struct {
	Token     string     `json:"token"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Valid reports whether the session carries a token.
func (s Session) Valid() bool {
	return s.Token != ""
}

// Expired reports whether the token's advertised expiry has passed. Tokens
// without an expiry never expire locally; the backend stays authoritative.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// String never includes the bearer token.
func (s Session) String() string {
	return fmt.Sprintf("session(user=%s email=%s token=%s)", s.UserID, s.Email, MaskToken(s.Token))
}

// LogValue keeps the bearer token out of structured logs.
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", s.UserID),
		slog.String("email", s.Email),
		slog.String("token", MaskToken(s.Token)),
	)
}

// MaskToken shows only the last four characters of a secret.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

// UserPreference holds server-side user settings.
type UserPreference struct {
	UserID        string    `json:"user_id"`
	DefaultTagIDs []string  `json:"default_tag_ids"`
	UpdatedAt     time.Time `json:"updated_at"`
}
