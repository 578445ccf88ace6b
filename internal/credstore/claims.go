package credstore

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mrlokans/shelfscan/internal/entities"
)

// Claims are the parts of a backend token the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt *time.Time
}

// InspectToken reads claims from a JWT bearer token without verifying its
// signature. The backend stays the only authority on validity.
func InspectToken(token string) (Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("token is not a JWT: %w", err)
	}

	var claims Claims
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		claims.ExpiresAt = &t
	}
	return claims, nil
}

// Annotate fills ExpiresAt and UserID from the token when they are missing.
// Opaque tokens are returned unchanged.
func Annotate(session entities.Session) entities.Session {
	claims, err := InspectToken(session.Token)
	if err != nil {
		return session
	}
	if session.ExpiresAt == nil {
		session.ExpiresAt = claims.ExpiresAt
	}
	if session.UserID == "" {
		session.UserID = claims.Subject
	}
	return session
}
