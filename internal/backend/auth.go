package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mrlokans/shelfscan/internal/credstore"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/identity"
)

type exchangeRequest struct {
	IDToken string `json:"id_token"`
}

type exchangeResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

// exchange trades an identity assertion for a session credential.
func (c *Client) exchange(ctx context.Context, assertion string) (entities.Session, error) {
	provider := "google"
	if c.identity != nil && c.identity.Name() != "" {
		provider = c.identity.Name()
	}

	req := call{
		method: http.MethodPost,
		path:   "/auth/" + url.PathEscape(provider) + "/mobile",
		body:   exchangeRequest{IDToken: assertion},
	}

	status, body, err := c.send(ctx, req, "")
	if err != nil {
		return entities.Session{}, err
	}

	var resp exchangeResponse
	if err := c.decode(req, status, body, &resp); err != nil {
		return entities.Session{}, err
	}
	if resp.Token == "" {
		return entities.Session{}, &ParseError{Path: req.path, Body: truncate(body), Err: errors.New("response carries no token")}
	}

	return credstore.Annotate(entities.Session{
		Token:     resp.Token,
		UserID:    resp.User.ID,
		Email:     resp.User.Email,
		Name:      resp.User.Name,
		CreatedAt: c.now(),
	}), nil
}

// SignIn exchanges an interactively obtained assertion and stores the result.
func (c *Client) SignIn(ctx context.Context, assertion string) (entities.Session, error) {
	if assertion == "" {
		return entities.Session{}, identity.ErrNoAssertion
	}

	session, err := c.exchange(ctx, assertion)
	if err != nil {
		if isAuthRejection(err) {
			return entities.Session{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return entities.Session{}, err
	}
	if err := c.store.Save(ctx, session); err != nil {
		return entities.Session{}, fmt.Errorf("failed to store credential: %w", err)
	}

	c.logger.Info("signed in", "session", session)
	return session, nil
}

// SignInSilently signs in with whatever the identity provider can supply
// without user interaction.
func (c *Client) SignInSilently(ctx context.Context) (entities.Session, error) {
	if c.identity == nil {
		return entities.Session{}, identity.ErrNoAssertion
	}
	assertion, err := c.identity.SilentAssertion(ctx)
	if err != nil {
		return entities.Session{}, err
	}
	return c.SignIn(ctx, assertion)
}

// SignOut forgets the stored credential.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.logger.Info("signed out")
	return nil
}

// Session returns the stored credential, if any.
func (c *Client) Session(ctx context.Context) (entities.Session, bool) {
	return c.store.Load(ctx)
}
