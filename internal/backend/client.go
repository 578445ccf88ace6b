// Package backend is the authenticated client for the book service. Every
// call carries the stored bearer credential; a 401 triggers one coalesced
// silent re-authentication followed by exactly one retry.
package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mrlokans/shelfscan/internal/credstore"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/identity"
	"github.com/mrlokans/shelfscan/internal/workers"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "shelfscan/1.0"

	maxResponseBytes = 4 << 20
	maxLoggedBody    = 2048
)

// Config holds connection settings for the book service.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// CredentialStore is the part of credstore.Store the client needs.
type CredentialStore interface {
	Load(ctx context.Context) (entities.Session, bool)
	Save(ctx context.Context, session entities.Session) error
	Clear(ctx context.Context) error
	ClearIfToken(ctx context.Context, token string) (bool, error)
}

var _ CredentialStore = (*credstore.Store)(nil)

// Client talks to the book service. Construct it once and share it.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	store      CredentialStore
	identity   identity.Provider
	pool       *workers.Pool
	ownsPool   bool
	logger     *slog.Logger
	now        func() time.Time

	// refreshes coalesces re-authentication per rejected credential.
	refreshes singleflight.Group

	// refreshDone is closed when the last running refresh ends. Requests that
	// find the store empty mid-refresh wait on it instead of failing.
	refreshMu     sync.Mutex
	refreshActive int
	refreshDone   chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPool runs asynchronous calls on a shared pool.
func WithPool(pool *workers.Pool) Option {
	return func(c *Client) {
		c.pool = pool
	}
}

// New creates a Client. provider may be nil, in which case a rejected
// credential always ends in ErrUnauthenticated.
func New(cfg Config, store CredentialStore, provider identity.Provider, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		identity:   provider,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = workers.New(workers.DefaultSize, c.logger)
		c.ownsPool = true
	}
	return c
}

// Close releases the worker pool if the client created it.
func (c *Client) Close() {
	if c.ownsPool {
		c.pool.Close()
	}
}

// Pool returns the pool asynchronous calls run on.
func (c *Client) Pool() *workers.Pool {
	return c.pool
}

// call describes a request so it can be built again for the retry.
type call struct {
	method string
	path   string
	query  url.Values
	body   any

	// emptyOK accepts a 2xx without a body even when a result is expected.
	emptyOK bool
}

func (c *Client) do(ctx context.Context, req call, out any) error {
	session, ok := c.store.Load(ctx)
	if !ok {
		if session, ok = c.awaitRefresh(ctx); !ok {
			return ErrUnauthenticated
		}
	}

	status, body, err := c.send(ctx, req, session.Token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		c.logger.Info("credential rejected, re-authenticating",
			"method", req.method, "path", req.path)

		fresh, err := c.reauthenticate(ctx, session.Token)
		if err != nil {
			return err
		}

		status, body, err = c.send(ctx, req, fresh.Token)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			c.logger.Warn("refreshed credential rejected", "method", req.method, "path", req.path)
			if _, err := c.store.ClearIfToken(context.WithoutCancel(ctx), fresh.Token); err != nil {
				c.logger.Error("failed to clear rejected credential", "error", err)
			}
			return ErrUnauthenticated
		}
	}

	return c.decode(req, status, body, out)
}

// send builds a fresh request, executes it and reads the whole body.
func (c *Client) send(ctx context.Context, req call, token string) (int, []byte, error) {
	httpReq, err := c.newRequest(ctx, req, token)
	if err != nil {
		return 0, nil, &RequestError{Method: req.method, Path: req.path, Err: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, &RequestError{Method: req.method, Path: req.path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &RequestError{Method: req.method, Path: req.path, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("backend request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"request_id", httpReq.Header.Get("X-Request-ID"))

	return resp.StatusCode, body, nil
}

func (c *Client) newRequest(ctx context.Context, req call, token string) (*http.Request, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	// The body is marshaled per attempt; a consumed reader is never resent.
	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

func (c *Client) decode(req call, status int, body []byte, out any) error {
	if status < 200 || status >= 300 {
		return &RequestError{
			Method:     req.method,
			Path:       req.path,
			StatusCode: status,
			Body:       truncate(body),
		}
	}
	if out == nil {
		return nil
	}
	if req.emptyOK && len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("malformed response from backend",
			"method", req.method,
			"path", req.path,
			"status", status,
			"body", truncate(body),
			"error", err)
		return &ParseError{Path: req.path, Body: string(body), Err: err}
	}
	return nil
}

// reauthenticate obtains a replacement for the rejected token. Concurrent
// callers holding the same rejected token share one refresh and its outcome.
func (c *Client) reauthenticate(ctx context.Context, rejected string) (entities.Session, error) {
	if current, ok := c.store.Load(ctx); ok && current.Token != rejected {
		return current, nil
	}

	ch := c.refreshes.DoChan(fingerprint(rejected), func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), rejected)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return entities.Session{}, res.Err
		}
		return res.Val.(entities.Session), nil
	case <-ctx.Done():
		return entities.Session{}, ctx.Err()
	}
}

func (c *Client) refresh(ctx context.Context, rejected string) (entities.Session, error) {
	c.beginRefresh()
	defer c.endRefresh()

	// A flight that finished just before this one may already have replaced it.
	if current, ok := c.store.Load(ctx); ok && current.Token != rejected {
		return current, nil
	}

	if _, err := c.store.ClearIfToken(ctx, rejected); err != nil {
		c.logger.Error("failed to clear rejected credential", "error", err)
	}

	if c.identity == nil {
		return entities.Session{}, fmt.Errorf("%w: %v", ErrUnauthenticated, identity.ErrNoAssertion)
	}
	assertion, err := c.identity.SilentAssertion(ctx)
	if err != nil {
		c.logger.Warn("silent re-authentication unavailable", "provider", c.identity.Name(), "error", err)
		return entities.Session{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	session, err := c.exchange(ctx, assertion)
	if err != nil {
		c.logger.Warn("identity exchange failed", "provider", c.identity.Name(), "error", err)
		return entities.Session{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if err := c.store.Save(ctx, session); err != nil {
		return entities.Session{}, fmt.Errorf("%w: failed to persist credential: %v", ErrUnauthenticated, err)
	}

	c.logger.Info("re-authenticated", "session", session)
	return session, nil
}

func (c *Client) beginRefresh() {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.refreshActive == 0 {
		c.refreshDone = make(chan struct{})
	}
	c.refreshActive++
}

func (c *Client) endRefresh() {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.refreshActive--
	if c.refreshActive == 0 {
		close(c.refreshDone)
		c.refreshDone = nil
	}
}

// awaitRefresh waits for running refreshes and reloads the credential. It
// does no network I/O of its own.
func (c *Client) awaitRefresh(ctx context.Context) (entities.Session, bool) {
	c.refreshMu.Lock()
	done := c.refreshDone
	c.refreshMu.Unlock()

	if done == nil {
		return entities.Session{}, false
	}
	select {
	case <-done:
	case <-ctx.Done():
		return entities.Session{}, false
	}
	return c.store.Load(ctx)
}

func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}

func isAuthRejection(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) &&
		(reqErr.StatusCode == http.StatusUnauthorized || reqErr.StatusCode == http.StatusForbidden)
}
