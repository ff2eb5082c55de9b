// Package api implements the transport client: request construction against
// the versioned base endpoint, bearer auth injection, timeouts, envelope
// parsing, and the one-shot refresh-and-retry recovery on 401.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/afrobizconnect/client-go/internal/storage"
	"github.com/afrobizconnect/client-go/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Envelope is the standard response wrapper returned by every endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
	Meta    *Meta           `json:"meta,omitempty"`
}

// Meta carries listing metadata.
type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// DecodeData unmarshals the envelope's data field into v.
func DecodeData(env *Envelope, v any) error {
	if env == nil || len(env.Data) == 0 {
		return parseError(0, errors.New("envelope has no data"))
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return parseError(0, err)
	}
	return nil
}

// Config configures the transport client.
type Config struct {
	// BaseURL is the server root, e.g. https://api.afrobizconnect.com.
	BaseURL string
	// APIVersion is the versioned path segment, e.g. "v1".
	APIVersion string
	// Timeout is the per-request budget. Defaults to 10s.
	Timeout time.Duration
	// HTTPClient executes requests. When nil a default client is used; the
	// per-request budget is enforced through context deadlines either way.
	HTTPClient *http.Client
	// Storage is the durable store holding the token pair. Required.
	Storage storage.Store
	Logger  *logger.Logger
}

// Client is the single point of outbound request construction. It holds only
// a cached copy of the current access token; the session service owns the
// token pair in durable storage.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      storage.Store
	log        *logger.Logger
	timeout    time.Duration

	mu          sync.RWMutex
	accessToken string

	// refreshMu serializes token refresh so concurrent 401s cannot race to
	// consume the same single-use refresh token.
	refreshMu     sync.Mutex
	onAuthFailure func()
}

// New creates a transport client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api: BaseURL must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api: BaseURL scheme must be http or https")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("api: Storage is required")
	}

	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = "v1"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("api")
	}

	return &Client{
		baseURL:    base + "/api/" + version,
		httpClient: httpClient,
		store:      cfg.Storage,
		log:        log,
		timeout:    timeout,
	}, nil
}

// OnAuthFailure registers the hook invoked when a token refresh fails
// terminally. The session service uses it to drop the in-memory user.
func (c *Client) OnAuthFailure(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailure = fn
}

// SetAccessToken replaces the cached access token. Called by the session
// service when it rotates the pair.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// ClearTokens removes every durable session key and the cached token.
func (c *Client) ClearTokens(ctx context.Context) error {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
	return c.store.Delete(ctx, storage.SessionKeys...)
}

// Options controls a single request.
type Options struct {
	// RequiresAuth attaches the bearer credential and arms 401 recovery.
	RequiresAuth bool
	// Timeout overrides the client budget for this request.
	Timeout time.Duration
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, requiresAuth bool) (*Envelope, error) {
	return c.Request(ctx, http.MethodGet, endpoint, nil, Options{RequiresAuth: requiresAuth})
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any, requiresAuth bool) (*Envelope, error) {
	return c.Request(ctx, http.MethodPost, endpoint, body, Options{RequiresAuth: requiresAuth})
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body any, requiresAuth bool) (*Envelope, error) {
	return c.Request(ctx, http.MethodPut, endpoint, body, Options{RequiresAuth: requiresAuth})
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, requiresAuth bool) (*Envelope, error) {
	return c.Request(ctx, http.MethodPatch, endpoint, body, Options{RequiresAuth: requiresAuth})
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, requiresAuth bool) (*Envelope, error) {
	return c.Request(ctx, http.MethodDelete, endpoint, nil, Options{RequiresAuth: requiresAuth})
}

// Request issues one request and returns the parsed envelope. On a 401 with
// RequiresAuth set it performs exactly one refresh and one retry; a second
// authorization failure is terminal.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any, opts Options) (*Envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request body: %w", err)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	token := ""
	if opts.RequiresAuth {
		token = c.currentToken(ctx)
	}

	resp, bodyBytes, err := c.do(ctx, method, endpoint, payload, token, timeout)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && opts.RequiresAuth {
		if err := c.refreshAccessToken(ctx, token); err != nil {
			return nil, authFailedError()
		}
		newToken := c.currentToken(ctx)
		resp, bodyBytes, err = c.do(ctx, method, endpoint, payload, newToken, timeout)
		if err != nil {
			return nil, err
		}
	}

	return c.parseEnvelope(resp, bodyBytes)
}

// HealthCheck reports whether the API answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) bool {
	env, err := c.Get(ctx, "/health", false)
	if err != nil {
		c.log.WithError(err).Warn("health check failed")
		return false
	}
	return env.Success
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, token string, timeout time.Duration) (*http.Response, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, timeoutError()
		}
		if errors.Is(err, context.Canceled) {
			return nil, nil, err
		}
		return nil, nil, networkError(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, timeoutError()
		}
		return nil, nil, networkError(err)
	}
	return resp, bodyBytes, nil
}

func (c *Client) parseEnvelope(resp *http.Response, body []byte) (*Envelope, error) {
	contentType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || contentType != "application/json" {
		return nil, parseError(resp.StatusCode, fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type")))
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, parseError(resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return nil, &Error{Message: msg, Status: resp.StatusCode, Code: env.Code}
	}
	return &env, nil
}

// currentToken returns the cached access token, reading through to durable
// storage when the cache is cold. An absent token is not an error: the
// request goes out without the header and the server rejects it if required.
func (c *Client) currentToken(ctx context.Context) string {
	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	if token != "" {
		return token
	}

	stored, err := c.store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.WithError(err).Warn("read access token")
		}
		return ""
	}
	c.mu.Lock()
	c.accessToken = stored
	c.mu.Unlock()
	return stored
}

// refreshAccessToken rotates the token pair using the stored refresh token.
// Callers racing on the same expired token serialize here: the loser of the
// race observes the already-rotated token and returns without issuing a
// second refresh call. On failure all session state is cleared and the
// auth-failure hook fires; the caller must not retry.
func (c *Client) refreshAccessToken(ctx context.Context, staleToken string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.currentToken(ctx); current != "" && current != staleToken {
		return nil
	}

	err := c.doRefresh(ctx)
	if err == nil {
		return nil
	}

	c.log.WithError(err).Warn("token refresh failed")
	if clearErr := c.ClearTokens(ctx); clearErr != nil {
		c.log.WithError(clearErr).Warn("clear session after failed refresh")
	}
	c.mu.RLock()
	hook := c.onAuthFailure
	c.mu.RUnlock()
	if hook != nil {
		hook()
	}
	return err
}

func (c *Client) doRefresh(ctx context.Context) error {
	refreshToken, err := c.store.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("api: no refresh token available: %w", err)
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return fmt.Errorf("api: marshal refresh request: %w", err)
	}

	resp, body, err := c.do(ctx, http.MethodPost, "/auth/refresh", payload, "", c.timeout)
	if err != nil {
		return err
	}
	env, err := c.parseEnvelope(resp, body)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("api: refresh rejected: %s", env.Message)
	}

	var tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	}
	if err := DecodeData(env, &tokens); err != nil {
		return err
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return fmt.Errorf("api: refresh response missing token pair")
	}

	rotated := map[string]string{
		storage.KeyAccessToken:  tokens.AccessToken,
		storage.KeyRefreshToken: tokens.RefreshToken,
	}
	if tokens.ExpiresIn > 0 {
		rotated[storage.KeyTokenExpiry] = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Format(time.RFC3339)
	}
	if err := c.store.SetMulti(ctx, rotated); err != nil {
		return fmt.Errorf("api: persist rotated tokens: %w", err)
	}
	c.SetAccessToken(tokens.AccessToken)
	return nil
}
