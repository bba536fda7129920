// Package remote is the client for the hosted directory backend.
//
// The backend exposes PostgREST-style table endpoints under /rest/v1, Postgres
// functions under /rest/v1/rpc, password auth under /auth/v1 and a realtime
// websocket under /realtime/v1. Every request carries the anon key; admin
// writes additionally carry the signed-in user's bearer token (see WithSession).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/httpclient"
	"github.com/teranos/jawala/logger"
	"github.com/teranos/jawala/version"
)

// Function names exposed by the backend
const (
	RPCBusinessesWithRatings = "get_businesses_with_ratings"
	RPCBusinessRating        = "get_business_rating"
)

// Config configures a Client
type Config struct {
	URL               string
	AnonKey           string
	Timeout           time.Duration // 0 = 15s
	RequestsPerSecond float64       // 0 = unlimited
	Burst             int           // 0 = 1
	VersionRPC        string        // optional RPC returning the full fingerprint
	BlockPrivateIP    bool
	Retries           int           // extra attempts for idempotent reads, 0 = 2
	Logger            *zap.SugaredLogger
	HTTPClient        *httpclient.SaferClient // nil = built from Timeout/BlockPrivateIP
}

// Client talks to the backend
type Client struct {
	base       *url.URL
	anonKey    string
	token      string
	versionRPC string
	retries    int
	retryDelay time.Duration

	http    *httpclient.SaferClient
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewClient validates cfg and returns a client
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("backend URL not configured"),
			"Set backend.url in ~/.jawala/am.toml or JAWALA_BACKEND_URL",
		)
	}
	if cfg.AnonKey == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("backend anon key not configured"),
			"Set backend.anon_key in ~/.jawala/am.toml or JAWALA_BACKEND_ANON_KEY",
		)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpclient.New(timeout, httpclient.Options{BlockPrivateIP: cfg.BlockPrivateIP})
	}

	base, err := hc.ValidateURL(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "backend URL rejected"), errors.ErrInvalidRequest)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = 2
	}

	return &Client{
		base:       base,
		anonKey:    cfg.AnonKey,
		versionRPC: cfg.VersionRPC,
		retries:    retries,
		retryDelay: 500 * time.Millisecond,
		http:       hc,
		limiter:    limiter,
		logger:     log,
	}, nil
}

// WithSession returns a copy of the client that authenticates as the
// signed-in user. The rate limiter is shared with the original.
func (c *Client) WithSession(s Session) *Client {
	clone := *c
	clone.token = s.AccessToken
	return &clone
}

// BaseURL returns the backend root
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// AnonKey returns the public API key
func (c *Client) AnonKey() string {
	return c.anonKey
}

// RealtimeURL returns the websocket endpoint of the change feed
func (c *Client) RealtimeURL() string {
	u := c.BaseURL()
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", c.anonKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String()
}

// request describes one backend call
type request struct {
	method string
	path   string // relative to the backend root, e.g. "/rest/v1/businesses"
	query  url.Values
	body   interface{}
	prefer []string
	header http.Header
}

// response is a completed call with its body read
type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) decode(v interface{}) error {
	if len(r.body) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(r.body, v); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// do sends req, retrying idempotent reads on transient failures
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	attempts := 1
	if req.method == http.MethodGet || req.method == http.MethodHead {
		attempts += c.retries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryDelay
			c.logger.Debugw("Retrying backend request",
				logger.FieldMethod, req.method,
				logger.FieldPath, req.path,
				logger.FieldAttempt, attempt,
				logger.FieldBackoff, delay,
			)
			select {
			case <-ctx.Done():
				return nil, errors.Mark(errors.Wrap(ctx.Err(), "backend request cancelled"), errors.ErrTimeout)
			case <-time.After(delay):
			}
		}

		resp, err := c.once(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, errors.Wrapf(lastErr, "backend request failed after %d attempts", attempts)
}

func (c *Client) once(ctx context.Context, req request) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "rate limiter"), errors.ErrTimeout)
		}
	}

	u := c.BaseURL()
	u.Path = strings.TrimRight(u.Path, "/") + req.path
	if req.query != nil {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("apikey", c.anonKey)
	bearer := c.anonKey
	if c.token != "" {
		bearer = c.token
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Client-Info", version.Get().ClientInfo())
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if len(req.prefer) > 0 {
		httpReq.Header.Set("Prefer", strings.Join(req.prefer, ","))
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Mark(errors.Wrapf(err, "%s %s", req.method, req.path), errors.ErrTimeout)
		}
		return nil, errors.Mark(errors.Wrapf(err, "%s %s", req.method, req.path), errors.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response"), errors.ErrServiceUnavailable)
	}

	c.logger.Debugw("Backend request",
		logger.FieldMethod, req.method,
		logger.FieldPath, req.path,
		logger.FieldStatus, resp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 300 {
		return nil, statusError(req, resp.StatusCode, raw)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, errors.ErrServiceUnavailable)
}

// eq builds a PostgREST equality filter value
func eq(v string) string {
	return "eq." + v
}
