// Package rest is the single chokepoint for backend calls: bearer auth,
// envelope decoding, retry of transient server failures, and a short-TTL
// response cache for repeated reads.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weiki/usercenter-cli/internal/errs"
	"github.com/weiki/usercenter-cli/internal/store"
)

// DefaultTimeout bounds every HTTP call; a request past it fails as a
// NetworkError and is subject to the retry policy.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps response bodies read into memory.
const maxBodySize = 8 << 20

// envelope is the uniform backend response shape.
type envelope struct {
	Code        int             `json:"code"`
	Data        json.RawMessage `json:"data"`
	Message     string          `json:"message"`
	Description string          `json:"description"`
}

// Client wraps outgoing requests to the usercenter backend.
type Client struct {
	base   *url.URL
	http   *http.Client
	store  store.Store
	cache  *responseCache
	retry  RetryPolicy
	log    *zap.Logger
	tokTTL time.Duration
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	Retry    *RetryPolicy
	Store    store.Store
	Logger   *zap.Logger
	// FallbackTokenTTL is used when an issued token carries no parsable expiry.
	FallbackTokenTTL time.Duration
}

// New builds a Client for the given backend base URL.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url required", errs.ErrInvalidInput)
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store required", errs.ErrInvalidInput)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pol := DefaultRetryPolicy()
	if opts.Retry != nil {
		pol = *opts.Retry
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tokTTL := opts.FallbackTokenTTL
	if tokTTL <= 0 {
		tokTTL = 24 * time.Hour
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		store:  opts.Store,
		cache:  newResponseCache(opts.CacheTTL),
		retry:  pol,
		log:    log,
		tokTTL: tokTTL,
	}, nil
}

// Store exposes the durable mirror the client writes tokens into.
func (c *Client) Store() store.Store { return c.store }

// Do performs one backend call under the retry policy and returns the
// envelope data on success.
func (c *Client) Do(ctx context.Context, method, path string, body any, params url.Values) (json.RawMessage, error) {
	data, _, err := c.doRetained(ctx, method, path, body, params)
	return data, err
}

// Get performs a GET without consulting the cache.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil, params)
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, body, nil)
}

// GetCached serves the request from the response cache when a live entry
// exists, otherwise fetches and stores the result. Errors are never cached.
func (c *Client) GetCached(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	key := CacheKey(path, params)
	if data, ok := c.cache.get(key, time.Now()); ok {
		c.log.Debug("cache hit", zap.String("key", key))
		return data, nil
	}
	data, err := c.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, data, time.Now())
	return data, nil
}

// Invalidate drops cache entries whose key equals or starts with prefix.
func (c *Client) Invalidate(prefix string) {
	if n := c.cache.invalidate(prefix); n > 0 {
		c.log.Debug("cache invalidated", zap.String("prefix", prefix), zap.Int("entries", n))
	}
}

// InvalidatePattern drops cache entries whose key matches re.
func (c *Client) InvalidatePattern(re *regexp.Regexp) {
	if n := c.cache.invalidatePattern(re); n > 0 {
		c.log.Debug("cache invalidated", zap.String("pattern", re.String()), zap.Int("entries", n))
	}
}

// doRetained is Do plus the response header, needed for token capture.
func (c *Client) doRetained(ctx context.Context, method, path string, body any, params url.Values) (json.RawMessage, http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
	}

	var data json.RawMessage
	var hdr http.Header
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		data, hdr, err = c.attempt(ctx, method, path, payload, params)
		return err
	})
	return data, hdr, err
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, params url.Values) (json.RawMessage, http.Header, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok, ok := c.store.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, nil, &errs.NetworkError{URL: u.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, &errs.NetworkError{URL: u.String(), Err: err}
	}

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			// no envelope; synthesize from the status line
			return nil, nil, &errs.ServerError{
				Status:  resp.StatusCode,
				Code:    fallbackCode(resp.StatusCode),
				Message: http.StatusText(resp.StatusCode),
			}
		}
		return nil, nil, &errs.NetworkError{URL: u.String(), Err: fmt.Errorf("malformed response: %w", err)}
	}

	if env.Code != errs.CodeSuccess {
		se := &errs.ServerError{
			Status:      resp.StatusCode,
			Code:        env.Code,
			Message:     env.Message,
			Description: env.Description,
		}
		if env.Code == errs.CodeNotLogin {
			// the backend no longer recognizes this session
			if err := c.store.Clear(); err != nil {
				c.log.Warn("clear session mirror", zap.Error(err))
			} else {
				c.log.Debug("session mirror cleared after not-authenticated response")
			}
		}
		return nil, nil, se
	}
	return env.Data, resp.Header, nil
}

func fallbackCode(status int) int {
	switch {
	case status == http.StatusUnauthorized:
		return errs.CodeNotLogin
	case status == http.StatusForbidden:
		return errs.CodeForbidden
	case status == http.StatusNotFound:
		return errs.CodeNotFound
	case status >= 500:
		return errs.CodeSystemError
	default:
		return errs.CodeParamsError
	}
}
