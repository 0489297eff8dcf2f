// Package httpclient sends authenticated requests to the greenhouse backend
// and recovers once from an expired access credential.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tiffany-su2004/smart-greenhouse/internal/metrics"
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource yields the access credential to attach at send time.
type TokenSource interface {
	Access(ctx context.Context) (string, error)
}

// Refresher obtains a new access credential after a 401.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Dispatcher attaches the bearer credential, sends the request and performs
// at most one refresh-and-retry cycle per call.
type Dispatcher struct {
	logger    *zap.Logger
	http      Doer
	baseURL   string
	tokens    TokenSource
	refresher Refresher
}

// NewDispatcher builds a Dispatcher. A nil refresher disables the retry cycle.
func NewDispatcher(logger *zap.Logger, httpClient Doer, baseURL string, tokens TokenSource, refresher Refresher) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:    logger,
		http:      httpClient,
		baseURL:   baseURL,
		tokens:    tokens,
		refresher: refresher,
	}
}

// Do sends r with the stored access credential. A 401 triggers one refresh
// and one resend; the resend's response is final, whatever its status. When
// the store already holds a newer access credential than the one sent, the
// refresh is skipped and only the resend happens.
//
// Responses other than a recoverable 401 are returned unmodified and the
// caller owns the body. Errors are *TransportError, a refresh error from the
// Refresher, or a context error.
func (d *Dispatcher) Do(ctx context.Context, r Request) (*http.Response, error) {
	retriedAfterRefresh := false
	for {
		resp, sent, err := d.send(ctx, r, true)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized || retriedAfterRefresh || d.refresher == nil {
			return resp, nil
		}

		discard(resp)
		retriedAfterRefresh = true

		rotated, err := d.rotatedSince(ctx, sent)
		if err != nil {
			return nil, err
		}
		if rotated {
			// Another call already refreshed after this request went out.
			d.logger.Debug("httpclient.auth_expired_already_refreshed",
				zap.String("method", r.Method),
				zap.String("path", r.Path))
			continue
		}

		d.logger.Info("httpclient.auth_expired",
			zap.String("method", r.Method),
			zap.String("path", r.Path))
		if _, err := d.refresher.Refresh(ctx); err != nil {
			return nil, err
		}
	}
}

// DoAnonymous sends r without a bearer credential and without the refresh
// cycle. Login and registration use it before any credential exists.
func (d *Dispatcher) DoAnonymous(ctx context.Context, r Request) (*http.Response, error) {
	resp, _, err := d.send(ctx, r, false)
	return resp, err
}

// rotatedSince reports whether the store now holds a non-empty access
// credential different from sent.
func (d *Dispatcher) rotatedSince(ctx context.Context, sent string) (bool, error) {
	if d.tokens == nil {
		return false, nil
	}
	current, err := d.tokens.Access(ctx)
	if err != nil {
		return false, fmt.Errorf("read access token: %w", err)
	}
	return current != "" && current != sent, nil
}

// send performs one attempt and returns the access credential it attached.
func (d *Dispatcher) send(ctx context.Context, r Request, withAuth bool) (*http.Response, string, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.url(d.baseURL), body)
	if err != nil {
		return nil, "", fmt.Errorf("build %s %s: %w", r.Method, r.Path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for key, values := range r.Header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	// Authorization always comes from the store, never from the caller.
	req.Header.Del("Authorization")
	var token string
	if withAuth && d.tokens != nil {
		token, err = d.tokens.Access(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("read access token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := d.http.Do(req)
	metrics.ObserveDuration(metrics.APIRequestDuration, start, r.route(), r.Method)
	if err != nil {
		metrics.IncAPIRequest(r.route(), r.Method, "error")
		d.logger.Warn("httpclient.http_failed",
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.String("request_id", req.Header.Get("X-Request-ID")),
			zap.Error(err))
		return nil, token, &TransportError{Method: r.Method, Path: r.Path, Err: err}
	}

	metrics.IncAPIRequest(r.route(), r.Method, strconv.Itoa(resp.StatusCode))
	d.logger.Debug("httpclient.http_done",
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return resp, token, nil
}

// discard drains and closes a response that will not reach the caller.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
