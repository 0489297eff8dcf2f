// Package session owns the refresh side of the credential lifecycle: it
// exchanges the stored refresh credential for a new pair, at most once at a
// time per Coordinator.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tiffany-su2004/smart-greenhouse/internal/credentials"
	"github.com/tiffany-su2004/smart-greenhouse/internal/metrics"
	"github.com/tiffany-su2004/smart-greenhouse/pkg/utils"
)

const (
	refreshPath = "/auth/refresh"
	flightKey   = "refresh"
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// refreshRequest is the body of POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Device       string `json:"device"`
}

// Coordinator performs single-flight refresh exchanges. Every concurrent
// caller that arrives while an exchange is outstanding receives that
// exchange's result; once it settles the next call starts a new one.
//
// Coordinators hold no package-level state, so tests can build one per case.
type Coordinator struct {
	logger  *zap.Logger
	store   credentials.Store
	http    Doer
	baseURL string
	device  string

	flight   singleflight.Group
	inFlight atomic.Bool
}

// NewCoordinator builds a Coordinator that refreshes against baseURL,
// identifying itself with the given device label.
func NewCoordinator(logger *zap.Logger, store credentials.Store, httpClient Doer, baseURL, device string) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Coordinator{
		logger:  logger,
		store:   store,
		http:    httpClient,
		baseURL: baseURL,
		device:  device,
	}
}

// Refresh returns a new access credential. Callers that give up through ctx
// stop waiting, but the shared exchange still settles for everyone else.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	exchangeCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(flightKey, func() (any, error) {
		return c.exchange(exchangeCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.Debug("session.refresh_joined")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// State reports where the session currently sits in its lifecycle.
func (c *Coordinator) State(ctx context.Context) State {
	if c.inFlight.Load() {
		return Expired
	}
	access, err := c.store.Access(ctx)
	if err != nil || access == "" {
		return Anonymous
	}
	return Authenticated
}

// exchange runs one network refresh. Only the flight leader calls it.
func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	refreshToken, err := c.store.Refresh(ctx)
	if err != nil {
		metrics.IncRefresh("store_error")
		return "", &RefreshError{Err: fmt.Errorf("read refresh token: %w", err)}
	}
	if refreshToken == "" {
		metrics.IncRefresh("no_token")
		c.logger.Info("session.refresh_skipped", zap.String("reason", ErrNoRefreshToken.Error()))
		return "", &RefreshError{Err: ErrNoRefreshToken}
	}

	start := time.Now()
	resp, err := c.send(ctx, refreshToken)
	if err != nil {
		metrics.IncRefresh("unreachable")
		c.logger.Warn("session.refresh_unreachable", zap.Error(err))
		return "", &RefreshError{Err: fmt.Errorf("%w: %w", ErrRefreshUnreachable, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", c.reject(ctx, resp.StatusCode, "non-success status")
	}

	var pair credentials.Pair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		metrics.IncRefresh("decode_error")
		return "", &RefreshError{Status: resp.StatusCode, Err: fmt.Errorf("%w: decode refresh response: %w", ErrRefreshMalformed, err)}
	}
	if pair.AccessToken == "" {
		return "", c.reject(ctx, resp.StatusCode, "empty access_token")
	}

	if err := c.store.SetPair(ctx, pair); err != nil {
		metrics.IncRefresh("store_error")
		return "", &RefreshError{Err: fmt.Errorf("store refreshed pair: %w", err)}
	}

	metrics.IncRefresh("success")
	fields := []zap.Field{
		zap.String("access", utils.MaskToken(pair.AccessToken)),
		zap.Duration("elapsed", time.Since(start)),
	}
	c.logger.Info("session.refresh_success", append(fields, claimFields(pair.AccessToken)...)...)
	return pair.AccessToken, nil
}

// reject ends the session: both credentials are removed before the error
// reaches any caller.
func (c *Coordinator) reject(ctx context.Context, status int, reason string) error {
	metrics.IncRefresh("rejected")
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("session.clear_failed", zap.Error(err))
	}
	c.logger.Warn("session.refresh_rejected",
		zap.Int("status", status),
		zap.String("reason", reason))
	return &RefreshError{Status: status, Err: ErrRefreshRejected}
}

func (c *Coordinator) send(ctx context.Context, refreshToken string) (*http.Response, error) {
	data, err := json.Marshal(refreshRequest{RefreshToken: refreshToken, Device: c.device})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}
