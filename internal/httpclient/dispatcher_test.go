package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tiffany-su2004/smart-greenhouse/internal/credentials"
	"github.com/tiffany-su2004/smart-greenhouse/internal/session"
)

// backend is a fake greenhouse API: /sensor/latest accepts only the current
// access token, /auth/refresh rotates it.
type backend struct {
	mu          sync.Mutex
	validToken  string
	refreshOK   bool
	refreshWait time.Duration
	alwaysDeny  bool

	targetHits  atomic.Int32
	refreshHits atomic.Int32
	bodies      []string
	authHeaders []string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshHits.Add(1)
		if b.refreshWait > 0 {
			time.Sleep(b.refreshWait)
		}
		if !b.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid refresh token"}`))
			return
		}
		b.mu.Lock()
		b.validToken = "new-access"
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(credentials.Pair{AccessToken: "new-access", RefreshToken: "new-refresh"})
	})
	mux.HandleFunc("/api/sensor/latest", func(w http.ResponseWriter, r *http.Request) {
		b.targetHits.Add(1)
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, string(body))
		b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
		valid := "Bearer " + b.validToken
		b.mu.Unlock()

		if b.alwaysDeny || r.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"ph":6.1}}`))
	})
	return mux
}

type harness struct {
	srv   *httptest.Server
	store *credentials.MemoryStore
	coord *session.Coordinator
	disp  *Dispatcher
}

func newHarness(t *testing.T, b *backend, access, refresh string) *harness {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	store := credentials.NewMemoryStore()
	require.NoError(t, store.SetPair(context.Background(), credentials.Pair{AccessToken: access, RefreshToken: refresh}))

	base := srv.URL + "/api"
	coord := session.NewCoordinator(zap.NewNop(), store, srv.Client(), base, "Browser")
	return &harness{
		srv:   srv,
		store: store,
		coord: coord,
		disp:  NewDispatcher(zap.NewNop(), srv.Client(), base, store, coord),
	}
}

func getLatest() Request {
	return Request{Method: http.MethodGet, Path: "/sensor/latest"}
}

// ─── Credential attach ───────────────────────────────────────────────────────

func TestDo_AttachesBearerAndJSONHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/api/sensor/latest", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.SetPair(context.Background(), credentials.Pair{AccessToken: "acc-1"}))
	d := NewDispatcher(zap.NewNop(), srv.Client(), srv.URL+"/api", store, nil)

	resp, err := d.Do(context.Background(), getLatest())
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "Bearer acc-1", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestDo_NoTokenNoAuthorizationHeader(t *testing.T) {
	var auth string
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, present = r.Header["Authorization"]
	}))
	defer srv.Close()

	d := NewDispatcher(zap.NewNop(), srv.Client(), srv.URL, credentials.NewMemoryStore(), nil)
	resp, err := d.Do(context.Background(), getLatest())
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, auth)
	assert.False(t, present)
}

func TestDo_CallerHeadersOverrideDefaultsButNotAuthorization(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.SetPair(context.Background(), credentials.Pair{AccessToken: "stored"}))
	d := NewDispatcher(zap.NewNop(), srv.Client(), srv.URL, store, nil)

	req := getLatest()
	req.Header = http.Header{
		"Content-Type":  []string{"text/csv"},
		"Authorization": []string{"Bearer forged"},
		"X-Trace":       []string{"abc"},
	}
	resp, err := d.Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "text/csv", got.Get("Content-Type"))
	assert.Equal(t, "Bearer stored", got.Get("Authorization"))
	assert.Equal(t, "abc", got.Get("X-Trace"))
}

func TestDo_EncodesQuery(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
	}))
	defer srv.Close()

	d := NewDispatcher(zap.NewNop(), srv.Client(), srv.URL, credentials.NewMemoryStore(), nil)
	resp, err := d.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/sensor/history",
		Query:  url.Values{"range": []string{"7d"}},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "range=7d", rawQuery)
}

// ─── Refresh and retry ───────────────────────────────────────────────────────

func TestDo_401RefreshThenSuccess(t *testing.T) {
	b := &backend{validToken: "fresh-only", refreshOK: true}
	h := newHarness(t, b, "stale-access", "refresh-1")

	resp, err := h.disp.Do(context.Background(), getLatest())
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"success","data":{"ph":6.1}}`, string(body))

	assert.EqualValues(t, 2, b.targetHits.Load(), "first attempt + one retry")
	assert.EqualValues(t, 1, b.refreshHits.Load())
	assert.Equal(t, []string{"Bearer stale-access", "Bearer new-access"}, b.authHeaders)

	refresh, _ := h.store.Refresh(context.Background())
	assert.Equal(t, "new-refresh", refresh)
}

func TestDo_RetryResendsBody(t *testing.T) {
	b := &backend{validToken: "fresh-only", refreshOK: true}
	h := newHarness(t, b, "stale-access", "refresh-1")

	req, err := NewJSONRequest(http.MethodPost, "/sensor/latest", map[string]any{"ph": 6.2})
	require.NoError(t, err)

	resp, err := h.disp.Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Len(t, b.bodies, 2)
	assert.JSONEq(t, `{"ph":6.2}`, b.bodies[0])
	assert.JSONEq(t, `{"ph":6.2}`, b.bodies[1], "retry must re-send the full body")
}

func TestDo_Persistent401ReturnsSecondResponse(t *testing.T) {
	b := &backend{refreshOK: true, alwaysDeny: true}
	h := newHarness(t, b, "stale-access", "refresh-1")

	resp, err := h.disp.Do(context.Background(), getLatest())
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Token expired", "second 401 is returned readable")
	assert.EqualValues(t, 2, b.targetHits.Load(), "no more than one retry")
	assert.EqualValues(t, 1, b.refreshHits.Load())
}

func TestDo_RefreshRejectedSurfacesRefreshError(t *testing.T) {
	b := &backend{validToken: "fresh-only", refreshOK: false}
	h := newHarness(t, b, "stale-access", "refresh-1")

	resp, err := h.disp.Do(context.Background(), getLatest())
	assert.Nil(t, resp)

	var refreshErr *session.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.ErrorIs(t, err, session.ErrRefreshRejected)
	assert.EqualValues(t, 1, b.targetHits.Load(), "no retry after a failed refresh")

	access, _ := h.store.Access(context.Background())
	assert.Empty(t, access, "credentials cleared")
}

func TestDo_NoRefreshTokenSurfacesRefreshError(t *testing.T) {
	b := &backend{validToken: "fresh-only", refreshOK: true}
	h := newHarness(t, b, "stale-access", "")

	_, err := h.disp.Do(context.Background(), getLatest())
	assert.ErrorIs(t, err, session.ErrNoRefreshToken)
	assert.EqualValues(t, 0, b.refreshHits.Load())
}

func TestDo_NonAuthErrorsReturnedUnmodified(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail":"nope"}`))
		}))

		refresher := &countingRefresher{}
		d := NewDispatcher(zap.NewNop(), srv.Client(), srv.URL, credentials.NewMemoryStore(), refresher)
		resp, err := d.Do(context.Background(), getLatest())
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		srv.Close()

		assert.Equal(t, status, resp.StatusCode)
		assert.JSONEq(t, `{"detail":"nope"}`, string(body))
		assert.EqualValues(t, 1, hits.Load(), "status %d must not be retried", status)
		assert.EqualValues(t, 0, refresher.calls.Load())
	}
}

func TestDo_NilRefresherReturns401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDispatcher(zap.NewNop(), srv.Client(), srv.URL, credentials.NewMemoryStore(), nil)
	resp, err := d.Do(context.Background(), getLatest())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ─── Transport failure ───────────────────────────────────────────────────────

type failingDoer struct{ calls atomic.Int32 }

func (f *failingDoer) Do(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("dial tcp: connection refused")
}

func TestDo_TransportErrorNotRetried(t *testing.T) {
	doer := &failingDoer{}
	refresher := &countingRefresher{}
	d := NewDispatcher(zap.NewNop(), doer, "http://greenhouse.test/api", credentials.NewMemoryStore(), refresher)

	_, err := d.Do(context.Background(), getLatest())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "/sensor/latest", transportErr.Path)
	assert.Contains(t, err.Error(), "connection refused")
	assert.EqualValues(t, 1, doer.calls.Load())
	assert.EqualValues(t, 0, refresher.calls.Load())
}

// ─── Anonymous sends ─────────────────────────────────────────────────────────

func TestDoAnonymous_NoBearerNoRefresh(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.SetPair(context.Background(), credentials.Pair{AccessToken: "acc"}))
	refresher := &countingRefresher{}
	d := NewDispatcher(zap.NewNop(), srv.Client(), srv.URL, store, refresher)

	resp, err := d.DoAnonymous(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login"})
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, auth)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 0, refresher.calls.Load())
}

// ─── Single flight across concurrent calls ───────────────────────────────────

func TestDo_ConcurrentExpiredCallsShareOneRefresh(t *testing.T) {
	const callers = 6
	b := &backend{validToken: "fresh-only", refreshOK: true, refreshWait: 100 * time.Millisecond}

	// All first attempts wait for each other, so every caller holds a 401
	// before any refresh has started.
	var arrived sync.WaitGroup
	arrived.Add(callers)
	inner := b.handler()
	gate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/sensor/latest" && r.Header.Get("Authorization") == "Bearer stale-access" {
			arrived.Done()
			arrived.Wait()
		}
		inner.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(gate)
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.SetPair(context.Background(), credentials.Pair{AccessToken: "stale-access", RefreshToken: "refresh-1"}))
	base := srv.URL + "/api"
	coord := session.NewCoordinator(zap.NewNop(), store, srv.Client(), base, "Browser")
	d := NewDispatcher(zap.NewNop(), srv.Client(), base, store, coord)

	var wg sync.WaitGroup
	statuses := make(chan int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := d.Do(context.Background(), getLatest())
			if !assert.NoError(t, err) {
				return
			}
			statuses <- resp.StatusCode
			_ = resp.Body.Close()
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
	assert.EqualValues(t, 1, b.refreshHits.Load(), "exactly one refresh exchange")
	assert.EqualValues(t, 2*callers, b.targetHits.Load())
}

// holdingDoer delays handing back the first response of requests marked
// with X-Caller: late until release is closed.
type holdingDoer struct {
	inner   Doer
	held    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *holdingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := h.inner.Do(req)
	if req.Header.Get("X-Caller") != "late" {
		return resp, err
	}
	h.once.Do(func() {
		close(h.held)
		<-h.release
	})
	return resp, err
}

func TestDo_Late401AfterSettledRefreshDoesNotRefreshAgain(t *testing.T) {
	b := &backend{validToken: "fresh-only", refreshOK: true}
	srv := httptest.NewServer(b.handler())
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.SetPair(context.Background(), credentials.Pair{AccessToken: "stale-access", RefreshToken: "refresh-1"}))
	base := srv.URL + "/api"
	coord := session.NewCoordinator(zap.NewNop(), store, srv.Client(), base, "Browser")
	doer := &holdingDoer{inner: srv.Client(), held: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(zap.NewNop(), doer, base, store, coord)

	late := getLatest()
	late.Header = http.Header{"X-Caller": {"late"}}

	lateStatus := make(chan int, 1)
	go func() {
		resp, err := d.Do(context.Background(), late)
		if !assert.NoError(t, err) {
			lateStatus <- 0
			return
		}
		_ = resp.Body.Close()
		lateStatus <- resp.StatusCode
	}()

	// The late caller holds its 401 while another call runs a full
	// 401, refresh, retry cycle.
	<-doer.held
	resp, err := d.Do(context.Background(), getLatest())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, b.refreshHits.Load())

	close(doer.release)
	assert.Equal(t, http.StatusOK, <-lateStatus)
	assert.EqualValues(t, 1, b.refreshHits.Load(), "late 401 reuses the settled refresh")
	assert.EqualValues(t, 4, b.targetHits.Load())
	assert.Equal(t, "Bearer new-access", b.authHeaders[len(b.authHeaders)-1])
}

type countingRefresher struct{ calls atomic.Int32 }

func (c *countingRefresher) Refresh(context.Context) (string, error) {
	c.calls.Add(1)
	return "unused", nil
}
