package analytics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pilab-dev/glass-analytics/domain"
	serrors "github.com/pilab-dev/glass-analytics/errors"
	"github.com/pilab-dev/glass-analytics/internal/clock"
	"github.com/pilab-dev/glass-analytics/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *staticTokens) AccessToken(context.Context) (domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return domain.AccessToken{}, s.err
	}
	return domain.AccessToken{Value: "ya29.test", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *staticTokens) ClientEmail() string { return "reporter@demo.iam.gserviceaccount.com" }

func (s *staticTokens) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type fakeGA4 struct {
	t        *testing.T
	realtime int32
	runs     int32

	mu      sync.Mutex
	status  int
	body    string
	lastReq map[string]interface{}
}

func (f *fakeGA4) reply(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.body = status, body
}

func (f *fakeGA4) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, http.MethodPost, r.Method)
		assert.Equal(f.t, "Bearer ya29.test", r.Header.Get("Authorization"))
		assert.Equal(f.t, "application/json", r.Header.Get("Content-Type"))

		switch r.URL.Path {
		case "/v1beta/properties/123456:runRealtimeReport":
			atomic.AddInt32(&f.realtime, 1)
		case "/v1beta/properties/123456:runReport":
			atomic.AddInt32(&f.runs, 1)
		default:
			f.t.Errorf("unexpected path %s", r.URL.Path)
		}

		raw, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		assert.NoError(f.t, json.Unmarshal(raw, &req))

		f.mu.Lock()
		f.lastReq = req
		status, body := f.status, f.body
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func newTestClient(t *testing.T) (*Client, *fakeGA4, *staticTokens, *clock.Fake) {
	t.Helper()

	ga := &fakeGA4{t: t, status: http.StatusOK, body: `{}`}
	srv := httptest.NewServer(ga.handler())
	t.Cleanup(srv.Close)

	tokens := &staticTokens{}
	clk := clock.NewFake(time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC))

	c, err := NewClient("123456", tokens,
		WithBaseURL(srv.URL+"/v1beta"),
		WithHTTPClient(srv.Client()),
		WithClock(clk),
		WithLogger(log.Nop()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, ga, tokens, clk
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("  ", &staticTokens{})
	assert.ErrorIs(t, err, serrors.ErrConfig)

	_, err = NewClient("123", nil)
	assert.ErrorIs(t, err, serrors.ErrConfig)
}

func TestClient_RealtimeActiveUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("cached for 120 seconds", func(t *testing.T) {
		c, ga, _, clk := newTestClient(t)
		ga.reply(http.StatusOK, `{"rows":[{"metricValues":[{"value":"17"}]}],"rowCount":1}`)

		n, ok := c.RealtimeActiveUsers(ctx)
		require.True(t, ok)
		assert.Equal(t, 17, n)

		ga.reply(http.StatusOK, `{"rows":[{"metricValues":[{"value":"99"}]}]}`)
		clk.Advance(30 * time.Second)
		n, ok = c.RealtimeActiveUsers(ctx)
		require.True(t, ok)
		assert.Equal(t, 17, n)
		assert.Equal(t, int32(1), atomic.LoadInt32(&ga.realtime))

		clk.Advance(91 * time.Second)
		n, ok = c.RealtimeActiveUsers(ctx)
		require.True(t, ok)
		assert.Equal(t, 99, n)
		assert.Equal(t, int32(2), atomic.LoadInt32(&ga.realtime))
	})

	t.Run("sends the activeUsers metric", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{"rows":[{"metricValues":[{"value":"1"}]}]}`)

		_, ok := c.RealtimeActiveUsers(ctx)
		require.True(t, ok)

		ga.mu.Lock()
		defer ga.mu.Unlock()
		assert.Equal(t, []interface{}{map[string]interface{}{"name": "activeUsers"}}, ga.lastReq["metrics"])
		assert.NotContains(t, ga.lastReq, "dateRanges")
	})

	t.Run("no rows means zero", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{"kind":"analyticsData#runRealtimeReport"}`)

		n, ok := c.RealtimeActiveUsers(ctx)
		require.True(t, ok)
		assert.Equal(t, 0, n)
	})

	t.Run("auth failure is no value and is retried", func(t *testing.T) {
		c, ga, tokens, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{"rows":[{"metricValues":[{"value":"4"}]}]}`)
		tokens.setErr(serrors.NewTokenExchangeError("https://oauth2.googleapis.com/token", http.StatusBadRequest,
			&serrors.OAuth2Error{Code: "invalid_grant", Description: "Invalid JWT Signature."}))

		_, ok := c.RealtimeActiveUsers(ctx)
		assert.False(t, ok)
		assert.Equal(t, int32(0), atomic.LoadInt32(&ga.realtime))

		_, err := c.FetchRealtime(ctx)
		assert.ErrorIs(t, err, serrors.ErrAuth)

		tokens.setErr(nil)
		n, ok := c.RealtimeActiveUsers(ctx)
		require.True(t, ok)
		assert.Equal(t, 4, n)
	})
}

func TestClient_HistoricalSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("builds aligned series and totals", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{"rows":[
			{"dimensionValues":[{"value":"20250301"}],"metricValues":[{"value":"10"},{"value":"5"}]},
			{"dimensionValues":[{"value":"20250302"}],"metricValues":[{"value":"20"},{"value":"8"}]}
		]}`)

		s, ok := c.HistoricalSummary(ctx)
		require.True(t, ok)
		assert.Equal(t, []string{"Mar 01", "Mar 02"}, s.Labels)
		assert.Equal(t, []int{10, 20}, s.Sessions)
		assert.Equal(t, []int{5, 8}, s.Users)
		assert.Equal(t, 30, s.TotalSessions)
		assert.Equal(t, 13, s.TotalUsers)
	})

	t.Run("requests 30 days by date ascending", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{}`)

		_, ok := c.HistoricalSummary(ctx)
		require.True(t, ok)

		ga.mu.Lock()
		defer ga.mu.Unlock()
		assert.Equal(t, []interface{}{map[string]interface{}{"startDate": "30daysAgo", "endDate": "today"}}, ga.lastReq["dateRanges"])
		assert.Equal(t, []interface{}{map[string]interface{}{"name": "date"}}, ga.lastReq["dimensions"])
		assert.Equal(t, []interface{}{
			map[string]interface{}{"name": "sessions"},
			map[string]interface{}{"name": "totalUsers"},
		}, ga.lastReq["metrics"])
		assert.Equal(t, []interface{}{
			map[string]interface{}{"dimension": map[string]interface{}{"dimensionName": "date"}, "desc": false},
		}, ga.lastReq["orderBys"])
	})

	t.Run("no rows gives empty series", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{}`)

		s, ok := c.HistoricalSummary(ctx)
		require.True(t, ok)
		assert.NotNil(t, s.Labels)
		assert.Empty(t, s.Labels)
		assert.Empty(t, s.Sessions)
		assert.Empty(t, s.Users)
		assert.Zero(t, s.TotalSessions)
		assert.Zero(t, s.TotalUsers)

		raw, err := json.Marshal(s)
		require.NoError(t, err)
		assert.JSONEq(t, `{"labels":[],"sessions":[],"users":[],"total_sessions":0,"total_users":0}`, string(raw))
	})

	t.Run("cached for an hour", func(t *testing.T) {
		c, ga, _, clk := newTestClient(t)
		ga.reply(http.StatusOK, `{}`)

		_, ok := c.HistoricalSummary(ctx)
		require.True(t, ok)
		clk.Advance(59 * time.Minute)
		_, ok = c.HistoricalSummary(ctx)
		require.True(t, ok)
		assert.Equal(t, int32(1), atomic.LoadInt32(&ga.runs))

		clk.Advance(time.Minute)
		_, ok = c.HistoricalSummary(ctx)
		require.True(t, ok)
		assert.Equal(t, int32(2), atomic.LoadInt32(&ga.runs))
	})
}

func TestClient_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("api error object", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusForbidden, `{"error":{"code":403,"message":"User does not have sufficient permissions for this property.","status":"PERMISSION_DENIED"}}`)

		_, ok := c.HistoricalSummary(ctx)
		assert.False(t, ok)

		_, err := c.FetchHistorical(ctx)
		require.ErrorIs(t, err, serrors.ErrAPI)

		var apiErr *serrors.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "PERMISSION_DENIED", apiErr.Code)
		assert.Equal(t, "User does not have sufficient permissions for this property.", apiErr.Message)
		assert.Contains(t, apiErr.Endpoint, ":runReport")

		// Failures are never cached.
		assert.Equal(t, int32(2), atomic.LoadInt32(&ga.runs))
	})

	t.Run("error object without message", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{"error":{}}`)

		_, err := c.FetchRealtime(ctx)
		var apiErr *serrors.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, serrors.KindAPI, apiErr.Kind)
		assert.Equal(t, "Unknown error", apiErr.Message)
	})

	t.Run("malformed body is a parse error", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{"rows":[`)

		_, ok := c.RealtimeActiveUsers(ctx)
		assert.False(t, ok)

		_, err := c.FetchRealtime(ctx)
		assert.ErrorIs(t, err, serrors.ErrParse)
	})

	t.Run("bad date is a parse error", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusOK, `{"rows":[{"dimensionValues":[{"value":"yesterday"}],"metricValues":[{"value":"1"},{"value":"1"}]}]}`)

		_, err := c.FetchHistorical(ctx)
		assert.ErrorIs(t, err, serrors.ErrParse)
	})

	t.Run("non-json error status is an api error", func(t *testing.T) {
		c, ga, _, _ := newTestClient(t)
		ga.reply(http.StatusBadGateway, `<html>bad gateway</html>`)

		_, err := c.FetchRealtime(ctx)
		assert.ErrorIs(t, err, serrors.ErrAPI)
	})

	t.Run("unreachable endpoint is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		c, err := NewClient("123456", &staticTokens{}, WithBaseURL(srv.URL), WithLogger(log.Nop()))
		require.NoError(t, err)
		defer c.Close()

		_, ok := c.RealtimeActiveUsers(ctx)
		assert.False(t, ok)

		_, err = c.FetchRealtime(ctx)
		assert.ErrorIs(t, err, serrors.ErrNetwork)
	})
}

func TestClient_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, ga, _, _ := newTestClient(t)
	ga.reply(http.StatusOK, `{"rows":[{"metricValues":[{"value":"2"}]}]}`)

	_, ok := c.RealtimeActiveUsers(ctx)
	require.True(t, ok)

	require.NoError(t, c.Invalidate(ctx))

	_, ok = c.RealtimeActiveUsers(ctx)
	require.True(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&ga.realtime))
}

func TestClient_ConcurrentCallsShareOneRequest(t *testing.T) {
	ctx := context.Background()
	c, ga, _, _ := newTestClient(t)
	ga.reply(http.StatusOK, `{"rows":[{"metricValues":[{"value":"8"}]}]}`)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, ok := c.RealtimeActiveUsers(ctx)
			assert.True(t, ok)
			assert.Equal(t, 8, n)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ga.realtime))
}

func TestFormatDateLabel(t *testing.T) {
	label, err := FormatDateLabel("20251207")
	require.NoError(t, err)
	assert.Equal(t, "Dec 07", label)

	_, err = FormatDateLabel("2025-12-07")
	assert.Error(t, err)
}
