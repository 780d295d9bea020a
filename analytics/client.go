// Package analytics queries the GA4 Data API for the dashboard reports and
// caches their results.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pilab-dev/glass-analytics/cache"
	"github.com/pilab-dev/glass-analytics/credentials"
	"github.com/pilab-dev/glass-analytics/domain"
	serrors "github.com/pilab-dev/glass-analytics/errors"
	"github.com/pilab-dev/glass-analytics/internal/clock"
	"github.com/pilab-dev/glass-analytics/internal/httpx"
	"github.com/pilab-dev/glass-analytics/internal/metrics"
	"github.com/pilab-dev/glass-analytics/log"
	"github.com/pilab-dev/glass-analytics/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Cache keys and lifetimes of the two reports.
const (
	RealtimeKey   = "realtime"
	HistoricalKey = "historical"

	RealtimeTTL   = 120 * time.Second
	HistoricalTTL = 3600 * time.Second
)

// Client fetches the realtime and historical reports of one GA4 property.
type Client struct {
	propertyID string
	tokens     credentials.TokenSource

	realtime   *cache.TTLCache[domain.RealtimeMetric]
	historical *cache.TTLCache[domain.HistoricalSummary]
	ownStore   cache.Store

	client  httpx.Doer
	logger  log.Logger
	baseURL string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	client  httpx.Doer
	clock   clock.Clock
	logger  log.Logger
	store   cache.Store
	baseURL string
	timeout time.Duration
}

// WithHTTPClient sets the client used for report requests.
func WithHTTPClient(client httpx.Doer) Option {
	return func(c *clientConfig) { c.client = client }
}

// WithClock sets the clock the report caches expire by.
func WithClock(clk clock.Clock) Option {
	return func(c *clientConfig) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithStore keeps report results in store, e.g. a Redis store shared by
// several instances.
func WithStore(store cache.Store) Option {
	return func(c *clientConfig) { c.store = store }
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout bounds each report request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) { c.timeout = timeout }
}

// NewClient builds a client for propertyID that authenticates with tokens.
func NewClient(propertyID string, tokens credentials.TokenSource, opts ...Option) (*Client, error) {
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return nil, serrors.NewConfigError("property id is required", nil)
	}
	if tokens == nil {
		return nil, serrors.NewConfigError("token source is required", nil)
	}

	cfg := clientConfig{
		clock:   clock.System,
		baseURL: DefaultBaseURL,
		timeout: httpx.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = clock.System
	}
	if cfg.client == nil {
		cfg.client = httpx.NewClient()
	}
	if cfg.logger == nil {
		cfg.logger = log.Default()
	}

	var ownStore cache.Store
	if cfg.store == nil {
		ownStore = cache.NewMemoryStore()
		cfg.store = ownStore
	}

	// Results of different properties or accounts never share an entry.
	identity := ""
	if named, ok := tokens.(interface{ ClientEmail() string }); ok {
		identity = named.ClientEmail()
	}
	namespace := cache.WithNamespace(cache.Digest(propertyID, identity))

	return &Client{
		propertyID: propertyID,
		tokens:     tokens,
		realtime:   cache.New[domain.RealtimeMetric]("realtime", cfg.store, cache.WithClock(cfg.clock), namespace),
		historical: cache.New[domain.HistoricalSummary]("historical", cfg.store, cache.WithClock(cfg.clock), namespace),
		ownStore:   ownStore,
		client:     cfg.client,
		logger:     cfg.logger.With(map[string]interface{}{"property_id": propertyID}),
		baseURL:    cfg.baseURL,
		timeout:    cfg.timeout,
	}, nil
}

// PropertyID returns the GA4 property the client reports on.
func (c *Client) PropertyID() string {
	return c.propertyID
}

// RealtimeActiveUsers returns the number of users active right now. Any
// failure is logged and reported as ok == false.
func (c *Client) RealtimeActiveUsers(ctx context.Context) (int, bool) {
	m, err := c.FetchRealtime(ctx)
	if err != nil {
		c.logFailure(ctx, "Realtime report failed", c.endpoint("runRealtimeReport"), err)
		return 0, false
	}
	return m.ActiveUsers, true
}

// HistoricalSummary returns the daily sessions and users of the last 30 days.
// Any failure is logged and reported as ok == false.
func (c *Client) HistoricalSummary(ctx context.Context) (*domain.HistoricalSummary, bool) {
	s, err := c.FetchHistorical(ctx)
	if err != nil {
		c.logFailure(ctx, "Historical report failed", c.endpoint("runReport"), err)
		return nil, false
	}
	return s, true
}

// FetchRealtime is RealtimeActiveUsers with the error returned.
func (c *Client) FetchRealtime(ctx context.Context) (domain.RealtimeMetric, error) {
	return c.realtime.GetOrCompute(ctx, RealtimeKey, RealtimeTTL, func(ctx context.Context) (domain.RealtimeMetric, error) {
		resp, err := c.runReport(ctx, "realtime", serrors.OpRealtimeReport, "runRealtimeReport", realtimeRequest())
		if err != nil {
			return domain.RealtimeMetric{}, err
		}

		m, err := parseRealtime(resp)
		if err != nil {
			return domain.RealtimeMetric{}, serrors.NewParseError(serrors.OpRealtimeReport, c.endpoint("runRealtimeReport"), err)
		}
		return m, nil
	})
}

// FetchHistorical is HistoricalSummary with the error returned.
func (c *Client) FetchHistorical(ctx context.Context) (*domain.HistoricalSummary, error) {
	s, err := c.historical.GetOrCompute(ctx, HistoricalKey, HistoricalTTL, func(ctx context.Context) (domain.HistoricalSummary, error) {
		resp, err := c.runReport(ctx, "historical", serrors.OpHistoricalReport, "runReport", historicalRequest())
		if err != nil {
			return domain.HistoricalSummary{}, err
		}

		summary, err := parseHistorical(resp)
		if err != nil {
			return domain.HistoricalSummary{}, serrors.NewParseError(serrors.OpHistoricalReport, c.endpoint("runReport"), err)
		}
		return *summary, nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Invalidate drops both cached reports.
func (c *Client) Invalidate(ctx context.Context) error {
	errRealtime := c.realtime.Invalidate(ctx, RealtimeKey)
	errHistorical := c.historical.Invalidate(ctx, HistoricalKey)
	if errRealtime != nil {
		return errRealtime
	}
	return errHistorical
}

// Close releases the private report store, if the client created one.
func (c *Client) Close() error {
	if c.ownStore != nil {
		return c.ownStore.Close()
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	return c.baseURL + "/properties/" + url.PathEscape(c.propertyID) + ":" + method
}

func (c *Client) runReport(ctx context.Context, report, op, method string, payload reportRequest) (resp *reportResponse, err error) {
	endpoint := c.endpoint(method)

	ctx, span := tracing.Start(ctx, "analytics."+report,
		attribute.String("property_id", c.propertyID),
		attribute.String("endpoint", endpoint),
	)
	started := time.Now()
	defer func() {
		tracing.End(span, err)
		metrics.ReportDuration.WithLabelValues(report).Observe(time.Since(started).Seconds())
		result := "success"
		if err != nil {
			result = "error"
			if kind := serrors.KindOf(err); kind != "" {
				result = string(kind)
			}
		}
		metrics.ReportRequestsTotal.WithLabelValues(report, result).Inc()
	}()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, serrors.NewParseError(op, endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, serrors.NewNetworkError(op, endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := httpx.Send(ctx, c.client, req, c.timeout)
	if err != nil {
		return nil, serrors.NewNetworkError(op, endpoint, err)
	}

	decoded, err := decodeReport(res.Body)
	if err != nil {
		if !res.OK() {
			return nil, serrors.NewAPIError(op, endpoint, res.StatusCode, nil)
		}
		return nil, serrors.NewParseError(op, endpoint, err)
	}

	if decoded.Error != nil || !res.OK() {
		return nil, serrors.NewAPIError(op, endpoint, res.StatusCode, decoded.Error)
	}

	return decoded, nil
}

func (c *Client) logFailure(ctx context.Context, msg, endpoint string, err error) {
	c.logger.Error(ctx, msg, err, map[string]interface{}{
		"endpoint":   endpoint,
		"error_kind": string(serrors.KindOf(err)),
	})
}
