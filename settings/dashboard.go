// Package settings owns the operator settings and the analytics client built
// from them. Saving new settings drops the cached reports and rebuilds the
// client.
package settings

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/glass-analytics/analytics"
	"github.com/pilab-dev/glass-analytics/cache"
	"github.com/pilab-dev/glass-analytics/credentials"
	"github.com/pilab-dev/glass-analytics/domain"
	serrors "github.com/pilab-dev/glass-analytics/errors"
	"github.com/pilab-dev/glass-analytics/internal/audit"
	"github.com/pilab-dev/glass-analytics/internal/clock"
	"github.com/pilab-dev/glass-analytics/internal/httpx"
	"github.com/pilab-dev/glass-analytics/log"
)

// ErrNotConfigured is returned by the Fetch methods while no property id or
// service account key is set.
var ErrNotConfigured = serrors.NewConfigError("analytics is not configured", nil)

// Dashboard serves the two reports for the current settings.
type Dashboard struct {
	repo     domain.SettingsRepository
	store    cache.Store
	ownStore bool
	clock    clock.Clock
	logger   log.Logger

	httpClient httpx.Doer
	tokenURL   string
	baseURL    string
	timeout    time.Duration

	// saveMu serialises Save; mu only guards the fields below.
	saveMu sync.Mutex

	mu       sync.RWMutex
	settings domain.Settings
	issuer   *credentials.Issuer
	client   *analytics.Client
	buildErr error
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithStore shares store between the token and report caches.
func WithStore(store cache.Store) Option {
	return func(d *Dashboard) { d.store = store }
}

// WithClock sets the clock both caches expire by.
func WithClock(clk clock.Clock) Option {
	return func(d *Dashboard) { d.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(d *Dashboard) { d.logger = logger }
}

// WithHTTPClient sets the client used for token and report requests.
func WithHTTPClient(client httpx.Doer) Option {
	return func(d *Dashboard) { d.httpClient = client }
}

// WithTokenURL overrides the token endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(d *Dashboard) { d.tokenURL = tokenURL }
}

// WithBaseURL overrides the GA4 Data API root.
func WithBaseURL(baseURL string) Option {
	return func(d *Dashboard) { d.baseURL = baseURL }
}

// WithTimeout bounds every upstream call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dashboard) { d.timeout = timeout }
}

// NewDashboard loads the settings from repo and builds the analytics client.
// Settings that cannot produce a client are not an error here; the reports
// answer with no value until they are fixed.
func NewDashboard(ctx context.Context, repo domain.SettingsRepository, opts ...Option) (*Dashboard, error) {
	d := &Dashboard{
		repo:    repo,
		clock:   clock.System,
		timeout: httpx.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	if d.clock == nil {
		d.clock = clock.System
	}
	if d.httpClient == nil {
		d.httpClient = httpx.NewClient()
	}
	if d.store == nil {
		d.store = cache.NewMemoryStore()
		d.ownStore = true
	}

	current, err := repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	issuer, client, buildErr := d.build(ctx, *current)

	d.mu.Lock()
	d.settings, d.issuer, d.client, d.buildErr = *current, issuer, client, buildErr
	d.mu.Unlock()

	return d, nil
}

// Settings returns the current settings.
func (d *Dashboard) Settings() domain.Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// Configured reports whether a property id and a service account key are set.
func (d *Dashboard) Configured() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings.Configured()
}

// Err returns why the current settings could not produce a client, if they
// could not.
func (d *Dashboard) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildErr
}

// RealtimeActiveUsers is analytics.Client.RealtimeActiveUsers for the current
// settings. It makes no request while unconfigured.
func (d *Dashboard) RealtimeActiveUsers(ctx context.Context) (int, bool) {
	client := d.currentClient()
	if client == nil {
		return 0, false
	}
	return client.RealtimeActiveUsers(ctx)
}

// HistoricalSummary is analytics.Client.HistoricalSummary for the current
// settings. It makes no request while unconfigured.
func (d *Dashboard) HistoricalSummary(ctx context.Context) (*domain.HistoricalSummary, bool) {
	client := d.currentClient()
	if client == nil {
		return nil, false
	}
	return client.HistoricalSummary(ctx)
}

// FetchRealtime returns the realtime report or the reason there is none.
func (d *Dashboard) FetchRealtime(ctx context.Context) (domain.RealtimeMetric, error) {
	client, err := d.clientOrErr()
	if err != nil {
		return domain.RealtimeMetric{}, err
	}
	return client.FetchRealtime(ctx)
}

// FetchHistorical returns the historical report or the reason there is none.
func (d *Dashboard) FetchHistorical(ctx context.Context) (*domain.HistoricalSummary, error) {
	client, err := d.clientOrErr()
	if err != nil {
		return nil, err
	}
	return client.FetchHistorical(ctx)
}

// AccessToken returns a token for the configured service account.
func (d *Dashboard) AccessToken(ctx context.Context) (domain.AccessToken, error) {
	d.mu.RLock()
	issuer, buildErr := d.issuer, d.buildErr
	d.mu.RUnlock()

	if issuer == nil {
		if buildErr != nil {
			return domain.AccessToken{}, buildErr
		}
		return domain.AccessToken{}, ErrNotConfigured
	}
	return issuer.AccessToken(ctx)
}

// Save validates and persists next, drops the cached reports and rebuilds the
// client. A service account payload that is not a JSON object is rejected and
// the previous settings stay in effect. Reports keep being served by the old
// client until the new one is swapped in.
func (d *Dashboard) Save(ctx context.Context, next domain.Settings) (domain.Settings, error) {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	next.PropertyID = strings.TrimSpace(next.PropertyID)
	next.ClarityEmbedURL = strings.TrimSpace(next.ClarityEmbedURL)

	if !domain.ValidServiceAccountJSON(next.ServiceAccountJSON) {
		d.logger.Warn(ctx, "Rejected settings with invalid service account JSON", map[string]interface{}{
			"property_id": next.PropertyID,
		})
		err := serrors.NewConfigError("service account JSON is not a valid JSON object", nil)
		audit.Log("settings.save", next.PropertyID, "", false, err)
		return d.Settings(), err
	}

	next.Revision = uuid.NewString()
	next.UpdatedAt = d.clock.Now().UTC()

	if err := d.repo.SaveSettings(ctx, &next); err != nil {
		audit.Log("settings.save", next.PropertyID, next.Revision, false, err)
		return d.Settings(), err
	}
	audit.Log("settings.save", next.PropertyID, next.Revision, true, nil)

	issuer, client, buildErr := d.build(ctx, next)

	d.mu.RLock()
	oldIssuer, oldClient := d.issuer, d.client
	d.mu.RUnlock()

	// The old caches first, so a fetch still in flight on the old client is
	// not stored, then the entries the new client would read.
	d.invalidate(ctx, oldIssuer, oldClient)
	d.invalidate(ctx, issuer, client)

	d.mu.Lock()
	d.settings, d.issuer, d.client, d.buildErr = next, issuer, client, buildErr
	d.mu.Unlock()

	closeClients(oldIssuer, oldClient)

	d.logger.Info(ctx, "Settings saved", map[string]interface{}{
		"property_id": next.PropertyID,
		"revision":    next.Revision,
		"configured":  next.Configured(),
	})

	return next, nil
}

// Invalidate drops the cached reports without changing the settings.
func (d *Dashboard) Invalidate(ctx context.Context) error {
	client := d.currentClient()
	if client == nil {
		return nil
	}
	return client.Invalidate(ctx)
}

// Close releases the client and, if the dashboard created it, the cache store.
func (d *Dashboard) Close() error {
	d.mu.Lock()
	issuer, client := d.issuer, d.client
	d.issuer, d.client = nil, nil
	d.mu.Unlock()

	closeClients(issuer, client)
	if d.ownStore {
		return d.store.Close()
	}
	return nil
}

func (d *Dashboard) currentClient() *analytics.Client {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.client
}

func (d *Dashboard) clientOrErr() (*analytics.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.client != nil {
		return d.client, nil
	}
	if d.buildErr != nil {
		return nil, d.buildErr
	}
	return nil, ErrNotConfigured
}

// build creates the issuer and client for s. Both are nil while s is not
// configured; a non-nil error says why usable-looking settings were rejected.
func (d *Dashboard) build(ctx context.Context, s domain.Settings) (*credentials.Issuer, *analytics.Client, error) {
	if !s.Configured() {
		d.logger.Info(ctx, "Analytics not configured", nil)
		return nil, nil, nil
	}

	issuer, err := credentials.NewIssuerFromJSON([]byte(s.ServiceAccountJSON),
		credentials.WithHTTPClient(d.httpClient),
		credentials.WithClock(d.clock),
		credentials.WithLogger(d.logger),
		credentials.WithTokenStore(d.store),
		credentials.WithTokenURL(d.tokenURL),
		credentials.WithTimeout(d.timeout),
	)
	if err != nil {
		d.logger.Error(ctx, "Service account key rejected", err, map[string]interface{}{
			"property_id": s.PropertyID,
			"error_kind":  string(serrors.KindOf(err)),
		})
		return nil, nil, err
	}

	clientOpts := []analytics.Option{
		analytics.WithHTTPClient(d.httpClient),
		analytics.WithClock(d.clock),
		analytics.WithLogger(d.logger),
		analytics.WithStore(d.store),
		analytics.WithTimeout(d.timeout),
	}
	if d.baseURL != "" {
		clientOpts = append(clientOpts, analytics.WithBaseURL(d.baseURL))
	}

	client, err := analytics.NewClient(s.PropertyID, issuer, clientOpts...)
	if err != nil {
		_ = issuer.Close()
		return nil, nil, err
	}

	return issuer, client, nil
}

func (d *Dashboard) invalidate(ctx context.Context, issuer *credentials.Issuer, client *analytics.Client) {
	if client != nil {
		if err := client.Invalidate(ctx); err != nil {
			d.logger.Warn(ctx, "Failed to invalidate cached reports", map[string]interface{}{"error": err.Error()})
		}
	}
	if issuer != nil {
		if err := issuer.Invalidate(ctx); err != nil {
			d.logger.Warn(ctx, "Failed to invalidate cached token", map[string]interface{}{"error": err.Error()})
		}
	}
}

func closeClients(issuer *credentials.Issuer, client *analytics.Client) {
	if client != nil {
		_ = client.Close()
	}
	if issuer != nil {
		_ = issuer.Close()
	}
}
