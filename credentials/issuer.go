// Package credentials mints OAuth 2.0 access tokens for a Google service
// account using the JWT-bearer grant, without a provider SDK.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pilab-dev/glass-analytics/cache"
	"github.com/pilab-dev/glass-analytics/domain"
	serrors "github.com/pilab-dev/glass-analytics/errors"
	"github.com/pilab-dev/glass-analytics/internal/clock"
	"github.com/pilab-dev/glass-analytics/internal/httpx"
	"github.com/pilab-dev/glass-analytics/internal/metrics"
	"github.com/pilab-dev/glass-analytics/log"
	"github.com/pilab-dev/glass-analytics/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// GrantTypeJWTBearer is the RFC 7523 grant type.
const GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

const tokenCacheKey = "access_token"

// TokenSource hands out bearer tokens. *Issuer implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (domain.AccessToken, error)
}

// Issuer exchanges signed assertions for access tokens and caches each token
// until shortly before it expires. Concurrent callers that find no live token
// share a single exchange.
type Issuer struct {
	key      *domain.ServiceAccountKey
	signer   *TokenSigner
	tokens   *cache.TTLCache[domain.AccessToken]
	ownStore cache.Store

	client   httpx.Doer
	clock    clock.Clock
	logger   log.Logger
	tokenURL string
	timeout  time.Duration
}

// IssuerOption configures an Issuer.
type IssuerOption func(*issuerConfig)

type issuerConfig struct {
	client   httpx.Doer
	clock    clock.Clock
	logger   log.Logger
	store    cache.Store
	tokenURL string
	timeout  time.Duration
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client httpx.Doer) IssuerOption {
	return func(c *issuerConfig) { c.client = client }
}

// WithClock sets the clock used for claims and token expiry.
func WithClock(clk clock.Clock) IssuerOption {
	return func(c *issuerConfig) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) IssuerOption {
	return func(c *issuerConfig) { c.logger = logger }
}

// WithTokenStore keeps tokens in store instead of a private in-memory store,
// e.g. to share them between processes through Redis.
func WithTokenStore(store cache.Store) IssuerOption {
	return func(c *issuerConfig) { c.store = store }
}

// WithTokenURL overrides the token endpoint the assertion is posted to. The
// aud claim keeps the key's token URI.
func WithTokenURL(tokenURL string) IssuerOption {
	return func(c *issuerConfig) { c.tokenURL = tokenURL }
}

// WithTimeout bounds the token exchange.
func WithTimeout(timeout time.Duration) IssuerOption {
	return func(c *issuerConfig) { c.timeout = timeout }
}

// NewIssuerFromJSON parses a service account JSON key and builds an Issuer.
func NewIssuerFromJSON(raw []byte, opts ...IssuerOption) (*Issuer, error) {
	key, err := domain.ParseServiceAccountKey(raw)
	if err != nil {
		return nil, err
	}
	return NewIssuer(key, opts...)
}

// NewIssuer validates key and parses its private key. Unusable key material
// fails here, before any network call.
func NewIssuer(key *domain.ServiceAccountKey, opts ...IssuerOption) (*Issuer, error) {
	if key == nil {
		return nil, serrors.NewConfigError("service account key is nil", nil)
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	privateKey, err := ParsePrivateKey(key.PrivateKey)
	if err != nil {
		return nil, err
	}

	cfg := issuerConfig{
		clock:   clock.System,
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

	audience := key.TokenURI
	if audience == "" {
		audience = domain.GoogleTokenURI
	}
	if cfg.tokenURL == "" {
		cfg.tokenURL = audience
	}

	var ownStore cache.Store
	if cfg.store == nil {
		ownStore = cache.NewMemoryStore()
		cfg.store = ownStore
	}

	signer := NewTokenSigner()
	signer.AddRSAKeySigner(key.PrivateKeyID, privateKey)

	// Copy so later edits to the caller's struct cannot reach the issuer.
	keyCopy := *key
	keyCopy.TokenURI = audience

	return &Issuer{
		key:    &keyCopy,
		signer: signer,
		tokens: cache.New[domain.AccessToken]("token", cfg.store,
			cache.WithClock(cfg.clock),
			cache.WithNamespace(cache.Digest(key.ClientEmail, key.PrivateKeyID)),
		),
		ownStore: ownStore,
		client:   cfg.client,
		clock:    cfg.clock,
		logger:   cfg.logger.With(map[string]interface{}{"client_email": key.ClientEmail}),
		tokenURL: cfg.tokenURL,
		timeout:  cfg.timeout,
	}, nil
}

// ClientEmail returns the service account identity.
func (i *Issuer) ClientEmail() string {
	return i.key.ClientEmail
}

// AccessToken returns the cached token while it is live, otherwise performs
// one exchange shared by all concurrent callers.
func (i *Issuer) AccessToken(ctx context.Context) (domain.AccessToken, error) {
	return i.tokens.GetOrComputeUntil(ctx, tokenCacheKey, func(ctx context.Context) (domain.AccessToken, time.Time, error) {
		token, err := i.exchange(ctx)
		if err != nil {
			metrics.TokenRefreshTotal.WithLabelValues(refreshResult(err)).Inc()
			return domain.AccessToken{}, time.Time{}, err
		}
		metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
		return token, token.ExpiresAt, nil
	})
}

// Invalidate drops the cached token so the next call exchanges a new one.
func (i *Issuer) Invalidate(ctx context.Context) error {
	return i.tokens.Invalidate(ctx, tokenCacheKey)
}

// Close releases the private token store, if the issuer created one.
func (i *Issuer) Close() error {
	if i.ownStore != nil {
		return i.ownStore.Close()
	}
	return nil
}

// SignAssertion builds and signs the JWT-bearer assertion for now.
func (i *Issuer) SignAssertion(now time.Time) (string, error) {
	claims := NewAssertionClaims(i.key.ClientEmail, i.key.TokenURI, now)

	assertion, err := i.signer.Sign(claims, i.key.PrivateKeyID)
	if err != nil {
		return "", serrors.NewSigningError(err)
	}
	return assertion, nil
}

// refreshResult labels a failed exchange. "rejected" means the provider refused
// the assertion itself and the same key will keep failing.
func refreshResult(err error) string {
	var oauthErr *serrors.OAuth2Error
	if errors.As(err, &oauthErr) && oauthErr.IsPermanent() {
		return "rejected"
	}
	return "failure"
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   *int64 `json:"expires_in"`
	TokenType   string `json:"token_type"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorURI         string `json:"error_uri"`
}

func (i *Issuer) exchange(ctx context.Context) (token domain.AccessToken, err error) {
	ctx, span := tracing.Start(ctx, "credentials.exchange", attribute.String("token_url", i.tokenURL))
	defer func() { tracing.End(span, err) }()

	issuedAt := i.clock.Now()

	assertion, err := i.SignAssertion(issuedAt)
	if err != nil {
		return domain.AccessToken{}, err
	}

	form := url.Values{
		"grant_type": {GrantTypeJWTBearer},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AccessToken{}, serrors.NewNetworkError(serrors.OpTokenExchange, i.tokenURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpx.Send(ctx, i.client, req, i.timeout)
	if err != nil {
		return domain.AccessToken{}, serrors.NewNetworkError(serrors.OpTokenExchange, i.tokenURL, err)
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		if !resp.OK() {
			return domain.AccessToken{}, serrors.NewTokenExchangeError(i.tokenURL, resp.StatusCode, &serrors.OAuth2Error{
				Code: http.StatusText(resp.StatusCode),
			})
		}
		return domain.AccessToken{}, serrors.NewParseError(serrors.OpTokenExchange, i.tokenURL, err)
	}

	if body.Error != "" || !resp.OK() {
		oauthErr := &serrors.OAuth2Error{
			Code:        body.Error,
			Description: body.ErrorDescription,
			URI:         body.ErrorURI,
		}
		if oauthErr.Code == "" {
			oauthErr.Code = http.StatusText(resp.StatusCode)
		}
		return domain.AccessToken{}, serrors.NewTokenExchangeError(i.tokenURL, resp.StatusCode, oauthErr)
	}

	if body.AccessToken == "" {
		return domain.AccessToken{}, serrors.NewParseError(serrors.OpTokenExchange, i.tokenURL, errMissingAccessToken)
	}

	lifetime, err := tokenLifetime(body.ExpiresIn)
	if err != nil {
		return domain.AccessToken{}, serrors.NewParseError(serrors.OpTokenExchange, i.tokenURL, err)
	}

	token = domain.NewAccessToken(body.AccessToken, issuedAt, lifetime)

	i.logger.Debug(ctx, "Access token issued", map[string]interface{}{
		"token":      maskToken(token.Value),
		"expires_at": token.ExpiresAt,
	})

	return token, nil
}

// tokenLifetime turns expires_in into a duration. A missing value means the
// default hour; a value that leaves nothing after the safety margin is
// rejected, and very large values are capped before conversion.
func tokenLifetime(expiresIn *int64) (time.Duration, error) {
	if expiresIn == nil {
		return domain.DefaultTokenLifetime, nil
	}

	secs := *expiresIn
	if secs <= int64(domain.ExpirySafetyMargin/time.Second) {
		return 0, fmt.Errorf("expires_in %d does not exceed the %s safety margin", secs, domain.ExpirySafetyMargin)
	}
	if secs > int64(domain.MaxTokenLifetime/time.Second) {
		secs = int64(domain.MaxTokenLifetime / time.Second)
	}
	return time.Duration(secs) * time.Second, nil
}

func maskToken(t string) string {
	if len(t) < 20 {
		return "..."
	}
	return "..." + t[len(t)-6:]
}
