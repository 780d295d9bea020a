package domain

import "time"

// ExpirySafetyMargin is subtracted from expires_in so a token is replaced
// before the provider stops accepting it.
const ExpirySafetyMargin = 60 * time.Second

// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

// MaxTokenLifetime caps expires_in.
const MaxTokenLifetime = 24 * time.Hour

// AccessToken is a bearer token minted from a service account assertion.
type AccessToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token may still be used at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// NewAccessToken computes the expiry from the issue time and expires_in.
func NewAccessToken(value string, issuedAt time.Time, expiresIn time.Duration) AccessToken {
	if expiresIn <= 0 {
		expiresIn = DefaultTokenLifetime
	}
	return AccessToken{
		Value:     value,
		ExpiresAt: issuedAt.Add(expiresIn - ExpirySafetyMargin),
	}
}
