package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AnalyticsReadonlyScope is the only scope assertions are minted for.
const AnalyticsReadonlyScope = "https://www.googleapis.com/auth/analytics.readonly"

// AssertionLifetime is the exp - iat span of an assertion.
const AssertionLifetime = time.Hour

// AssertionClaims is the claim set of a service account JWT-bearer
// assertion. aud is a plain string, as the token endpoint expects.
type AssertionClaims struct {
	Issuer    string `json:"iss"`
	Scope     string `json:"scope"`
	Audience  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

// NewAssertionClaims builds the claims for clientEmail issued at now.
func NewAssertionClaims(clientEmail, audience string, now time.Time) *AssertionClaims {
	return &AssertionClaims{
		Issuer:    clientEmail,
		Scope:     AnalyticsReadonlyScope,
		Audience:  audience,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(AssertionLifetime).Unix(),
	}
}

func (c *AssertionClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c *AssertionClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c *AssertionClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c *AssertionClaims) GetIssuer() (string, error) {
	return c.Issuer, nil
}

func (c *AssertionClaims) GetSubject() (string, error) {
	return "", nil
}

func (c *AssertionClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}
