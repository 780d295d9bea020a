package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	tokenURL := "https://oauth2.googleapis.com/token"
	reportURL := "https://analyticsdata.googleapis.com/v1beta/properties/1:runReport"

	cases := []struct {
		name    string
		err     error
		matches []error
		not     []error
	}{
		{"config", NewConfigError("bad", nil), []error{ErrConfig}, []error{ErrAuth, ErrInvalidKey}},
		{"invalid key", NewInvalidKeyError(errors.New("asn1")), []error{ErrConfig, ErrAuth, ErrInvalidKey}, []error{ErrSigning}},
		{"signing", NewSigningError(errors.New("rsa")), []error{ErrAuth, ErrSigning}, []error{ErrConfig}},
		{"token exchange", NewTokenExchangeError(tokenURL, 400, &OAuth2Error{Code: InvalidGrant}), []error{ErrAuth, ErrTokenExchange}, []error{ErrAPI}},
		{"exchange network", NewNetworkError(OpTokenExchange, tokenURL, errors.New("dial")), []error{ErrAuth, ErrNetwork}, []error{ErrAPI}},
		{"report network", NewNetworkError(OpRealtimeReport, reportURL, errors.New("dial")), []error{ErrNetwork}, []error{ErrAuth}},
		{"api", NewAPIError(OpHistoricalReport, reportURL, 403, nil), []error{ErrAPI}, []error{ErrAuth, ErrNetwork}},
		{"report parse", NewParseError(OpHistoricalReport, reportURL, errors.New("eof")), []error{ErrParse}, []error{ErrAuth}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("fetch: %w", tc.err)
			for _, target := range tc.matches {
				assert.ErrorIs(t, wrapped, target)
			}
			for _, target := range tc.not {
				assert.NotErrorIs(t, wrapped, target)
			}
		})
	}
}

func TestTokenExchangeError_CarriesProviderMessage(t *testing.T) {
	err := NewTokenExchangeError("https://oauth2.googleapis.com/token", 400, &OAuth2Error{
		Code:        InvalidGrant,
		Description: "Invalid JWT Signature.",
	})

	assert.Equal(t, InvalidGrant, err.Code)
	assert.Equal(t, "Invalid JWT Signature.", err.Message)
	assert.Contains(t, err.Error(), "status 400")

	var oauthErr *OAuth2Error
	assert.ErrorAs(t, err, &oauthErr)
	assert.True(t, oauthErr.IsPermanent())

	assert.Equal(t, "server_error", (&OAuth2Error{Code: ServerError}).Message())
	assert.False(t, (&OAuth2Error{Code: ServerError}).IsPermanent())
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "Unknown error", NewAPIError(OpRealtimeReport, "", 500, nil).Message)
	assert.Equal(t, "Unknown error", NewAPIError(OpRealtimeReport, "", 500, &APIErrorBody{Status: "INTERNAL"}).Message)

	err := NewAPIError(OpRealtimeReport, "", 403, &APIErrorBody{Code: 403, Message: "denied", Status: "PERMISSION_DENIED"})
	assert.Equal(t, "denied", err.Message)
	assert.Equal(t, "PERMISSION_DENIED", err.Code)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindParse, KindOf(fmt.Errorf("x: %w", NewParseError(OpSign, "", nil))))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
