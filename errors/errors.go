// Package errors defines the failure taxonomy shared by the credential issuer
// and the analytics client.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind string

const (
	KindConfig        Kind = "config"
	KindInvalidKey    Kind = "invalid_key"
	KindSigning       Kind = "signing"
	KindTokenExchange Kind = "token_exchange"
	KindNetwork       Kind = "network"
	KindAPI           Kind = "api"
	KindParse         Kind = "parse"
)

// Op names used in Error.Op.
const (
	OpLoadKey          = "load_key"
	OpSign             = "sign"
	OpTokenExchange    = "token_exchange"
	OpRealtimeReport   = "realtime_report"
	OpHistoricalReport = "historical_report"
)

// Sentinels for errors.Is. ErrAuth matches every failure of the credential
// issuer, ErrConfig every failure that happens while building a client.
var (
	ErrConfig        = errors.New("configuration error")
	ErrAuth          = errors.New("authentication error")
	ErrInvalidKey    = errors.New("invalid private key")
	ErrSigning       = errors.New("signing failed")
	ErrTokenExchange = errors.New("token exchange failed")
	ErrNetwork       = errors.New("network error")
	ErrAPI           = errors.New("api error")
	ErrParse         = errors.New("parse error")
)

// Error is a classified failure.
type Error struct {
	Kind       Kind
	Op         string
	Endpoint   string
	StatusCode int
	// Code is the provider error code, e.g. "invalid_grant" or "PERMISSION_DENIED".
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig || e.Kind == KindInvalidKey
	case ErrAuth:
		switch e.Kind {
		case KindInvalidKey, KindSigning, KindTokenExchange:
			return true
		case KindNetwork, KindParse:
			return e.Op == OpTokenExchange
		}
		return false
	case ErrInvalidKey:
		return e.Kind == KindInvalidKey
	case ErrSigning:
		return e.Kind == KindSigning
	case ErrTokenExchange:
		return e.Kind == KindTokenExchange
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrAPI:
		return e.Kind == KindAPI
	case ErrParse:
		return e.Kind == KindParse
	}
	return false
}

func NewConfigError(message string, err error) *Error {
	return &Error{Kind: KindConfig, Op: OpLoadKey, Message: message, Err: err}
}

func NewInvalidKeyError(err error) *Error {
	return &Error{Kind: KindInvalidKey, Op: OpLoadKey, Message: "private key cannot be parsed", Err: err}
}

func NewSigningError(err error) *Error {
	return &Error{Kind: KindSigning, Op: OpSign, Err: err}
}

// NewTokenExchangeError carries the provider's message from an OAuth2 error body.
func NewTokenExchangeError(endpoint string, status int, body *OAuth2Error) *Error {
	e := &Error{Kind: KindTokenExchange, Op: OpTokenExchange, Endpoint: endpoint, StatusCode: status}
	if body != nil {
		e.Code = body.Code
		e.Message = body.Message()
		e.Err = body
	}
	return e
}

func NewNetworkError(op, endpoint string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Endpoint: endpoint, Err: err}
}

// NewAPIError carries the "error" object of a Google API response.
func NewAPIError(op, endpoint string, status int, body *APIErrorBody) *Error {
	e := &Error{Kind: KindAPI, Op: op, Endpoint: endpoint, StatusCode: status, Message: "Unknown error"}
	if body != nil {
		e.Code = body.Status
		if body.Message != "" {
			e.Message = body.Message
		}
	}
	return e
}

func NewParseError(op, endpoint string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Endpoint: endpoint, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
