package errors

import "fmt"

// OAuth2Error is the error body returned by an OAuth 2.0 token endpoint.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Message returns the most descriptive text the provider sent.
func (e *OAuth2Error) Message() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

// Standard OAuth2 error codes a token endpoint answers a jwt-bearer grant with.
const (
	InvalidRequest       = "invalid_request"
	UnauthorizedClient   = "unauthorized_client"
	UnsupportedGrantType = "unsupported_grant_type"
	InvalidScope         = "invalid_scope"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	ServerError          = "server_error"
)

// IsPermanent reports whether retrying the same assertion cannot succeed.
func (e *OAuth2Error) IsPermanent() bool {
	switch e.Code {
	case InvalidGrant, InvalidClient, UnauthorizedClient, UnsupportedGrantType, InvalidScope:
		return true
	}
	return false
}

// APIErrorBody is the "error" object of a Google API JSON response.
type APIErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
