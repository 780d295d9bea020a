package api

import (
	"encoding/json"
	"time"

	"github.com/pilab-dev/glass-analytics/domain"
)

// RealtimeResponse carries the realtime report. ActiveUsers is null when the
// report is unavailable.
type RealtimeResponse struct {
	ActiveUsers *int `json:"active_users"`
}

// HistoricalResponse carries the historical report. Summary is null when the
// report is unavailable.
type HistoricalResponse struct {
	Summary *domain.HistoricalSummary `json:"summary"`
}

// SettingsRequest replaces the dashboard settings.
type SettingsRequest struct {
	PropertyID         string `json:"property_id"`
	ServiceAccountJSON string `json:"service_account_json"`
	ClarityEmbedURL    string `json:"clarity_embed_url"`
}

// SettingsResponse describes the current settings. The service account key
// itself is never echoed back.
type SettingsResponse struct {
	Configured          bool      `json:"configured"`
	PropertyID          string    `json:"property_id"`
	ServiceAccountEmail string    `json:"service_account_email,omitempty"`
	ClarityEmbedURL     string    `json:"clarity_embed_url"`
	Revision            string    `json:"revision,omitempty"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
	Error               string    `json:"error,omitempty"`
}

// ErrorResponse is the body of every 4xx/5xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewSettingsResponse builds the public view of s. buildErr is why s could
// not produce a client, if it could not.
func NewSettingsResponse(s domain.Settings, buildErr error) SettingsResponse {
	resp := SettingsResponse{
		Configured:      s.Configured(),
		PropertyID:      s.PropertyID,
		ClarityEmbedURL: s.ClarityEmbedURL,
		Revision:        s.Revision,
		UpdatedAt:       s.UpdatedAt,
	}

	var key struct {
		ClientEmail string `json:"client_email"`
	}
	if s.ServiceAccountJSON != "" && json.Unmarshal([]byte(s.ServiceAccountJSON), &key) == nil {
		resp.ServiceAccountEmail = key.ClientEmail
	}

	if buildErr != nil {
		resp.Error = buildErr.Error()
	}

	return resp
}
