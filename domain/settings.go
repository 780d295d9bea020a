package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Settings are the operator-supplied values the dashboard is built from.
type Settings struct {
	PropertyID         string    `bson:"property_id" json:"property_id"`
	ServiceAccountJSON string    `bson:"service_account_json" json:"service_account_json"`
	ClarityEmbedURL    string    `bson:"clarity_embed_url" json:"clarity_embed_url"`
	Revision           string    `bson:"revision" json:"revision"`
	UpdatedAt          time.Time `bson:"updated_at" json:"updated_at"`
}

// Configured reports whether analytics can be queried with these settings.
func (s Settings) Configured() bool {
	return strings.TrimSpace(s.PropertyID) != "" && strings.TrimSpace(s.ServiceAccountJSON) != ""
}

// ValidServiceAccountJSON reports whether raw is empty or a JSON object.
func ValidServiceAccountJSON(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(raw), &obj) == nil
}
