package domain

import (
	"encoding/json"
	"strings"

	serrors "github.com/pilab-dev/glass-analytics/errors"
)

// GoogleTokenURI is the OAuth 2.0 token endpoint for Google service accounts.
const GoogleTokenURI = "https://oauth2.googleapis.com/token"

// ServiceAccountKey represents the structure of a downloadable service account JSON key,
// in Google Cloud's format.
type ServiceAccountKey struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// ParseServiceAccountKey decodes and validates a service account JSON key.
// The token URI is always GoogleTokenURI, whatever the file says.
func ParseServiceAccountKey(raw []byte) (*ServiceAccountKey, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, serrors.NewConfigError("service account JSON is empty", nil)
	}

	var key ServiceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, serrors.NewConfigError("service account JSON is malformed", err)
	}

	if err := key.Validate(); err != nil {
		return nil, err
	}

	key.TokenURI = GoogleTokenURI

	return &key, nil
}

// Validate checks the fields needed to mint an assertion.
func (k *ServiceAccountKey) Validate() error {
	if strings.TrimSpace(k.ClientEmail) == "" {
		return serrors.NewConfigError("service account client_email is missing", nil)
	}
	if strings.TrimSpace(k.PrivateKey) == "" {
		return serrors.NewConfigError("service account private_key is missing", nil)
	}
	return nil
}
