package credentials

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	serrors "github.com/pilab-dev/glass-analytics/errors"
)

var (
	ErrInvalidKeyID       = errors.New("invalid key id")
	errMissingAccessToken = errors.New("token response has no access_token")
)

type TokenSignerFunc func(claims jwt.Claims) (string, error)

// TokenSigner signs JWTs with the keys registered on it, looked up by key id.
type TokenSigner struct {
	keys map[string]TokenSignerFunc
}

// NewTokenSigner creates a new Signer instance
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{
		keys: make(map[string]TokenSignerFunc),
	}
}

// ParsePrivateKey parses a PEM encoded PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, serrors.NewInvalidKeyError(err)
	}
	return key, nil
}

// AddRSAKeySigner registers an RS256 signer for keyID. The header carries
// only alg and typ.
func (s *TokenSigner) AddRSAKeySigner(keyID string, privateKey *rsa.PrivateKey) {
	s.keys[keyID] = func(claims jwt.Claims) (string, error) {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)

		tokenString, err := token.SignedString(privateKey)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}

		return tokenString, nil
	}
}

// Sign signs claims with keyID's signer. An empty keyID uses the only
// registered signer.
func (s *TokenSigner) Sign(claims jwt.Claims, keyID string) (string, error) {
	if keyID == "" { // using default signer
		if len(s.keys) != 1 {
			return "", ErrInvalidKeyID
		}
		for _, val := range s.keys {
			return val(claims)
		}
	}

	if signer, ok := s.keys[keyID]; ok {
		return signer(claims)
	}

	return "", ErrInvalidKeyID
}
