// Package auth guards the node's RPC surface with a single API key whose
// bcrypt hash is configured at startup.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingKey = errors.New("missing api key")
	ErrInvalidKey = errors.New("invalid api key")
)

const HeaderAPIKey = "X-Api-Key"

type APIKey struct {
	hash []byte
}

// NewAPIKey accepts a bcrypt hash. An empty hash disables the check.
func NewAPIKey(hash string) (APIKey, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return APIKey{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return APIKey{}, fmt.Errorf("api key hash: %w", err)
	}
	return APIKey{hash: []byte(hash)}, nil
}

// HashKey produces the value expected by NewAPIKey.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (k APIKey) Enabled() bool { return len(k.hash) > 0 }

func (k APIKey) Check(key string) error {
	if !k.Enabled() {
		return nil
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := bcrypt.CompareHashAndPassword(k.hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// FromRequest reads the key from the X-Api-Key header or a bearer token.
func FromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	return BearerToken(r.Header.Get("Authorization"))
}

func BearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
