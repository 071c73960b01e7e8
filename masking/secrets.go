package masking

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/syssam/dsr"
)

// ProvisionSecrets generates the secrets a strategy needs for the request.
// Secrets already present on the request are kept, so every node of a
// request masks with the same values.
func ProvisionSecrets(req *dsr.Request, s Strategy) error {
	sk, ok := s.(SecretKeys)
	if !ok || !s.SecretsRequired() {
		return nil
	}
	if req == nil {
		return fmt.Errorf("masking: %s requires a request to hold its secrets", s.Name())
	}
	for _, key := range sk.SecretKeys() {
		if _, ok := req.Secret(s.Name(), key); ok {
			continue
		}
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("masking: generate %s secret: %w", key, err)
		}
		req.SetSecret(s.Name(), key, hex.EncodeToString(b))
	}
	return nil
}

func secret(req *dsr.Request, strategy, key string) (string, error) {
	v, ok := req.Secret(strategy, key)
	if !ok {
		return "", fmt.Errorf("masking: %s: missing %q secret for request", strategy, key)
	}
	return v, nil
}

// secretBytes returns a hex-encoded secret decoded to exactly n bytes.
func secretBytes(req *dsr.Request, strategy, key string, n int) ([]byte, error) {
	v, err := secret(req, strategy, key)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(v)
	if err != nil || len(b) != n {
		return nil, fmt.Errorf("masking: %s: %q secret must be %d hex-encoded bytes", strategy, key, n)
	}
	return b, nil
}
