package dsr

import (
	"maps"
	"sync"

	"github.com/google/uuid"
)

// Request carries the state of one privacy request execution: its ID, the
// identity seed that starts the traversal, and the secrets generated for
// masking strategies that need them. A Request is safe for concurrent use.
type Request struct {
	ID       string
	Identity map[string]any

	mu      sync.RWMutex
	secrets map[string]map[string]string // strategy -> key -> value
}

// NewRequest returns a new Request with a random ID for the given identity
// seed, e.g. {"email": "customer-1@example.com"}.
func NewRequest(identity map[string]any) *Request {
	return &Request{
		ID:       uuid.NewString(),
		Identity: maps.Clone(identity),
	}
}

// Secret returns the secret stored for the strategy under key.
func (r *Request) Secret(strategy, key string) (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.secrets[strategy][key]
	return v, ok
}

// SetSecret stores a secret for the strategy under key. An existing secret
// is kept, so concurrent nodes agree on one value per request.
func (r *Request) SetSecret(strategy, key, value string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.secrets == nil {
		r.secrets = make(map[string]map[string]string)
	}
	if r.secrets[strategy] == nil {
		r.secrets[strategy] = make(map[string]string)
	}
	if v, ok := r.secrets[strategy][key]; ok {
		return v
	}
	r.secrets[strategy][key] = value
	return value
}
