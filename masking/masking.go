package masking

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
)

// Strategy transforms a value to erase or obfuscate it.
type Strategy interface {
	// Name returns the registered name of the strategy.
	Name() string
	// Mask returns the masked value. A nil value is returned unchanged.
	Mask(req *dsr.Request, v any) (any, error)
	// SupportsDataType reports whether values of the data type can be masked.
	SupportsDataType(graph.DataType) bool
	// SecretsRequired reports whether Mask reads secrets from the request.
	SecretsRequired() bool
}

// SecretKeys is implemented by strategies that need per-request secrets.
// The secrets are generated by ProvisionSecrets before masking.
type SecretKeys interface {
	SecretKeys() []string
}

// Config selects a strategy by name with its strategy-specific configuration.
type Config struct {
	Strategy      string         `yaml:"strategy" json:"strategy"`
	Configuration map[string]any `yaml:"configuration" json:"configuration"`
}

// Factory builds a strategy from its configuration.
type Factory func(conf map[string]any) (Strategy, error)

// Description documents a strategy for introspection.
type Description struct {
	Name           string                  `json:"name" yaml:"name"`
	Description    string                  `json:"description" yaml:"description"`
	Configurations []ConfigurationDescribe `json:"configurations" yaml:"configurations"`
}

// ConfigurationDescribe documents one configuration key of a strategy.
type ConfigurationDescribe struct {
	Key         string `json:"key" yaml:"key"`
	Description string `json:"description" yaml:"description"`
}

type entry struct {
	factory Factory
	desc    Description
}

// Registry maps strategy names to factories. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Default returns the registry holding the built-in strategies.
var Default = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	for _, b := range builtins() {
		if err := r.Register(b.desc.Name, b.factory, b.desc); err != nil {
			panic(err)
		}
	}
	return r
})

// Register adds a strategy. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory, d Description) error {
	if name == "" || f == nil {
		return fmt.Errorf("masking: invalid registration for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("masking: strategy %q already registered", name)
	}
	d.Name = name
	r.entries[name] = entry{factory: f, desc: d}
	return nil
}

// Strategy builds the strategy selected by c. An unknown name fails with a
// NoSuchStrategyError listing the registered names.
func (r *Registry) Strategy(c Config) (Strategy, error) {
	r.mu.RLock()
	e, ok := r.entries[c.Strategy]
	r.mu.RUnlock()
	if !ok {
		return nil, dsr.NewNoSuchStrategyError("masking", c.Strategy, r.Names())
	}
	s, err := e.factory(c.Configuration)
	if err != nil {
		return nil, fmt.Errorf("masking: %s: %w", c.Strategy, err)
	}
	return s, nil
}

// Validate checks that c names a registered strategy with a valid
// configuration.
func (r *Registry) Validate(c Config) error {
	_, err := r.Strategy(c)
	return err
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the descriptions of all strategies, sorted by name.
func (r *Registry) Describe() []Description {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Description, 0, len(names))
	for _, name := range names {
		out = append(out, r.entries[name].desc)
	}
	return out
}

// decode copies a generic configuration map into a typed struct. Unknown
// keys are rejected.
func decode(conf map[string]any, out any) error {
	if len(conf) == 0 {
		return nil
	}
	b, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
