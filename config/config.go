package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/connector"
	"github.com/syssam/dsr/dialect"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/masking"
	"github.com/syssam/dsr/privacy"
	"github.com/syssam/dsr/saas"
	"github.com/syssam/dsr/task"
)

// Config is the configuration of a privacy request engine.
type Config struct {
	Datasets    []*Dataset                    `yaml:"datasets"`
	Policies    []*privacy.Policy             `yaml:"policies,omitempty"`
	Connections []*connector.ConnectionConfig `yaml:"connections"`
	Storage     []*StorageDestination         `yaml:"storage,omitempty"`
	Execution   Execution                     `yaml:"execution,omitempty"`
}

// Execution configures the task executor.
type Execution struct {
	// Workers bounds the number of nodes running at once.
	Workers int `yaml:"workers,omitempty"`
	// Attempts is the number of calls made to a connector failing with a
	// transient error.
	Attempts int           `yaml:"attempts,omitempty"`
	Backoff  time.Duration `yaml:"backoff,omitempty"`
	// ConnectionLimits bounds the calls in flight per connection key.
	ConnectionLimits map[string]int `yaml:"connection_limits,omitempty"`
	// ResultTTL expires the rows retrieved by access runs. Zero keeps them
	// until the report is closed.
	ResultTTL time.Duration `yaml:"result_ttl,omitempty"`
	// SlowQuery is the duration above which a SQL statement is logged.
	SlowQuery time.Duration `yaml:"slow_query_threshold,omitempty"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// Parse decodes a YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &c, nil
}

// Save writes the configuration to path.
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// Policy returns the policy with the given key.
func (c *Config) Policy(key string) (*privacy.Policy, bool) {
	for _, p := range c.Policies {
		if p.Key == key {
			return p, true
		}
	}
	return nil, false
}

// Connection returns the connection with the given key.
func (c *Config) Connection(key string) (*connector.ConnectionConfig, bool) {
	for _, conn := range c.Connections {
		if conn.Key == key {
			return conn, true
		}
	}
	return nil, false
}

// Validate checks the whole configuration and binds the masking strategies
// of the policies against reg. All problems are reported together, named by
// their position in the file.
func (c *Config) Validate(reg *masking.Registry) error {
	var errs []error
	seen := make(map[string]bool)
	for i, conn := range c.Connections {
		name := fmt.Sprintf("connections[%d]", i)
		errs = append(errs, prefixed(name, conn.Validate())...)
		if conn.SaaSConfig != nil {
			errs = append(errs, prefixed(name+".saas_config", conn.SaaSConfig.Validate(saas.DefaultRegistry()))...)
		}
		if conn.Key != "" && seen[conn.Key] {
			errs = append(errs, dsr.Validationf(name+".key", "duplicate connection key %q", conn.Key))
		}
		seen[conn.Key] = true
	}

	datasets := make(map[string]bool)
	for i, d := range c.Datasets {
		name := fmt.Sprintf("datasets[%d]", i)
		if _, err := d.Graph(); err != nil {
			errs = append(errs, prefixed(name, err)...)
		}
		if d.ConnectionKey != "" && !seen[d.ConnectionKey] {
			errs = append(errs, dsr.Validationf(name+".connection_key", "unknown connection %q", d.ConnectionKey))
		}
		if d.Key != "" && datasets[d.Key] {
			errs = append(errs, dsr.Validationf(name+".fides_key", "duplicate dataset key %q", d.Key))
		}
		datasets[d.Key] = true
	}

	policies := make(map[string]bool)
	for i, p := range c.Policies {
		name := fmt.Sprintf("policies[%d]", i)
		if p.Key == "" {
			errs = append(errs, dsr.Validationf(name+".key", "field required"))
		} else if policies[p.Key] {
			errs = append(errs, dsr.Validationf(name+".key", "duplicate policy key %q", p.Key))
		}
		policies[p.Key] = true
		if err := p.Bind(reg); err != nil {
			errs = append(errs, prefixed(name, err)...)
		}
	}

	for i, s := range c.Storage {
		errs = append(errs, prefixed(fmt.Sprintf("storage[%d]", i), s.Validate())...)
	}

	e := c.Execution
	if e.Workers < 0 {
		errs = append(errs, dsr.Validationf("execution.workers", "must not be negative"))
	}
	if e.Attempts < 0 {
		errs = append(errs, dsr.Validationf("execution.attempts", "must not be negative"))
	}
	for key, n := range e.ConnectionLimits {
		if !seen[key] {
			errs = append(errs, dsr.Validationf("execution.connection_limits", "unknown connection %q", key))
		}
		if n < 0 {
			errs = append(errs, dsr.Validationf("execution.connection_limits."+key, "must not be negative"))
		}
	}

	if len(errs) == 0 && len(c.Datasets) > 0 {
		if _, err := c.Traversal(); err != nil {
			errs = append(errs, dsr.NewValidationError("datasets", err))
		}
	}
	return dsr.NewAggregateError(errs...)
}

// prefixed names every validation error of err under name.
func prefixed(name string, err error) []error {
	if err == nil {
		return nil
	}
	var agg *dsr.AggregateError
	if errors.As(err, &agg) {
		var out []error
		for _, e := range agg.Errors {
			out = append(out, prefixed(name, e)...)
		}
		return out
	}
	var ve *dsr.ValidationError
	if errors.As(err, &ve) {
		return []error{dsr.NewValidationError(name+"."+ve.Name, ve.Err)}
	}
	return []error{dsr.NewValidationError(name, err)}
}

// Graph returns the datasets in their graph form. Datasets served by a SaaS
// connection are merged with the dataset implied by its SaaS configuration;
// a SaaS connection without a dataset contributes the implied one.
func (c *Config) Graph() ([]*graph.Dataset, error) {
	var (
		out  []*graph.Dataset
		errs []error
		used = make(map[string]bool)
	)
	for _, d := range c.Datasets {
		gd, err := d.Graph()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		used[d.ConnectionKey] = true
		if conn, ok := c.Connection(d.ConnectionKey); ok && conn.SaaSConfig != nil {
			implied, err := conn.SaaSConfig.Dataset(conn.Key)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if gd, err = saas.MergeDatasets(gd, implied); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		out = append(out, gd)
	}
	for _, conn := range c.Connections {
		if conn.SaaSConfig == nil || used[conn.Key] {
			continue
		}
		implied, err := conn.SaaSConfig.Dataset(conn.Key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, implied)
	}
	if err := dsr.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Traversal builds the traversal of all datasets.
func (c *Config) Traversal() (*graph.Traversal, error) {
	datasets, err := c.Graph()
	if err != nil {
		return nil, err
	}
	return graph.Build(datasets)
}

// Connectors opens a connector for every connection serving a collection,
// keyed by connection key. Https sinks are not part of the traversal and
// are skipped. Connectors already opened are closed when one fails.
func (c *Config) Connectors(opts ...connector.Option) (map[string]connector.Connector, error) {
	if c.Execution.SlowQuery > 0 {
		opts = append([]connector.Option{connector.WithSlowThreshold(c.Execution.SlowQuery)}, opts...)
	}
	out := make(map[string]connector.Connector, len(c.Connections))
	for _, conn := range c.Connections {
		if conn.ConnectionType() == dialect.HTTPS {
			continue
		}
		cn, err := connector.New(*conn, opts...)
		if err != nil {
			for _, opened := range out {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("connection %s: %w", conn.Key, err)
		}
		out[conn.Key] = cn
	}
	return out, nil
}

// Options returns the executor options of the execution settings.
func (e Execution) Options(logger *slog.Logger) []task.Option {
	var opts []task.Option
	if logger != nil {
		opts = append(opts, task.WithLogger(logger))
	}
	if e.Workers > 0 {
		opts = append(opts, task.WithWorkers(e.Workers))
	}
	if e.Attempts > 0 {
		opts = append(opts, task.WithRetry(e.Attempts, e.Backoff))
	}
	for key, n := range e.ConnectionLimits {
		opts = append(opts, task.WithConnectionLimit(key, n))
	}
	if e.ResultTTL > 0 {
		opts = append(opts, task.WithCache(task.NewMemoryCache(), e.ResultTTL))
	}
	return opts
}

// Executor builds the traversal and returns an executor running it with the
// given connectors.
func (c *Config) Executor(connectors map[string]connector.Connector, logger *slog.Logger) (*task.Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tr, err := c.Traversal()
	if err != nil {
		return nil, err
	}
	return task.NewExecutor(tr, connectors, c.Execution.Options(logger)...)
}
