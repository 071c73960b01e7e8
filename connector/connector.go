package connector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/text/cases"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/dialect"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
	"github.com/syssam/dsr/saas"
)

// TestStatus is the outcome of a connection test.
type TestStatus string

// Connection test outcomes.
const (
	StatusSucceeded TestStatus = "succeeded"
	StatusFailed    TestStatus = "failed"
	StatusSkipped   TestStatus = "skipped"
)

// Connector executes the instructions generated for the nodes served by one
// connection configuration. Implementations hold one pooled client shared
// by every node of the connection and are safe for concurrent use.
type Connector interface {
	// TestConnection checks that the backing store is reachable.
	TestConnection(ctx context.Context) (TestStatus, error)
	// RetrieveData reads the rows of node matching the input values.
	RetrieveData(ctx context.Context, node *graph.Node, policy *privacy.Policy, req *dsr.Request, input map[string][]any) ([]graph.Row, error)
	// MaskData masks rows of node in place according to the erasure rules
	// of policy and returns the number of rows updated.
	MaskData(ctx context.Context, node *graph.Node, policy *privacy.Policy, req *dsr.Request, rows []graph.Row) (int, error)
	// DryRunQuery renders the read instruction of node with placeholders.
	DryRunQuery(node *graph.Node) (string, error)
	// Close releases the client.
	Close() error
}

// ConnectionConfig describes how to reach one backing store.
type ConnectionConfig struct {
	Key  string `yaml:"key" json:"key"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Type is a connection type of the dialect package, e.g. "postgres".
	Type string `yaml:"connection_type" json:"connection_type"`
	// Secrets holds the connection settings: "url" for databases, "url" and
	// "authorization" for https sinks, connector params for SaaS APIs.
	Secrets map[string]any `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	// MaxConnections bounds the pool of the connection. Zero leaves the
	// driver default.
	MaxConnections int `yaml:"max_connections,omitempty" json:"max_connections,omitempty"`
	// SaaSConfig is required for SaaS connections.
	SaaSConfig *saas.Config `yaml:"saas_config,omitempty" json:"saas_config,omitempty"`
}

var fold = cases.Fold()

// ConnectionType returns the case folded connection type.
func (c ConnectionConfig) ConnectionType() string {
	return fold.String(c.Type)
}

// Secret returns the string secret stored under name.
func (c ConnectionConfig) Secret(name string) string {
	v, ok := c.Secrets[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Validate checks the fields required by the connection type.
func (c ConnectionConfig) Validate() error {
	var errs []error
	if c.Key == "" {
		errs = append(errs, dsr.Validationf("key", "field required"))
	}
	typ := c.ConnectionType()
	switch {
	case dialect.IsSQL(typ), typ == dialect.Mongo:
		if c.Secret("url") == "" {
			errs = append(errs, dsr.Validationf("secrets.url", "field required"))
		}
	case typ == dialect.HTTPS:
		for _, name := range []string{"url", "authorization"} {
			if c.Secret(name) == "" {
				errs = append(errs, dsr.Validationf("secrets."+name, "field required"))
			}
		}
	case typ == dialect.SaaS:
		if c.SaaSConfig == nil {
			errs = append(errs, dsr.Validationf("saas_config", "field required"))
			break
		}
		for _, p := range c.SaaSConfig.ConnectorParams {
			if _, ok := c.Secrets[p.Name]; !ok && p.DefaultValue == nil {
				errs = append(errs, dsr.Validationf("secrets."+p.Name, "connector param required"))
			}
		}
	default:
		errs = append(errs, dsr.Validationf("connection_type", "unsupported connection type %q", c.Type))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, dsr.Validationf("max_connections", "must not be negative"))
	}
	return dsr.NewAggregateError(errs...)
}

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	driver     dialect.Driver
	slow       time.Duration
	processors *saas.Registry
}

// Option configures a connector.
type Option func(*options)

// WithLogger sets the logger of the connector and of the query configs it
// creates. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHTTPClient sets the client used by SaaS and https connectors.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithDriver makes a SQL connector run its statements through drv instead
// of opening a pool from the connection url.
func WithDriver(drv dialect.Driver) Option {
	return func(o *options) {
		o.driver = drv
	}
}

// WithSlowThreshold sets the duration above which a SQL statement is
// logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) {
		o.slow = d
	}
}

// WithProcessors sets the post-processor registry of SaaS connectors.
// Default is saas.DefaultRegistry().
func WithProcessors(r *saas.Registry) Option {
	return func(o *options) {
		o.processors = r
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:     slog.Default(),
		slow:       500 * time.Millisecond,
		processors: saas.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return o
}

// New returns the connector for the connection type of c.
func New(c ConnectionConfig, opts ...Option) (Connector, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	typ := c.ConnectionType()
	switch {
	case dialect.IsSQL(typ):
		return NewSQLConnector(c, opts...)
	case typ == dialect.Mongo:
		return NewMongoConnector(c, opts...)
	case typ == dialect.SaaS:
		return NewSaaSConnector(c, opts...)
	case typ == dialect.HTTPS:
		return NewHTTPSConnector(c, opts...)
	}
	return nil, dsr.NewConfigError(c.Key, "unsupported connection type %q", c.Type)
}
