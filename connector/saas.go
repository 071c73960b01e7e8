package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
	"github.com/syssam/dsr/query"
	"github.com/syssam/dsr/saas"
)

// Authentication strategies of SaaS APIs.
const (
	BasicAuthentication  = "basic_authentication"
	BearerAuthentication = "bearer_authentication"
)

// SaaSConnector calls the endpoints of a SaaS API described by a
// saas.Config. Connector params are read from the connection secrets and
// substituted for <name> in the host and authentication configuration.
type SaaSConnector struct {
	key        string
	config     *saas.Config
	endpoints  map[string]*saas.Endpoint
	params     map[string]string
	baseURL    string
	client     *http.Client
	processors *saas.Registry
	logger     *slog.Logger
}

var _ Connector = (*SaaSConnector)(nil)

// NewSaaSConnector returns the connector of a SaaS connection.
func NewSaaSConnector(c ConnectionConfig, opts ...Option) (*SaaSConnector, error) {
	if c.SaaSConfig == nil {
		return nil, dsr.NewConfigError(c.Key, "saas_config is required")
	}
	o := newOptions(opts)
	params := make(map[string]string, len(c.SaaSConfig.ConnectorParams))
	for _, p := range c.SaaSConfig.ConnectorParams {
		switch {
		case c.Secret(p.Name) != "":
			params[p.Name] = c.Secret(p.Name)
		case p.DefaultValue != nil:
			params[p.Name] = fmt.Sprint(p.DefaultValue)
		}
	}
	s := &SaaSConnector{
		key:        c.Key,
		config:     c.SaaSConfig,
		endpoints:  c.SaaSConfig.EndpointMap(),
		params:     params,
		client:     o.httpClient,
		processors: o.processors,
		logger:     o.logger,
	}
	s.baseURL = substitute(c.SaaSConfig.BaseURL(), params)
	if auth := c.SaaSConfig.ClientConfig.Authentication; auth != nil {
		switch auth.Strategy {
		case BasicAuthentication, BearerAuthentication:
		default:
			return nil, dsr.NewConfigError(c.Key, "unknown authentication strategy %q", auth.Strategy)
		}
	}
	return s, nil
}

// TestConnection sends the test request of the configuration. A
// configuration without one is skipped.
func (c *SaaSConnector) TestConnection(ctx context.Context) (TestStatus, error) {
	if c.config.TestRequest == nil {
		return StatusSkipped, nil
	}
	r := &query.SaaSRequest{Method: c.config.TestRequest.Method, Path: substitute(c.config.TestRequest.Path, c.params)}
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if _, err := c.do(ctx, r); err != nil {
		return StatusFailed, err
	}
	return StatusSucceeded, nil
}

// RetrieveData sends one read request per value reaching the node and
// returns the rows of every response after post-processing.
func (c *SaaSConnector) RetrieveData(ctx context.Context, node *graph.Node, policy *privacy.Policy, req *dsr.Request, input map[string][]any) ([]graph.Row, error) {
	cfg := c.queryConfig(node)
	tmpl, err := cfg.Request(saas.ActionRead)
	if err != nil {
		return nil, err
	}
	reqs, err := cfg.GenerateRequests(input, policy)
	if err != nil {
		return nil, err
	}
	var identity map[string]any
	if req != nil {
		identity = req.Identity
	}
	var rows []graph.Row
	for _, r := range reqs {
		b, err := c.do(ctx, r)
		if err != nil {
			return nil, err
		}
		var data any
		if len(b) > 0 {
			if err := json.Unmarshal(b, &data); err != nil {
				return nil, fmt.Errorf("connector: %s: decode response of %s: %w", c.key, cfg.QueryToString(r, nil), err)
			}
		}
		if tmpl.DataPath != "" {
			m, ok := data.(map[string]any)
			if !ok {
				continue
			}
			if data, ok = graph.Row(m).Get(tmpl.DataPath); !ok {
				continue
			}
		}
		if data, err = c.processors.Process(tmpl.PostProcessors, data, identity); err != nil {
			return nil, err
		}
		rows = append(rows, saas.Rows(data)...)
	}
	return rows, nil
}

// MaskData sends one update request per row and returns the number of
// requests that succeeded.
func (c *SaaSConnector) MaskData(ctx context.Context, node *graph.Node, policy *privacy.Policy, req *dsr.Request, rows []graph.Row) (int, error) {
	cfg := c.queryConfig(node)
	if _, err := cfg.Request(saas.ActionUpdate); err != nil {
		return 0, err
	}
	n := 0
	for _, row := range rows {
		r, err := cfg.GenerateUpdate(row, policy, req)
		if err != nil {
			return n, err
		}
		if r == nil {
			continue
		}
		if _, err := c.do(ctx, r); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// DryRunQuery renders the read request of node.
func (c *SaaSConnector) DryRunQuery(node *graph.Node) (string, error) {
	return c.queryConfig(node).DryRunQuery()
}

// Close is a no-op; the http client is shared.
func (c *SaaSConnector) Close() error { return nil }

func (c *SaaSConnector) queryConfig(node *graph.Node) *query.SaaSConfig {
	return query.NewSaaSConfig(node, c.endpoints, query.WithLogger(c.logger))
}

// do sends r and returns the response body. Failures are ClientErrors.
func (c *SaaSConnector) do(ctx context.Context, r *query.SaaSRequest) ([]byte, error) {
	u := c.baseURL + r.Path
	if len(r.Query) > 0 {
		q := url.Values{}
		for k, v := range r.Query {
			q.Set(k, fmt.Sprint(v))
		}
		u += "?" + q.Encode()
	}
	status, body, err := send(ctx, c.client, r.Method, u, c.authorize(), r.Body)
	if err != nil {
		return nil, dsr.NewClientError(http.StatusInternalServerError, u, err)
	}
	if status < 200 || status > 299 {
		return nil, dsr.NewClientError(status, u, nil)
	}
	return body, nil
}

func (c *SaaSConnector) authorize() http.Header {
	h := http.Header{}
	auth := c.config.ClientConfig.Authentication
	if auth == nil {
		return h
	}
	conf := func(name string) string { return substitute(auth.Configuration[name], c.params) }
	switch auth.Strategy {
	case BasicAuthentication:
		req := &http.Request{Header: h}
		req.SetBasicAuth(conf("username"), conf("password"))
	case BearerAuthentication:
		h.Set("Authorization", "Bearer "+conf("token"))
	}
	return h
}

// substitute replaces <name> in s with the value of the param name.
func substitute(s string, params map[string]string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	for k, v := range params {
		s = strings.ReplaceAll(s, "<"+k+">", v)
	}
	return s
}
