package query

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
	"github.com/syssam/dsr/saas"
)

// SaaSRequest is a populated API request. Body is nil for reads.
type SaaSRequest struct {
	Method string
	Path   string
	Query  map[string]any
	Body   []byte
}

// SaaSConfig generates API requests for a node from the request templates
// of the endpoint serving its collection.
type SaaSConfig struct {
	base
	endpoints map[string]*saas.Endpoint
}

var _ Config[*SaaSRequest] = (*SaaSConfig)(nil)

// NewSaaSConfig returns the SaaS config of node for the endpoints, keyed by
// collection name.
func NewSaaSConfig(node *graph.Node, endpoints map[string]*saas.Endpoint, opts ...Option) *SaaSConfig {
	return &SaaSConfig{base: newBase(node, opts), endpoints: endpoints}
}

// Request returns the template for the action on the node's collection. A
// missing template is a configuration error.
func (c *SaaSConfig) Request(action string) (*saas.Request, error) {
	name := c.node.Collection.Name
	if e, ok := c.endpoints[name]; ok {
		if r, ok := e.Requests[action]; ok {
			c.logger.Info("found matching endpoint", "action", action, "collection", name)
			return r, nil
		}
	}
	return nil, dsr.NewConfigError(c.node.ConnectionKey(), "the `%s` action is not defined for the `%s` endpoint", action, name)
}

// GenerateRequests returns one read request per value reaching the node.
func (c *SaaSConfig) GenerateRequests(input map[string][]any, policy *privacy.Policy) ([]*SaaSRequest, error) {
	filtered := c.node.TypedFilteredValues(input)
	var out []*SaaSRequest
	for _, key := range sortedKeys(filtered) {
		for _, v := range filtered[key] {
			r, err := c.GenerateQuery(map[string][]any{key: {v}}, policy)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// GenerateQuery populates the read template: query params take their
// default value or the first input value of the same name, path params
// replace <name> in the path.
func (c *SaaSConfig) GenerateQuery(input map[string][]any, _ *privacy.Policy) (*SaaSRequest, error) {
	tmpl, err := c.Request(saas.ActionRead)
	if err != nil {
		return nil, err
	}
	path := tmpl.Path
	query := make(map[string]any)
	for _, p := range tmpl.RequestParams {
		switch p.Type {
		case saas.ParamQuery:
			switch {
			case p.DefaultValue != nil:
				query[p.Name] = p.DefaultValue
			case len(p.References) > 0 || p.Identity != "":
				if values := input[p.Name]; len(values) > 0 {
					query[p.Name] = values[0]
				}
			}
		case saas.ParamPath:
			values := input[p.Name]
			if len(values) == 0 {
				return nil, fmt.Errorf("query: %s: no value for path param %q", c.node.Address, p.Name)
			}
			path = strings.ReplaceAll(path, "<"+p.Name+">", fmt.Sprint(values[0]))
		}
	}
	c.logger.Info("populated request params", "path", tmpl.Path)
	return &SaaSRequest{Method: http.MethodGet, Path: path, Query: query}, nil
}

// GenerateUpdate populates the update template from row and sends the
// masked values as a nested JSON body. Params referencing a field read it
// from the row, written "<collection>.<path>". It returns nil when no field
// of the row is masked.
func (c *SaaSConfig) GenerateUpdate(row graph.Row, policy *privacy.Policy, req *dsr.Request) (*SaaSRequest, error) {
	tmpl, err := c.Request(saas.ActionUpdate)
	if err != nil {
		return nil, err
	}
	masked, err := c.UpdateValueMap(row, policy, req)
	if err != nil {
		return nil, err
	}
	if len(masked) == 0 {
		c.logger.Warn("not enough data to generate a valid update", "node", c.node.Address.String())
		return nil, nil
	}
	values := graph.Row{c.node.Collection.Name: map[string]any(row)}
	path := tmpl.Path
	query := make(map[string]any)
	for _, p := range tmpl.RequestParams {
		switch p.Type {
		case saas.ParamQuery:
			switch {
			case p.DefaultValue != nil:
				query[p.Name] = p.DefaultValue
			case len(p.References) > 0:
				query[p.Name], _ = values.Get(p.References[0].Field)
			case p.Identity != "":
				query[p.Name], _ = values.Get(p.Identity)
			}
		case saas.ParamPath:
			if len(p.References) == 0 {
				return nil, dsr.NewConfigError(c.node.ConnectionKey(), "path param %q of the `%s` update has no reference", p.Name, c.node.Collection.Name)
			}
			v, ok := values.Get(p.References[0].Field)
			if !ok {
				return nil, fmt.Errorf("query: %s: no value for path param %q", c.node.Address, p.Name)
			}
			path = strings.ReplaceAll(path, "<"+p.Name+">", fmt.Sprint(v))
		}
	}
	c.logger.Info("populated request params", "path", tmpl.Path)

	body, err := Unflatten(masked)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &SaaSRequest{Method: http.MethodPut, Path: path, Query: query, Body: b}, nil
}

// QueryToString renders the request as "METHOD path?k=v", with query params
// sorted by name.
func (c *SaaSConfig) QueryToString(r *SaaSRequest, _ map[string][]any) string {
	if r == nil {
		return ""
	}
	s := r.Method + " " + r.Path
	if len(r.Query) > 0 {
		keys := sortedKeys(r.Query)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + fmt.Sprint(r.Query[k])
		}
		s += "?" + strings.Join(parts, "&")
	}
	return s
}

// DryRunQuery renders the read request with placeholder values.
func (c *SaaSConfig) DryRunQuery() (string, error) {
	data := DisplayQueryData(c.node)
	r, err := c.GenerateQuery(data, nil)
	if err != nil || r == nil {
		return "", err
	}
	return c.QueryToString(r, data), nil
}
