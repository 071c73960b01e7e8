package saas

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
)

// Request actions.
const (
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Param locations.
const (
	ParamQuery = "query"
	ParamPath  = "path"
)

// Config describes how to reach a SaaS API and which endpoints serve which
// collections.
type Config struct {
	Key             string           `yaml:"fides_key" json:"fides_key"`
	Name            string           `yaml:"name" json:"name"`
	Type            string           `yaml:"type" json:"type"`
	Description     string           `yaml:"description,omitempty" json:"description,omitempty"`
	ConnectorParams []ConnectorParam `yaml:"connector_params,omitempty" json:"connector_params,omitempty"`
	ClientConfig    ClientConfig     `yaml:"client_config" json:"client_config"`
	TestRequest     *Request         `yaml:"test_request,omitempty" json:"test_request,omitempty"`
	Endpoints       []*Endpoint      `yaml:"endpoints" json:"endpoints"`
}

// ConnectorParam is a named secret the connection must provide, e.g. an
// API key.
type ConnectorParam struct {
	Name         string `yaml:"name" json:"name"`
	DefaultValue any    `yaml:"default_value,omitempty" json:"default_value,omitempty"`
}

// ClientConfig holds the base URL parts and authentication of the API.
type ClientConfig struct {
	Protocol       string          `yaml:"protocol" json:"protocol"`
	Host           string          `yaml:"host" json:"host"`
	Authentication *Authentication `yaml:"authentication,omitempty" json:"authentication,omitempty"`
}

// Authentication selects an authentication strategy. Values of the
// configuration written as <name> are replaced with connector params.
type Authentication struct {
	Strategy      string            `yaml:"strategy" json:"strategy"`
	Configuration map[string]string `yaml:"configuration" json:"configuration"`
}

// Endpoint groups the requests serving one collection.
type Endpoint struct {
	Name     string              `yaml:"name" json:"name"`
	Requests map[string]*Request `yaml:"requests" json:"requests"`
}

// Request is a request template. Path params are written <name> in Path.
// Read requests are sent with GET and updates with PUT; Method only chooses
// the method of the test request.
type Request struct {
	Path           string            `yaml:"path" json:"path"`
	Method         string            `yaml:"method,omitempty" json:"method,omitempty"`
	RequestParams  []*RequestParam   `yaml:"request_params,omitempty" json:"request_params,omitempty"`
	DataPath       string            `yaml:"data_path,omitempty" json:"data_path,omitempty"`
	PostProcessors []ProcessorConfig `yaml:"postprocessors,omitempty" json:"postprocessors,omitempty"`
}

// RequestParam is one query or path parameter of a request. Its value comes
// from the default value, a reference to another collection or the identity
// seed.
type RequestParam struct {
	Name         string      `yaml:"name" json:"name"`
	Type         string      `yaml:"type" json:"type"`
	DefaultValue any         `yaml:"default_value,omitempty" json:"default_value,omitempty"`
	References   []Reference `yaml:"references,omitempty" json:"references,omitempty"`
	Identity     string      `yaml:"identity,omitempty" json:"identity,omitempty"`
}

// Reference points to the field feeding a param. Field is written
// "collection.path".
type Reference struct {
	Dataset   string          `yaml:"dataset" json:"dataset"`
	Field     string          `yaml:"field" json:"field"`
	Direction graph.Direction `yaml:"direction,omitempty" json:"direction,omitempty"`
}

// Address returns the referenced field address.
func (r Reference) Address() (graph.FieldAddress, error) {
	coll, path, ok := strings.Cut(r.Field, ".")
	if !ok || coll == "" || path == "" {
		return graph.FieldAddress{}, fmt.Errorf("saas: invalid reference field %q, expected collection.field", r.Field)
	}
	return graph.FieldAddress{Dataset: r.Dataset, Collection: coll, Path: graph.FieldPath(path)}, nil
}

// Validate checks the structure of the configuration and the post-processor
// configurations against the registry. All problems are reported together.
func (c *Config) Validate(reg *Registry) error {
	var errs []error
	if c.Key == "" {
		errs = append(errs, dsr.Validationf("fides_key", "field required"))
	}
	if len(c.Endpoints) == 0 {
		errs = append(errs, dsr.Validationf("endpoints", "field required"))
	}
	seen := make(map[string]struct{}, len(c.Endpoints))
	for i, e := range c.Endpoints {
		name := fmt.Sprintf("endpoints[%d]", i)
		if e.Name == "" {
			errs = append(errs, dsr.Validationf(name+".name", "field required"))
		}
		if _, ok := seen[e.Name]; ok {
			errs = append(errs, dsr.Validationf(name+".name", "duplicate endpoint %q", e.Name))
		}
		seen[e.Name] = struct{}{}
		for _, action := range sortedKeys(e.Requests) {
			errs = append(errs, e.Requests[action].validate(reg, name+".requests."+action, actionMethods[action])...)
		}
	}
	if c.TestRequest != nil {
		errs = append(errs, c.TestRequest.validate(reg, "test_request", "")...)
	}
	return dsr.NewAggregateError(errs...)
}

// actionMethods holds the HTTP method each traversal action is sent with.
var actionMethods = map[string]string{
	ActionRead:   http.MethodGet,
	ActionUpdate: http.MethodPut,
}

func (r *Request) validate(reg *Registry, name, method string) []error {
	var errs []error
	if r.Path == "" {
		errs = append(errs, dsr.Validationf(name+".path", "field required"))
	}
	if method != "" && r.Method != "" && !strings.EqualFold(r.Method, method) {
		errs = append(errs, dsr.Validationf(name+".method", "must be %s, found %q", method, r.Method))
	}
	for i, p := range r.RequestParams {
		pname := fmt.Sprintf("%s.request_params[%d]", name, i)
		switch p.Type {
		case ParamQuery, ParamPath:
		default:
			errs = append(errs, dsr.Validationf(pname+".type", "must be %q or %q, found %q", ParamQuery, ParamPath, p.Type))
		}
		if len(p.References) > 0 && p.Identity != "" {
			errs = append(errs, dsr.Validationf(pname, "Can only have one of 'reference' or 'identity' per request_param, not both"))
		}
		for _, ref := range p.References {
			if ref.Direction != graph.DirectionFrom {
				errs = append(errs, dsr.Validationf(pname, "References can only have a direction of 'from', found '%s'", ref.Direction))
			}
			if _, err := ref.Address(); err != nil {
				errs = append(errs, dsr.NewValidationError(pname, err))
			}
		}
		if p.Type == ParamPath && !strings.Contains(r.Path, "<"+p.Name+">") {
			errs = append(errs, dsr.Validationf(pname, "path %q has no <%s> placeholder", r.Path, p.Name))
		}
	}
	for i, pc := range r.PostProcessors {
		if _, err := reg.Processor(pc); err != nil {
			errs = append(errs, dsr.NewValidationError(fmt.Sprintf("%s.postprocessors[%d]", name, i), err))
		}
	}
	return errs
}

// EndpointMap returns the endpoints keyed by name.
func (c *Config) EndpointMap() map[string]*Endpoint {
	out := make(map[string]*Endpoint, len(c.Endpoints))
	for _, e := range c.Endpoints {
		out[e.Name] = e
	}
	return out
}

// BaseURL returns the API base URL, e.g. "https://api.example.com".
func (c *Config) BaseURL() string {
	protocol := c.ClientConfig.Protocol
	if protocol == "" {
		protocol = "https"
	}
	return protocol + "://" + c.ClientConfig.Host
}

// Dataset returns the dataset implied by the configuration: one collection
// per endpoint, with one field per read param carrying its references or
// identity.
func (c *Config) Dataset(connectionKey string) (*graph.Dataset, error) {
	ds := &graph.Dataset{Name: c.Key, ConnectionKey: connectionKey}
	for _, e := range c.Endpoints {
		read, ok := e.Requests[ActionRead]
		if !ok {
			continue
		}
		var fields []*graph.Field
		for _, p := range read.RequestParams {
			if len(p.References) == 0 && p.Identity == "" {
				continue
			}
			f := &graph.Field{Name: p.Name, Identity: p.Identity}
			for _, ref := range p.References {
				addr, err := ref.Address()
				if err != nil {
					return nil, err
				}
				f.References = append(f.References, graph.Reference{Field: addr, Direction: ref.Direction})
			}
			fields = append(fields, f)
		}
		coll, err := graph.NewCollection(e.Name, fields...)
		if err != nil {
			return nil, err
		}
		ds.Collections = append(ds.Collections, coll)
	}
	return ds, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
