package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/saas"
)

// Dataset is the YAML form of a graph.Dataset.
type Dataset struct {
	Key         string `yaml:"fides_key"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	// ConnectionKey names the connection serving the dataset.
	ConnectionKey string        `yaml:"connection_key"`
	Collections   []*Collection `yaml:"collections"`
}

// Collection is the YAML form of a graph.Collection.
type Collection struct {
	Name   string   `yaml:"name"`
	Fields []*Field `yaml:"fields"`
}

// Field is the YAML form of a graph.Field.
type Field struct {
	Name           string     `yaml:"name"`
	Description    string     `yaml:"description,omitempty"`
	DataCategories StringList `yaml:"data_categories,omitempty"`
	Meta           *FieldMeta `yaml:"fidesops_meta,omitempty"`
	Fields         []*Field   `yaml:"fields,omitempty"`
}

// FieldMeta holds the traversal and masking metadata of a field.
type FieldMeta struct {
	References []saas.Reference `yaml:"references,omitempty"`
	Identity   string           `yaml:"identity,omitempty"`
	PrimaryKey bool             `yaml:"primary_key,omitempty"`
	DataType   string           `yaml:"data_type,omitempty"`
	Length     *int             `yaml:"length,omitempty"`
}

// StringList is a YAML value that is either a string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for StringList.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// MarshalYAML implements yaml.Marshaler for StringList.
func (s StringList) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}

// Graph converts the dataset to its graph form. All invalid fields are
// reported together, named by their position in the dataset.
func (d *Dataset) Graph() (*graph.Dataset, error) {
	var errs []error
	if d.Key == "" {
		errs = append(errs, dsr.Validationf("fides_key", "field required"))
	}
	if d.ConnectionKey == "" {
		errs = append(errs, dsr.Validationf("connection_key", "field required"))
	}
	out := &graph.Dataset{Name: d.Key, ConnectionKey: d.ConnectionKey}
	for i, c := range d.Collections {
		name := fmt.Sprintf("collections[%d]", i)
		var fields []*graph.Field
		for j, f := range c.Fields {
			gf, ferrs := f.graph(fmt.Sprintf("%s.fields[%d]", name, j))
			errs = append(errs, ferrs...)
			fields = append(fields, gf)
		}
		coll, err := graph.NewCollection(c.Name, fields...)
		if err != nil {
			errs = append(errs, dsr.NewValidationError(name, err))
			continue
		}
		out.Collections = append(out.Collections, coll)
	}
	if err := dsr.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Field) graph(name string) (*graph.Field, []error) {
	var errs []error
	out := &graph.Field{Name: f.Name, Categories: f.DataCategories}
	if f.Name == "" {
		errs = append(errs, dsr.Validationf(name+".name", "field required"))
	}
	if m := f.Meta; m != nil {
		dt, err := graph.ParseDataType(m.DataType)
		if err != nil {
			errs = append(errs, dsr.NewValidationError(name+".fidesops_meta.data_type", err))
		}
		if m.Length != nil && *m.Length < 0 {
			errs = append(errs, dsr.Validationf(name+".fidesops_meta.length", "must not be negative"))
		}
		out.DataType = dt
		out.PrimaryKey = m.PrimaryKey
		out.Length = m.Length
		out.Identity = m.Identity
		for k, r := range m.References {
			addr, err := r.Address()
			if err != nil {
				errs = append(errs, dsr.NewValidationError(fmt.Sprintf("%s.fidesops_meta.references[%d]", name, k), err))
				continue
			}
			switch r.Direction {
			case graph.DirectionNone, graph.DirectionFrom, graph.DirectionTo:
			default:
				errs = append(errs, dsr.Validationf(fmt.Sprintf("%s.fidesops_meta.references[%d].direction", name, k), "unknown direction %q", r.Direction))
				continue
			}
			out.References = append(out.References, graph.Reference{Field: addr, Direction: r.Direction})
		}
	}
	for i, sub := range f.Fields {
		gf, serrs := sub.graph(fmt.Sprintf("%s.fields[%d]", name, i))
		errs = append(errs, serrs...)
		out.Fields = append(out.Fields, gf)
	}
	return out, errs
}
