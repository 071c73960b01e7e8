package query

import (
	"fmt"
	"strings"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/dialect"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
)

// SQLStatement is a statement with ":name" placeholders and the values
// bound to them. A []any value binds a tuple.
type SQLStatement struct {
	Query  string
	Params map[string]any
}

// SQLConfig generates SQL statements for a node. Formatting differences
// between databases are carried by the dialect.
type SQLConfig struct {
	base
	dialect dialect.SQL
}

var _ Config[*SQLStatement] = (*SQLConfig)(nil)

// NewSQLConfig returns the SQL config of node for the dialect.
func NewSQLConfig(node *graph.Node, d dialect.SQL, opts ...Option) *SQLConfig {
	return &SQLConfig{base: newBase(node, opts), dialect: d}
}

// Dialect returns the dialect of the config.
func (c *SQLConfig) Dialect() dialect.SQL { return c.dialect }

// paramName returns the placeholder name of a field path. Names never start
// with a digit.
func paramName(path string) string {
	name := strings.Map(func(r rune) rune {
		if r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, path)
	if name == "" || name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// paramSet collects the parameters of one statement. Distinct paths sharing
// a sanitized name ("a.b" and "a_b") get numeric suffixes.
type paramSet struct {
	values map[string]any
	names  map[string]string
}

func newParamSet() *paramSet {
	return &paramSet{values: make(map[string]any), names: make(map[string]string)}
}

// add binds v to the placeholder of path and returns its name. Adding a path
// again replaces its value.
func (p *paramSet) add(path string, v any) string {
	name, ok := p.names[path]
	if !ok {
		name = p.unique(paramName(path))
		p.names[path] = name
	}
	p.values[name] = v
	return name
}

// addName binds v to a new placeholder derived from base.
func (p *paramSet) addName(base string, v any) string {
	name := p.unique(base)
	p.values[name] = v
	return name
}

func (p *paramSet) unique(base string) string {
	name := base
	for i := 2; ; i++ {
		if _, ok := p.values[name]; !ok {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

func (c *SQLConfig) operand(name string) string {
	if c.dialect.WrapOperand {
		return "(:" + name + ")"
	}
	return ":" + name
}

func (c *SQLConfig) table() string {
	return c.dialect.Table.Quote(c.node.Collection.Name)
}

// GenerateQuery returns a SELECT of every field of the collection, matching
// the rows where any input path holds one of its values:
//
//	SELECT id,email,name FROM customer WHERE email = :email OR id IN :id
//
// It returns nil when no input path has a value.
func (c *SQLConfig) GenerateQuery(input map[string][]any, _ *privacy.Policy) (*SQLStatement, error) {
	filtered := c.node.TypedFilteredValues(input)
	var (
		clauses []string
		params  = newParamSet()
	)
	for _, key := range sortedKeys(filtered) {
		values := distinct(filtered[key])
		column := c.dialect.Columns.Quote(key)
		switch {
		case len(values) == 1:
			clauses = append(clauses, column+" = "+c.operand(params.add(key, values[0])))
		case len(values) > 1 && c.dialect.Membership == dialect.ExpandedParams:
			names := make([]string, len(values))
			for i, v := range values {
				names[i] = ":" + params.addName(fmt.Sprintf("%s_in_stmt_generated_%d", paramName(key), i), v)
			}
			clauses = append(clauses, column+" IN ("+strings.Join(names, ", ")+")")
		case len(values) > 1:
			clauses = append(clauses, column+" IN "+c.operand(params.add(key, values)))
		}
	}
	if len(clauses) == 0 {
		c.logger.Warn("not enough data to generate a valid query", "node", c.node.Address.String())
		return nil, nil
	}
	paths := c.node.Collection.FieldPaths()
	fields := make([]string, len(paths))
	for i, p := range paths {
		fields[i] = c.dialect.Columns.Quote(p.Last())
	}
	return &SQLStatement{
		Query:  fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(fields, ","), c.table(), strings.Join(clauses, " OR ")),
		Params: params.values,
	}, nil
}

// GenerateUpdate returns an UPDATE setting the masked values of row,
// matched by its primary keys:
//
//	UPDATE customer SET name = :name WHERE id = :id
//
// It returns nil when nothing is masked or the row has no primary key value.
func (c *SQLConfig) GenerateUpdate(row graph.Row, policy *privacy.Policy, req *dsr.Request) (*SQLStatement, error) {
	values, err := c.UpdateValueMap(row, policy, req)
	if err != nil {
		return nil, err
	}
	pks := c.primaryKeyValues(row)
	if len(values) == 0 || len(pks) == 0 {
		c.logger.Warn("not enough data to generate a valid update statement", "node", c.node.Address.String())
		return nil, nil
	}
	params := newParamSet()
	set := c.assignments(values, params)
	where := c.assignments(pks, params)
	return &SQLStatement{
		Query:  fmt.Sprintf("UPDATE %s SET %s WHERE %s", c.table(), strings.Join(set, ","), strings.Join(where, " AND ")),
		Params: params.values,
	}, nil
}

// assignments renders "k = :k" for every key in sorted order and records the
// values in params. Later calls override earlier values, so a primary key
// binds its original value even when it is also masked.
func (c *SQLConfig) assignments(values map[string]any, params *paramSet) []string {
	keys := sortedKeys(values)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.dialect.Columns.Quote(k) + " = :" + params.add(k, values[k])
	}
	return out
}

// QueryToString renders the statement with its parameters substituted as
// literals, for logs and dry runs:
//
//	SELECT id,name FROM customer WHERE id IN (1, 2)
func (c *SQLConfig) QueryToString(stmt *SQLStatement, _ map[string][]any) string {
	if stmt == nil {
		return ""
	}
	return substitute(stmt.Query, stmt.Params)
}

// DryRunQuery renders the read statement with placeholder values. It
// returns an empty string when the node has no input.
func (c *SQLConfig) DryRunQuery() (string, error) {
	data := DisplayQueryData(c.node)
	stmt, err := c.GenerateQuery(data, nil)
	if err != nil || stmt == nil {
		return "", err
	}
	return c.QueryToString(stmt, data), nil
}
