package query

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
)

// MongoStatement is a document store instruction. A read carries a filter
// and a projection, as in collection.find(filter, projection); an update a
// primary key filter and a {"$set": {...}} document, as in
// collection.updateOne(filter, update).
type MongoStatement struct {
	Filter     bson.D
	Projection bson.D
	Update     bson.D
}

// MongoConfig generates document store instructions for a node.
type MongoConfig struct {
	base
}

var _ Config[*MongoStatement] = (*MongoConfig)(nil)

// NewMongoConfig returns the document store config of node.
func NewMongoConfig(node *graph.Node, opts ...Option) *MongoConfig {
	return &MongoConfig{base: newBase(node, opts)}
}

// GenerateQuery returns a filter matching documents where any input path
// holds one of its values, projecting the top-level fields of the
// collection. Several paths are combined with $or:
//
//	{"$or": [{"customer_id": {"$in": [1, 2]}}, {"email": "a@b.com"}]}
func (c *MongoConfig) GenerateQuery(input map[string][]any, _ *privacy.Policy) (*MongoStatement, error) {
	filtered := c.node.TypedFilteredValues(input)
	var pairs bson.D
	for _, key := range sortedKeys(filtered) {
		values := distinct(filtered[key])
		for i, v := range values {
			values[i] = c.native(key, v)
		}
		switch {
		case len(values) == 1:
			pairs = append(pairs, bson.E{Key: key, Value: values[0]})
		case len(values) > 1:
			pairs = append(pairs, bson.E{Key: key, Value: bson.D{{Key: "$in", Value: bson.A(values)}}})
		}
	}
	if len(pairs) == 0 {
		c.logger.Warn("not enough data to generate a valid query", "node", c.node.Address.String())
		return nil, nil
	}
	filter := pairs
	if len(pairs) > 1 {
		or := make(bson.A, len(pairs))
		for i, e := range pairs {
			or[i] = bson.D{e}
		}
		filter = bson.D{{Key: "$or", Value: or}}
	}
	var projection bson.D
	for _, p := range c.node.Collection.TopLevelPaths() {
		projection = append(projection, bson.E{Key: p.String(), Value: 1})
	}
	return &MongoStatement{Filter: filter, Projection: projection}, nil
}

// GenerateUpdate returns the primary key filter of row and a $set of its
// masked values. It returns nil when nothing is masked or the row has no
// primary key value.
func (c *MongoConfig) GenerateUpdate(row graph.Row, policy *privacy.Policy, req *dsr.Request) (*MongoStatement, error) {
	values, err := c.UpdateValueMap(row, policy, req)
	if err != nil {
		return nil, err
	}
	pks := c.primaryKeyValues(row)
	if len(values) == 0 || len(pks) == 0 {
		c.logger.Warn("not enough data to generate a valid update", "node", c.node.Address.String())
		return nil, nil
	}
	for k, v := range pks {
		pks[k] = c.native(k, v)
	}
	return &MongoStatement{
		Filter: ordered(pks),
		Update: bson.D{{Key: "$set", Value: ordered(values)}},
	}, nil
}

// native converts object ids, carried as hex strings, to their bson type.
func (c *MongoConfig) native(path string, v any) any {
	f, ok := c.node.Collection.Field(graph.FieldPath(path))
	if !ok || f.DataType != graph.TypeObjectID {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	if id, err := bson.ObjectIDFromHex(s); err == nil {
		return id
	}
	return v
}

func ordered(m map[string]any) bson.D {
	d := make(bson.D, 0, len(m))
	for _, k := range sortedKeys(m) {
		d = append(d, bson.E{Key: k, Value: m[k]})
	}
	return d
}

// QueryToString renders the statement as a mongo shell call on
// db.<dataset>.<collection>.
func (c *MongoConfig) QueryToString(stmt *MongoStatement, _ map[string][]any) string {
	if stmt == nil {
		return ""
	}
	addr := c.node.Address
	if stmt.Update != nil {
		return fmt.Sprintf("db.%s.%s.updateOne(%s, %s)", addr.Dataset, addr.Collection, document(stmt.Filter), document(stmt.Update))
	}
	return fmt.Sprintf("db.%s.%s.find(%s, %s)", addr.Dataset, addr.Collection, document(stmt.Filter), document(stmt.Projection))
}

// DryRunQuery renders the read instruction with placeholder values.
func (c *MongoConfig) DryRunQuery() (string, error) {
	data := DisplayQueryData(c.node)
	stmt, err := c.GenerateQuery(data, nil)
	if err != nil || stmt == nil {
		return "", err
	}
	return c.QueryToString(stmt, data), nil
}
