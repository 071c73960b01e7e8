package connector

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
	"github.com/syssam/dsr/query"
)

// MongoConnector runs filters and $set updates against a document store.
// The database of a node is its dataset name unless the "database" secret
// is set.
type MongoConnector struct {
	key      string
	database string
	client   *mongo.Client
	logger   *slog.Logger
}

var _ Connector = (*MongoConnector)(nil)

// NewMongoConnector creates the client of a document store connection from
// its "url" secret. The client connects lazily.
func NewMongoConnector(c ConnectionConfig, opts ...Option) (*MongoConnector, error) {
	o := newOptions(opts)
	co := mopts.Client().ApplyURI(c.Secret("url"))
	if c.MaxConnections > 0 {
		co.SetMaxPoolSize(uint64(c.MaxConnections))
	}
	client, err := mongo.Connect(co)
	if err != nil {
		return nil, fmt.Errorf("connector: %s: %w", c.Key, err)
	}
	return &MongoConnector{
		key:      c.Key,
		database: c.Secret("database"),
		client:   client,
		logger:   o.logger,
	}, nil
}

// TestConnection pings the primary.
func (c *MongoConnector) TestConnection(ctx context.Context) (TestStatus, error) {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return StatusFailed, err
	}
	return StatusSucceeded, nil
}

// RetrieveData finds the documents of node matching input.
func (c *MongoConnector) RetrieveData(ctx context.Context, node *graph.Node, policy *privacy.Policy, _ *dsr.Request, input map[string][]any) ([]graph.Row, error) {
	stmt, err := c.config(node).GenerateQuery(input, policy)
	if err != nil || stmt == nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "starting data retrieval", "node", node.Address.String(), "connection", c.key)
	cur, err := c.collection(node).Find(ctx, stmt.Filter, mopts.Find().SetProjection(stmt.Projection))
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	rows := make([]graph.Row, len(docs))
	for i, d := range docs {
		rows[i] = normalize(d).(map[string]any)
	}
	return rows, nil
}

// MaskData updates each row by primary key and returns the number of
// documents modified.
func (c *MongoConnector) MaskData(ctx context.Context, node *graph.Node, policy *privacy.Policy, req *dsr.Request, rows []graph.Row) (int, error) {
	cfg := c.config(node)
	coll := c.collection(node)
	n := 0
	for _, row := range rows {
		stmt, err := cfg.GenerateUpdate(row, policy, req)
		if err != nil {
			return n, err
		}
		if stmt == nil {
			continue
		}
		res, err := coll.UpdateOne(ctx, stmt.Filter, stmt.Update)
		if err != nil {
			return n, err
		}
		n += int(res.ModifiedCount)
	}
	return n, nil
}

// DryRunQuery renders the find call of node.
func (c *MongoConnector) DryRunQuery(node *graph.Node) (string, error) {
	return c.config(node).DryRunQuery()
}

// Close disconnects the client.
func (c *MongoConnector) Close() error {
	return c.client.Disconnect(context.Background())
}

func (c *MongoConnector) config(node *graph.Node) *query.MongoConfig {
	return query.NewMongoConfig(node, query.WithLogger(c.logger))
}

func (c *MongoConnector) collection(node *graph.Node) *mongo.Collection {
	db := c.database
	if db == "" {
		db = node.Address.Dataset
	}
	return c.client.Database(db).Collection(node.Address.Collection)
}

// normalize converts decoded documents to plain maps and lists. Object ids
// become their hex form, the form the object_id data type casts to.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case bson.A:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = normalize(e)
		}
		return l
	case []any:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = normalize(e)
		}
		return l
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC()
	}
	return v
}
