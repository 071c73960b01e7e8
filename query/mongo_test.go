package query

import (
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/syssam/dsr/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoGenerateQuery(t *testing.T) {
	tr := traversal(t)
	projection := bson.D{{Key: "id", Value: 1}, {Key: "customer_id", Value: 1}, {Key: "email", Value: 1}}

	tests := []struct {
		name   string
		input  map[string][]any
		filter bson.D
	}{
		{
			name:   "single_path_unwrapped",
			input:  map[string][]any{"email": {"customer-1@example.com"}},
			filter: bson.D{{Key: "email", Value: "customer-1@example.com"}},
		},
		{
			name:   "membership",
			input:  map[string][]any{"customer_id": {1, 2, 2}},
			filter: bson.D{{Key: "customer_id", Value: bson.D{{Key: "$in", Value: bson.A{int64(1), int64(2)}}}}},
		},
		{
			name:  "or_of_paths",
			input: map[string][]any{"customer_id": {1}, "email": {"customer-1@example.com"}},
			filter: bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "customer_id", Value: int64(1)}},
				bson.D{{Key: "email", Value: "customer-1@example.com"}},
			}}},
		},
	}
	c := NewMongoConfig(tr.Node(ordersAddr))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := c.GenerateQuery(tt.input, nil)
			require.NoError(t, err)
			require.NotNil(t, stmt)
			assert.Equal(t, tt.filter, stmt.Filter)
			assert.Equal(t, projection, stmt.Projection)
		})
	}

	stmt, err := c.GenerateQuery(map[string][]any{"email": nil}, nil)
	require.NoError(t, err)
	assert.Nil(t, stmt)
}

func TestMongoProjectionTopLevel(t *testing.T) {
	tr := traversal(t)
	c := NewMongoConfig(tr.Node(detailsAddr))
	stmt, err := c.GenerateQuery(map[string][]any{"customer_id": {1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "_id", Value: 1},
		{Key: "customer_id", Value: 1},
		{Key: "children", Value: 1},
		{Key: "workplace_info", Value: 1},
	}, stmt.Projection)
}

func TestMongoQueryToString(t *testing.T) {
	tr := traversal(t)
	c := NewMongoConfig(tr.Node(ordersAddr))
	input := map[string][]any{"customer_id": {1, 2}, "email": {"customer-1@example.com"}}
	stmt, err := c.GenerateQuery(input, nil)
	require.NoError(t, err)
	assert.Equal(t,
		`db.postgres_example.orders.find({"$or": [{"customer_id": {"$in": [1, 2]}}, {"email": "customer-1@example.com"}]}, {"id": 1, "customer_id": 1, "email": 1})`,
		c.QueryToString(stmt, input))

	dry, err := c.DryRunQuery()
	require.NoError(t, err)
	assert.Equal(t,
		`db.postgres_example.orders.find({"$or": [{"customer_id": {"$in": [?, ?]}}, {"email": ?}]}, {"id": 1, "customer_id": 1, "email": 1})`,
		dry)
	again, err := c.DryRunQuery()
	require.NoError(t, err)
	assert.Equal(t, dry, again)
}

func TestMongoGenerateUpdate(t *testing.T) {
	tr := traversal(t)
	c := NewMongoConfig(tr.Node(detailsAddr))
	id := bson.NewObjectID()
	row := graph.Row{
		"_id":         id.Hex(),
		"customer_id": 1,
		"children":    []any{"Kent", "Kenny"},
		"workplace_info": map[string]any{
			"employer": "Green Tea Company",
			"position": "Head Grower",
		},
	}

	stmt, err := c.GenerateUpdate(row, erasurePolicy(t, nullRule("user")), nil)
	require.NoError(t, err)
	require.NotNil(t, stmt)
	assert.Equal(t, bson.D{{Key: "_id", Value: id}}, stmt.Filter)
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{
		{Key: "children.0", Value: nil},
		{Key: "children.1", Value: nil},
		{Key: "workplace_info.employer", Value: nil},
	}}}, stmt.Update)
	assert.Equal(t,
		`db.mongo_test.customer_details.updateOne({"_id": ObjectId("`+id.Hex()+`")}, {"$set": {"children.0": null, "children.1": null, "workplace_info.employer": null}})`,
		c.QueryToString(stmt, nil))

	stmt, err = c.GenerateUpdate(graph.Row{"_id": "not-an-object-id", "children": []any{"Kent"}}, erasurePolicy(t, nullRule("user")), nil)
	require.NoError(t, err)
	assert.Nil(t, stmt, "uncastable primary keys are dropped")
}
