package graph

import (
	"errors"
	"testing"

	"github.com/syssam/dsr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(ds, coll, path string, dir Direction) Reference {
	return Reference{Field: FieldAddress{Dataset: ds, Collection: coll, Path: FieldPath(path)}, Direction: dir}
}

func mustCollection(t *testing.T, name string, fields ...*Field) *Collection {
	t.Helper()
	c, err := NewCollection(name, fields...)
	require.NoError(t, err)
	return c
}

// exampleDataset is a small store: customers are found by email, their
// orders and addresses by reference.
func exampleDataset(t *testing.T) *Dataset {
	return &Dataset{
		Name:          "postgres_example",
		ConnectionKey: "postgres_1",
		Collections: []*Collection{
			mustCollection(t, "customer",
				&Field{Name: "id", DataType: TypeInteger, PrimaryKey: true},
				&Field{Name: "email", DataType: TypeString, Identity: "email", Categories: []string{"user.contact.email"}},
				&Field{Name: "address_id", DataType: TypeInteger, References: []Reference{ref("postgres_example", "address", "id", DirectionTo)}},
				&Field{Name: "name", DataType: TypeString, Categories: []string{"user.name"}},
			),
			mustCollection(t, "address",
				&Field{Name: "id", DataType: TypeInteger, PrimaryKey: true},
				&Field{Name: "city", DataType: TypeString, Categories: []string{"user.contact.address.city"}},
			),
			mustCollection(t, "orders",
				&Field{Name: "id", DataType: TypeString, PrimaryKey: true},
				&Field{Name: "customer_id", DataType: TypeInteger, References: []Reference{ref("postgres_example", "customer", "id", DirectionFrom)}},
				&Field{Name: "shipping_address_id", DataType: TypeInteger, References: []Reference{ref("postgres_example", "address", "id", DirectionNone)}},
			),
		},
	}
}

func TestBuild(t *testing.T) {
	tr, err := Build([]*Dataset{exampleDataset(t)})
	require.NoError(t, err)

	customer := CollectionAddress{Dataset: "postgres_example", Collection: "customer"}
	address := CollectionAddress{Dataset: "postgres_example", Collection: "address"}
	orders := CollectionAddress{Dataset: "postgres_example", Collection: "orders"}

	assert.Equal(t, []CollectionAddress{customer, address, orders}, tr.Order())
	assert.Equal(t, []string{"email"}, tr.IdentityKeys())
	assert.Len(t, tr.Edges(), 4)

	node := tr.Node(customer)
	require.NotNil(t, node)
	assert.Equal(t, "postgres_1", node.ConnectionKey())
	assert.Equal(t, []Edge{{From: RootAddress.Field("email"), To: customer.Field("email")}}, node.IncomingEdges())
	assert.Equal(t, []CollectionAddress{RootAddress}, node.Upstream())

	// The undirected reference is oriented from the closer end: orders is
	// two hops away from the root and address is two as well, so the tie is
	// broken by address, making address the source.
	assert.Equal(t, []CollectionAddress{address, customer}, tr.Node(orders).Upstream())
	assert.Equal(t, []Edge{
		{From: address.Field("id"), To: orders.Field("shipping_address_id")},
		{From: customer.Field("id"), To: orders.Field("customer_id")},
	}, tr.Node(orders).IncomingEdges())

	assert.True(t, tr.Root().IsRoot())
	assert.Len(t, tr.Root().OutgoingEdges(), 1)
	assert.Nil(t, tr.Node(CollectionAddress{Dataset: "x", Collection: "y"}))
}

func TestBuildOrientsAwayFromRoot(t *testing.T) {
	ds := &Dataset{
		Name: "mongo_test",
		Collections: []*Collection{
			mustCollection(t, "customer_feedback",
				&Field{Name: "customer_information", Fields: []*Field{
					{Name: "email", DataType: TypeString, Identity: "email"},
					{Name: "internal_customer_id", DataType: TypeString},
				}},
			),
			mustCollection(t, "internal_customer_profile",
				&Field{Name: "customer_identifiers", Fields: []*Field{
					{Name: "internal_id", DataType: TypeString, References: []Reference{
						ref("mongo_test", "customer_feedback", "customer_information.internal_customer_id", DirectionNone),
					}},
				}},
			),
		},
	}
	tr, err := Build([]*Dataset{ds})
	require.NoError(t, err)
	profile := tr.Node(CollectionAddress{Dataset: "mongo_test", Collection: "internal_customer_profile"})
	require.Len(t, profile.IncomingEdges(), 1)
	assert.Equal(t, FieldPath("customer_information.internal_customer_id"), profile.IncomingEdges()[0].From.Path)
}

func TestBuildErrors(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		ds := &Dataset{Name: "ds", Collections: []*Collection{
			mustCollection(t, "a",
				&Field{Name: "email", Identity: "email"},
				&Field{Name: "b_id", References: []Reference{ref("ds", "b", "id", DirectionFrom)}},
				&Field{Name: "id"},
			),
			mustCollection(t, "b",
				&Field{Name: "id"},
				&Field{Name: "a_id", References: []Reference{ref("ds", "a", "id", DirectionFrom)}},
			),
		}}
		_, err := Build([]*Dataset{ds})
		require.Error(t, err)
		assert.True(t, errors.Is(err, dsr.ErrCycle))
		var te *dsr.TraversalError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, []string{"ds:a", "ds:b"}, te.Addresses)
	})

	t.Run("unreachable", func(t *testing.T) {
		ds := &Dataset{Name: "ds", Collections: []*Collection{
			mustCollection(t, "a", &Field{Name: "email", Identity: "email"}),
			mustCollection(t, "orphan", &Field{Name: "id"}),
		}}
		_, err := Build([]*Dataset{ds})
		require.Error(t, err)
		assert.True(t, dsr.IsTraversalError(err))
		assert.False(t, errors.Is(err, dsr.ErrCycle))
		assert.Contains(t, err.Error(), "ds:orphan")
	})

	t.Run("unknown_reference", func(t *testing.T) {
		ds := &Dataset{Name: "ds", Collections: []*Collection{
			mustCollection(t, "a",
				&Field{Name: "email", Identity: "email"},
				&Field{Name: "x", References: []Reference{ref("ds", "a", "missing", DirectionTo)}},
			),
		}}
		_, err := Build([]*Dataset{ds})
		require.Error(t, err)
		assert.True(t, dsr.IsConfigError(err))
	})

	t.Run("duplicate_collection", func(t *testing.T) {
		ds := &Dataset{Name: "ds", Collections: []*Collection{
			mustCollection(t, "a", &Field{Name: "email", Identity: "email"}),
			mustCollection(t, "a", &Field{Name: "email", Identity: "email"}),
		}}
		_, err := Build([]*Dataset{ds})
		require.Error(t, err)
	})
}

func TestNodeInputData(t *testing.T) {
	tr, err := Build([]*Dataset{exampleDataset(t)})
	require.NoError(t, err)
	customer := CollectionAddress{Dataset: "postgres_example", Collection: "customer"}
	address := CollectionAddress{Dataset: "postgres_example", Collection: "address"}
	orders := tr.Node(CollectionAddress{Dataset: "postgres_example", Collection: "orders"})

	results := map[CollectionAddress][]Row{
		customer: {{"id": int64(1), "address_id": int64(3)}, {"id": int64(2)}, {"id": nil}},
		address:  {{"id": []any{int64(3), int64(4)}}},
	}
	input := orders.InputData(results, Row{"email": "customer-1@example.com"})
	assert.Equal(t, map[string][]any{
		"customer_id":         {int64(1), int64(2)},
		"shipping_address_id": {int64(3), int64(4)},
	}, input)

	root := tr.Node(customer).InputData(results, Row{"email": "customer-1@example.com"})
	assert.Equal(t, map[string][]any{"email": {"customer-1@example.com"}}, root)
}

func TestNodeTypedFilteredValues(t *testing.T) {
	tr, err := Build([]*Dataset{exampleDataset(t)})
	require.NoError(t, err)
	orders := tr.Node(CollectionAddress{Dataset: "postgres_example", Collection: "orders"})

	got := orders.TypedFilteredValues(map[string][]any{
		"customer_id":         {"1", 2, "x", nil},
		"shipping_address_id": {"bad"},
		"id":                  {"not an input path"},
		"unknown":             {1},
	})
	assert.Equal(t, map[string][]any{"customer_id": {int64(1), int64(2)}}, got)
}
