package query

import (
	"testing"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/saas"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usersAddr    = graph.CollectionAddress{Dataset: "saas_example", Collection: "users"}
	messagesAddr = graph.CollectionAddress{Dataset: "saas_example", Collection: "messages"}
)

func saasTraversal(t *testing.T) *graph.Traversal {
	t.Helper()
	ds := &graph.Dataset{
		Name:          "saas_example",
		ConnectionKey: "saas_1",
		Collections: []*graph.Collection{
			mustCollection(t, "users",
				&graph.Field{Name: "id", DataType: graph.TypeString, PrimaryKey: true, Identity: "email"},
				&graph.Field{Name: "name", DataType: graph.TypeString, Categories: []string{"user.name"}},
				&graph.Field{Name: "address", Fields: []*graph.Field{
					{Name: "city", DataType: graph.TypeString, Categories: []string{"user.contact.address.city"}},
				}},
			),
			mustCollection(t, "messages",
				&graph.Field{Name: "id", DataType: graph.TypeString, PrimaryKey: true},
				&graph.Field{Name: "user_id", References: ref(usersAddr, "id")},
			),
		},
	}
	tr, err := graph.Build([]*graph.Dataset{ds})
	require.NoError(t, err)
	return tr
}

func saasEndpoints() map[string]*saas.Endpoint {
	return map[string]*saas.Endpoint{
		"users": {Name: "users", Requests: map[string]*saas.Request{
			saas.ActionRead: {
				Path: "/users/<id>",
				RequestParams: []*saas.RequestParam{
					{Name: "id", Type: saas.ParamPath, Identity: "email"},
				},
			},
			saas.ActionUpdate: {
				Path: "/users/<id>",
				RequestParams: []*saas.RequestParam{
					{Name: "id", Type: saas.ParamPath, References: []saas.Reference{{Dataset: "saas_example", Field: "users.id", Direction: graph.DirectionFrom}}},
					{Name: "version", Type: saas.ParamQuery, DefaultValue: "2"},
				},
			},
		}},
		"messages": {Name: "messages", Requests: map[string]*saas.Request{
			saas.ActionRead: {
				Path: "/messages",
				RequestParams: []*saas.RequestParam{
					{Name: "user_id", Type: saas.ParamQuery, References: []saas.Reference{{Dataset: "saas_example", Field: "users.id", Direction: graph.DirectionFrom}}},
					{Name: "limit", Type: saas.ParamQuery, DefaultValue: 100},
					{Name: "unused", Type: saas.ParamQuery},
				},
			},
		}},
	}
}

func TestSaaSGenerateQuery(t *testing.T) {
	tr := saasTraversal(t)
	c := NewSaaSConfig(tr.Node(usersAddr), saasEndpoints())

	r, err := c.GenerateQuery(map[string][]any{"id": {"abc@x.com"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, &SaaSRequest{Method: "GET", Path: "/users/abc@x.com", Query: map[string]any{}}, r)
	assert.Nil(t, r.Body)
	assert.Equal(t, "GET /users/abc@x.com", c.QueryToString(r, nil))

	_, err = c.GenerateQuery(nil, nil)
	require.Error(t, err, "path params need a value")

	m := NewSaaSConfig(tr.Node(messagesAddr), saasEndpoints())
	r, err = m.GenerateQuery(map[string][]any{"user_id": {"u1", "u2"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, &SaaSRequest{Method: "GET", Path: "/messages", Query: map[string]any{"user_id": "u1", "limit": 100}}, r)
	assert.Equal(t, "GET /messages?limit=100&user_id=u1", m.QueryToString(r, nil))
}

func TestSaaSGenerateRequests(t *testing.T) {
	tr := saasTraversal(t)
	c := NewSaaSConfig(tr.Node(messagesAddr), saasEndpoints())
	reqs, err := c.GenerateRequests(map[string][]any{"user_id": {"u1", "u2"}, "other": {"x"}}, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "u1", reqs[0].Query["user_id"])
	assert.Equal(t, "u2", reqs[1].Query["user_id"])

	reqs, err = c.GenerateRequests(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestSaaSGenerateUpdate(t *testing.T) {
	tr := saasTraversal(t)
	c := NewSaaSConfig(tr.Node(usersAddr), saasEndpoints())
	row := graph.Row{"id": "u1", "name": "Jo", "address": map[string]any{"city": "Paris"}}

	r, err := c.GenerateUpdate(row, erasurePolicy(t, rewriteRule("MASKED", "user")), nil)
	require.NoError(t, err)
	assert.Equal(t, "PUT", r.Method)
	assert.Equal(t, "/users/u1", r.Path)
	assert.Equal(t, map[string]any{"version": "2"}, r.Query)
	assert.JSONEq(t, `{"name": "MASKED", "address": {"city": "MASKED"}}`, string(r.Body))

	r, err = c.GenerateUpdate(row, erasurePolicy(t, rewriteRule("MASKED", "system.operations")), nil)
	require.NoError(t, err)
	assert.Nil(t, r, "no update is sent when no field is in scope")

	m := NewSaaSConfig(tr.Node(messagesAddr), saasEndpoints())
	_, err = m.GenerateUpdate(graph.Row{"id": "m1"}, erasurePolicy(t, nullRule("user")), nil)
	require.Error(t, err)
	assert.True(t, dsr.IsConfigError(err))
	assert.Contains(t, err.Error(), "the `update` action is not defined for the `messages` endpoint")
	assert.Contains(t, err.Error(), "saas_1")
}

func TestSaaSFixedMethods(t *testing.T) {
	tr := saasTraversal(t)
	endpoints := saasEndpoints()
	endpoints["users"].Requests[saas.ActionRead].Method = "POST"
	endpoints["users"].Requests[saas.ActionUpdate].Method = "PATCH"
	c := NewSaaSConfig(tr.Node(usersAddr), endpoints)

	r, err := c.GenerateQuery(map[string][]any{"id": {"abc@x.com"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "GET", r.Method)

	r, err = c.GenerateUpdate(graph.Row{"id": "u1", "name": "Jo"}, erasurePolicy(t, rewriteRule("MASKED", "user.name")), nil)
	require.NoError(t, err)
	assert.Equal(t, "PUT", r.Method)
}

func TestSaaSDryRunQuery(t *testing.T) {
	tr := saasTraversal(t)
	c := NewSaaSConfig(tr.Node(usersAddr), saasEndpoints())
	got, err := c.DryRunQuery()
	require.NoError(t, err)
	assert.Equal(t, "GET /users/?", got)

	m := NewSaaSConfig(tr.Node(messagesAddr), saasEndpoints())
	got, err = m.DryRunQuery()
	require.NoError(t, err)
	assert.Equal(t, "GET /messages?limit=100&user_id=?", got)

	missing := NewSaaSConfig(tr.Node(usersAddr), nil)
	_, err = missing.DryRunQuery()
	assert.True(t, dsr.IsConfigError(err))
}
