package connector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/dialect"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/saas"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSConnector(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "pre", r.Header.Get("X-Webhook"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		switch r.URL.Path {
		case "/fail":
			w.WriteHeader(http.StatusBadRequest)
		default:
			_, _ = io.WriteString(w, `{"derived_identity": {"email": "a@b.com"}}`)
		}
	}))
	defer srv.Close()

	hook := func(path string) *HTTPSConnector {
		c, err := NewHTTPSConnector(ConnectionConfig{
			Key:     "hook",
			Type:    dialect.HTTPS,
			Secrets: map[string]any{"url": srv.URL + path, "authorization": "Bearer token"},
		})
		require.NoError(t, err)
		return c
	}
	ctx := context.Background()
	headers := map[string]string{"X-Webhook": "pre"}

	resp, err := hook("/ok").Execute(ctx, map[string]any{"privacy_request_id": "pr_1"}, true, headers)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"derived_identity": map[string]any{"email": "a@b.com"}}, resp)
	assert.Equal(t, map[string]any{"privacy_request_id": "pr_1"}, got)

	_, err = hook("/fail").Execute(ctx, map[string]any{}, true, headers)
	var ce *dsr.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusBadRequest, ce.StatusCode)

	resp, err = hook("/fail").Execute(ctx, map[string]any{}, false, headers)
	require.NoError(t, err, "status is ignored when no response is expected")
	assert.Empty(t, resp)

	status, err := hook("/ok").TestConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	c, err := NewHTTPSConnector(ConnectionConfig{Key: "hook", Secrets: map[string]any{"url": closed.URL, "authorization": "x"}})
	require.NoError(t, err)
	_, err = c.Execute(ctx, map[string]any{}, false, nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusInternalServerError, ce.StatusCode)
	assert.True(t, IsTransient(err))
}

var (
	apiUsersAddr    = graph.CollectionAddress{Dataset: "saas_example", Collection: "users"}
	apiMessagesAddr = graph.CollectionAddress{Dataset: "saas_example", Collection: "messages"}
)

const saasExample = `
fides_key: saas_example
name: Example API
type: custom
connector_params:
  - name: host
  - name: username
  - name: api_key
client_config:
  protocol: http
  host: <host>
  authentication:
    strategy: basic_authentication
    configuration:
      username: <username>
      password: <api_key>
test_request:
  path: /ping
endpoints:
  - name: users
    requests:
      read:
        path: /users
        request_params:
          - name: email
            type: query
            identity: email
        data_path: data
      update:
        path: /users/<id>
        request_params:
          - name: id
            type: path
            references:
              - dataset: saas_example
                field: users.id
                direction: from
  - name: messages
    requests:
      read:
        path: /users/<user_id>/messages
        request_params:
          - name: user_id
            type: path
            references:
              - dataset: saas_example
                field: users.id
                direction: from
        postprocessors:
          - strategy: unwrap
            configuration:
              data_path: result.messages
          - strategy: filter
            configuration:
              field: from
              value:
                identity: email
`

func loadSaaSConfig(t *testing.T) *saas.Config {
	t.Helper()
	var conf saas.Config
	require.NoError(t, yaml.Unmarshal([]byte(saasExample), &conf))
	require.NoError(t, conf.Validate(saas.DefaultRegistry()))
	return &conf
}

// saasConnector returns a connector calling srv and the traversal of the
// user dataset merged with the dataset of the configuration.
func saasConnector(t *testing.T, srv *httptest.Server) (*SaaSConnector, *graph.Traversal) {
	t.Helper()
	conf := loadSaaSConfig(t)
	c, err := NewSaaSConnector(ConnectionConfig{
		Key:        "saas_1",
		Type:       dialect.SaaS,
		SaaSConfig: conf,
		Secrets: map[string]any{
			"host":     strings.TrimPrefix(srv.URL, "http://"),
			"username": "admin",
			"api_key":  "secret",
		},
	}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	user := &graph.Dataset{
		Name:          "saas_example",
		ConnectionKey: "saas_1",
		Collections: []*graph.Collection{
			mustCollection(t, "users",
				&graph.Field{Name: "id", DataType: graph.TypeString, PrimaryKey: true},
				&graph.Field{Name: "name", DataType: graph.TypeString, Categories: []string{"user.name"}},
				&graph.Field{Name: "email", DataType: graph.TypeString, Categories: []string{"user.contact.email"}},
			),
			mustCollection(t, "messages",
				&graph.Field{Name: "id", DataType: graph.TypeString, PrimaryKey: true},
				&graph.Field{Name: "from", DataType: graph.TypeString, Categories: []string{"user.contact.email"}},
			),
		},
	}
	implied, err := conf.Dataset("saas_1")
	require.NoError(t, err)
	merged, err := saas.MergeDatasets(user, implied)
	require.NoError(t, err)
	tr, err := graph.Build([]*graph.Dataset{merged})
	require.NoError(t, err)
	return c, tr
}

func TestSaaSConnector(t *testing.T) {
	var updates []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/ping":
		case r.URL.Path == "/users" && r.URL.Query().Get("email") == "a@b.com":
			_, _ = io.WriteString(w, `{"data": [{"id": "u1", "name": "Jo"}]}`)
		case r.URL.Path == "/users/u1/messages":
			_, _ = io.WriteString(w, `{"result": {"messages": [{"id": "m1", "from": "a@b.com"}, {"id": "m2", "from": "c@d.com"}]}}`)
		case r.Method == http.MethodPut && r.URL.Path == "/users/u1":
			b, _ := io.ReadAll(r.Body)
			updates = append(updates, string(b))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, tr := saasConnector(t, srv)
	ctx := context.Background()
	req := dsr.NewRequest(map[string]any{"email": "a@b.com"})

	status, err := c.TestConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	users, err := c.RetrieveData(ctx, tr.Node(apiUsersAddr), nil, req, map[string][]any{"email": {"a@b.com"}})
	require.NoError(t, err)
	assert.Equal(t, []graph.Row{{"id": "u1", "name": "Jo"}}, users)

	messages, err := c.RetrieveData(ctx, tr.Node(apiMessagesAddr), nil, req, map[string][]any{"user_id": {"u1"}})
	require.NoError(t, err)
	assert.Equal(t, []graph.Row{{"id": "m1", "from": "a@b.com"}}, messages)

	n, err := c.MaskData(ctx, tr.Node(apiUsersAddr), nullPolicy(t, "user"), req, users)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, updates, 1)
	assert.JSONEq(t, `{"name": null}`, updates[0])

	_, err = c.MaskData(ctx, tr.Node(apiMessagesAddr), nullPolicy(t, "user"), req, messages)
	assert.True(t, dsr.IsConfigError(err), "messages has no update request")

	_, err = c.RetrieveData(ctx, tr.Node(apiMessagesAddr), nil, req, map[string][]any{"user_id": {"missing"}})
	var ce *dsr.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusNotFound, ce.StatusCode)
	assert.False(t, IsTransient(err))

	got, err := c.DryRunQuery(tr.Node(apiMessagesAddr))
	require.NoError(t, err)
	assert.Equal(t, "GET /users/?/messages", got)
}

func TestSaaSConnectorAuthentication(t *testing.T) {
	conf := &saas.Config{Key: "api", ClientConfig: saas.ClientConfig{
		Host: "<domain>",
		Authentication: &saas.Authentication{
			Strategy:      BearerAuthentication,
			Configuration: map[string]string{"token": "<api_key>"},
		},
	}, ConnectorParams: []saas.ConnectorParam{{Name: "domain", DefaultValue: "api.example.com"}, {Name: "api_key"}}}
	c, err := NewSaaSConnector(ConnectionConfig{Key: "api", SaaSConfig: conf, Secrets: map[string]any{"api_key": "k1"}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.baseURL)
	assert.Equal(t, "Bearer k1", c.authorize().Get("Authorization"))

	conf.ClientConfig.Authentication.Strategy = "oauth2"
	_, err = NewSaaSConnector(ConnectionConfig{Key: "api", SaaSConfig: conf})
	assert.True(t, dsr.IsConfigError(err))
}
