package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/dialect"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/masking"
	"github.com/syssam/dsr/privacy"
	"github.com/syssam/dsr/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const example = `
datasets:
  - fides_key: postgres_example
    connection_key: postgres_1
    collections:
      - name: customer
        fields:
          - name: id
            data_categories: system.operations
            fidesops_meta:
              primary_key: true
              data_type: integer
          - name: email
            data_categories: [user.contact.email]
            fidesops_meta:
              identity: email
              data_type: string
          - name: name
            data_categories: [user.name]
            fidesops_meta:
              data_type: string
              length: 40
      - name: orders
        fields:
          - name: id
            fidesops_meta:
              primary_key: true
          - name: customer_id
            fidesops_meta:
              references:
                - dataset: postgres_example
                  field: customer.id
                  direction: from
          - name: shipping
            fields:
              - name: street
                data_categories: [user.contact.address.street]
policies:
  - key: example_policy
    rules:
      - key: access
        action_type: access
        targets: [user]
      - key: erasure
        action_type: erasure
        targets: [user.name]
        masking_strategy:
          strategy: string_rewrite
          configuration:
            rewrite_value: MASKED
connections:
  - key: postgres_1
    connection_type: SQLite
    secrets:
      url: ":memory:"
  - key: hook
    connection_type: https
    secrets:
      url: https://example.com/hook
      authorization: token
storage:
  - name: local
    type: local
    details:
      naming: request_id
execution:
  workers: 4
  attempts: 3
  backoff: 250ms
  connection_limits:
    postgres_1: 2
  result_ttl: 1h
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(example))
	require.NoError(t, err)
	require.NoError(t, c.Validate(masking.Default()))

	assert.Len(t, c.Datasets, 1)
	assert.Equal(t, StringList{"system.operations"}, c.Datasets[0].Collections[0].Fields[0].DataCategories)
	assert.Equal(t, 250*time.Millisecond, c.Execution.Backoff)
	assert.Equal(t, time.Hour, c.Execution.ResultTTL)
	assert.Equal(t, map[string]int{"postgres_1": 2}, c.Execution.ConnectionLimits)
	assert.Len(t, c.Execution.Options(nil), 4)

	p, ok := c.Policy("example_policy")
	require.True(t, ok)
	assert.Equal(t, privacy.ActionErasure, p.Rules[1].Action)
	assert.NotNil(t, p.Rules[1].Strategy(), "validate binds the strategies")
	_, ok = c.Policy("missing")
	assert.False(t, ok)

	tr, err := c.Traversal()
	require.NoError(t, err)
	orders := graph.CollectionAddress{Dataset: "postgres_example", Collection: "orders"}
	assert.Equal(t, []graph.CollectionAddress{
		{Dataset: "postgres_example", Collection: "customer"},
		orders,
	}, tr.Order())
	f, ok := tr.Node(orders).Collection.Field("shipping.street")
	require.True(t, ok)
	assert.Equal(t, []string{"user.contact.address.street"}, f.Categories)

	name, _ := tr.Node(graph.CollectionAddress{Dataset: "postgres_example", Collection: "customer"}).Collection.Field("name")
	require.NotNil(t, name.Length)
	assert.Equal(t, 40, *name.Length)
	assert.Equal(t, graph.TypeString, name.DataType)
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.NoError(t, c.Validate(masking.Default()))
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse([]byte("datasets: []\nunknown: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
		want []string
	}{
		{
			name: "unknown_connection",
			edit: func(s string) string { return strings.Replace(s, "connection_key: postgres_1", "connection_key: mysql_1", 1) },
			want: []string{`datasets[0].connection_key`, `unknown connection "mysql_1"`},
		},
		{
			name: "bad_data_type",
			edit: func(s string) string { return strings.Replace(s, "data_type: integer", "data_type: uuid", 1) },
			want: []string{`datasets[0].collections[0].fields[0].fidesops_meta.data_type`},
		},
		{
			name: "bad_reference",
			edit: func(s string) string { return strings.Replace(s, "field: customer.id", "field: id", 1) },
			want: []string{`datasets[0].collections[1].fields[1].fidesops_meta.references[0]`},
		},
		{
			name: "bad_direction",
			edit: func(s string) string { return strings.Replace(s, "direction: from", "direction: sideways", 1) },
			want: []string{`unknown direction "sideways"`},
		},
		{
			name: "unknown_strategy",
			edit: func(s string) string { return strings.Replace(s, "strategy: string_rewrite", "strategy: shuffle", 1) },
			want: []string{`policies[0]`, `"shuffle" does not exist`},
		},
		{
			name: "missing_secret",
			edit: func(s string) string { return strings.Replace(s, "authorization: token", "token: x", 1) },
			want: []string{`connections[1].secrets.authorization`},
		},
		{
			name: "negative_workers",
			edit: func(s string) string { return strings.Replace(s, "workers: 4", "workers: -1", 1) },
			want: []string{`execution.workers`},
		},
		{
			name: "unknown_limit",
			edit: func(s string) string { return strings.Replace(s, "    postgres_1: 2", "    mongo_1: 2", 1) },
			want: []string{`unknown connection "mongo_1"`},
		},
		{
			name: "cycle",
			edit: func(s string) string {
				return strings.Replace(s, "          - name: name\n", `          - name: name
            fidesops_meta:
              references:
                - dataset: postgres_example
                  field: orders.id
                  direction: from
          - name: other
`, 1)
			},
			want: []string{"cycle"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.edit(example)))
			require.NoError(t, err)
			err = c.Validate(masking.Default())
			require.Error(t, err)
			assert.ErrorIs(t, err, dsr.ErrInvalidConfig)
			for _, want := range tt.want {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	c, err := Parse([]byte(`
datasets:
  - fides_key: ds
    collections:
      - name: c
        fields:
          - fidesops_meta:
              length: -1
connections:
  - key: db
    connection_type: oracle
`))
	require.NoError(t, err)
	err = c.Validate(masking.Default())
	var agg *dsr.AggregateError
	require.ErrorAs(t, err, &agg)
	var names []string
	for _, e := range agg.Errors {
		var ve *dsr.ValidationError
		require.ErrorAs(t, e, &ve)
		names = append(names, ve.Name)
	}
	assert.ElementsMatch(t, []string{
		"connections[0].connection_type",
		"datasets[0].connection_key",
		"datasets[0].collections[0]",
		"datasets[0].collections[0].fields[0].name",
		"datasets[0].collections[0].fields[0].fidesops_meta.length",
	}, names)
}

func TestZeroLength(t *testing.T) {
	c, err := Parse([]byte(strings.Replace(example, "length: 40", "length: 0", 1)))
	require.NoError(t, err)
	require.NoError(t, c.Validate(masking.Default()))

	tr, err := c.Traversal()
	require.NoError(t, err)
	node := tr.Node(graph.CollectionAddress{Dataset: "postgres_example", Collection: "customer"})
	require.NotNil(t, node)
	f, ok := node.Collection.Field("name")
	require.True(t, ok)
	require.NotNil(t, f.Length)
	assert.Zero(t, *f.Length)

	policy, ok := c.Policy("example_policy")
	require.True(t, ok)
	masked, err := query.NewSQLConfig(node, dialect.Generic()).UpdateValueMap(graph.Row{"id": 1, "name": "Jo"}, policy, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": ""}, masked)
}

func TestSaaSDatasetMerge(t *testing.T) {
	c, err := Parse([]byte(`
datasets:
  - fides_key: saas_example
    connection_key: saas_1
    collections:
      - name: users
        fields:
          - name: id
          - name: email
            data_categories: [user.contact.email]
connections:
  - key: saas_1
    connection_type: saas
    secrets:
      domain: api.example.com
    saas_config:
      fides_key: saas_example
      name: Example
      type: example
      connector_params:
        - name: domain
      client_config:
        protocol: https
        host: <domain>
      endpoints:
        - name: users
          requests:
            read:
              path: /users
              method: GET
              request_params:
                - name: email
                  type: query
                  identity: email
`))
	require.NoError(t, err)
	require.NoError(t, c.Validate(masking.Default()))
	tr, err := c.Traversal()
	require.NoError(t, err)
	users := tr.Node(graph.CollectionAddress{Dataset: "saas_example", Collection: "users"})
	require.NotNil(t, users)
	f, ok := users.Collection.Field("email")
	require.True(t, ok)
	assert.Equal(t, "email", f.Identity)
	assert.Equal(t, []string{"user.contact.email"}, f.Categories)
}

func TestConnectors(t *testing.T) {
	c, err := Parse([]byte(example))
	require.NoError(t, err)
	conns, err := c.Connectors()
	require.NoError(t, err)
	require.Len(t, conns, 1, "https sinks are not part of the traversal")
	t.Cleanup(func() {
		for _, conn := range conns {
			assert.NoError(t, conn.Close())
		}
	})
	e, err := c.Executor(conns, nil)
	require.NoError(t, err)
	queries, err := e.DryRun()
	require.NoError(t, err)
	assert.Len(t, queries, 2)
}

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	c, err := Parse([]byte(example))
	require.NoError(t, err)
	path := filepath.Join(dir, "nested", "dsr.yml")
	require.NoError(t, Save(path, c))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate(masking.Default()))
	assert.Equal(t, c.Execution, loaded.Execution)
	assert.Equal(t, c.Datasets, loaded.Datasets)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dsr.yml")
	require.NoError(t, os.WriteFile(path, []byte(example), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu       sync.Mutex
		reloaded []*Config
		done     = make(chan error, 1)
	)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			mu.Lock()
			defer mu.Unlock()
			reloaded = append(reloaded, c)
		}, WithDebounce(10*time.Millisecond))
	}()

	invalid := strings.Replace(example, "workers: 4", "workers: -1", 1)
	valid := strings.Replace(example, "workers: 4", "workers: 8", 1)
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(invalid), 0o600)
		_ = os.WriteFile(path, []byte(valid), 0o600)
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) > 0
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 8, reloaded[0].Execution.Workers)
	mu.Unlock()
	cancel()
	assert.NoError(t, <-done)
}
