// Package connector executes the instructions generated by the query
// package against the backing stores of a connection configuration:
// relational databases, document stores, SaaS APIs and https sinks.
//
// One Connector is created per connection configuration and shared by every
// traversal node the connection serves:
//
//	c, err := connector.New(connector.ConnectionConfig{
//		Key:     "postgres_1",
//		Type:    dialect.Postgres,
//		Secrets: map[string]any{"url": "postgres://localhost/app?sslmode=disable"},
//	})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	rows, err := c.RetrieveData(ctx, node, policy, req, input)
//
// Transient failures are classified by IsTransient and retried with Retry.
package connector
