package connector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/dialect"
	dsql "github.com/syssam/dsr/dialect/sql"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
	"github.com/syssam/dsr/query"
)

// SQLConnector runs generated statements against a relational database.
type SQLConnector struct {
	key     string
	dialect dialect.SQL
	driver  *dsql.StatsDriver
	timeout time.Duration
	logger  *slog.Logger
}

var _ Connector = (*SQLConnector)(nil)

// NewSQLConnector opens the pool of a SQL connection. The "url" secret is the
// data source name handed to the database/sql driver of the dialect. An
// optional "statement_timeout" secret, e.g. "30s", bounds every statement
// on postgres and mysql.
func NewSQLConnector(c ConnectionConfig, opts ...Option) (*SQLConnector, error) {
	o := newOptions(opts)
	d, err := dialect.SQLFor(c.ConnectionType())
	if err != nil {
		return nil, dsr.NewConfigError(c.Key, "%v", err)
	}
	var timeout time.Duration
	if s := c.Secret("statement_timeout"); s != "" {
		if timeout, err = time.ParseDuration(s); err != nil {
			return nil, dsr.NewConfigError(c.Key, "invalid statement_timeout %q", s)
		}
	}
	drv := o.driver
	if drv == nil {
		drv, err = dsql.Open(d.Name, "", c.Secret("url"), dsql.PoolOptions{
			MaxOpenConns: c.MaxConnections,
			MaxIdleConns: c.MaxConnections,
		})
		if err != nil {
			return nil, fmt.Errorf("connector: %s: %w", c.Key, err)
		}
	}
	return &SQLConnector{
		key:     c.Key,
		dialect: d,
		driver:  dsql.NewStatsDriver(drv, dsql.WithSlowThreshold(o.slow), dsql.WithLogger(o.logger)),
		timeout: timeout,
		logger:  o.logger,
	}, nil
}

// Dialect returns the SQL dialect of the connection.
func (c *SQLConnector) Dialect() dialect.SQL { return c.dialect }

// Stats returns the statement counters of the connection.
func (c *SQLConnector) Stats() dsql.StatsSnapshot { return c.driver.Stats().Snapshot() }

// TestConnection runs a trivial query.
func (c *SQLConnector) TestConnection(ctx context.Context) (TestStatus, error) {
	var rows dsql.Rows
	if err := c.driver.Query(c.withTimeout(ctx), "SELECT 1", []any{}, &rows); err != nil {
		return StatusFailed, err
	}
	if err := rows.Close(); err != nil {
		return StatusFailed, err
	}
	return StatusSucceeded, nil
}

// RetrieveData selects the rows of node matching input.
func (c *SQLConnector) RetrieveData(ctx context.Context, node *graph.Node, policy *privacy.Policy, _ *dsr.Request, input map[string][]any) ([]graph.Row, error) {
	cfg := c.config(node)
	stmt, err := cfg.GenerateQuery(input, policy)
	if err != nil || stmt == nil {
		return nil, err
	}
	q, args, err := dsql.Bind(c.dialect.Bind, stmt.Query, stmt.Params)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "starting data retrieval", "node", node.Address.String(), "connection", c.key)
	var rows dsql.Rows
	if err := c.driver.Query(c.withTimeout(ctx), q, args, &rows); err != nil {
		return nil, err
	}
	maps, err := dsql.ScanMaps(rows)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Row, len(maps))
	for i, m := range maps {
		out[i] = m
	}
	return out, nil
}

// MaskData updates the rows of node in a single transaction. Rows yielding
// no update statement are skipped.
func (c *SQLConnector) MaskData(ctx context.Context, node *graph.Node, policy *privacy.Policy, req *dsr.Request, rows []graph.Row) (n int, rerr error) {
	cfg := c.config(node)
	type update struct {
		query string
		args  []any
	}
	var updates []update
	for _, row := range rows {
		stmt, err := cfg.GenerateUpdate(row, policy, req)
		if err != nil {
			return 0, err
		}
		if stmt == nil {
			continue
		}
		q, args, err := dsql.Bind(c.dialect.Bind, stmt.Query, stmt.Params)
		if err != nil {
			return 0, err
		}
		updates = append(updates, update{q, args})
	}
	if len(updates) == 0 {
		return 0, nil
	}
	ctx = c.withTimeout(ctx)
	tx, err := c.driver.Tx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if rerr != nil {
			if err := tx.Rollback(); err != nil {
				c.logger.WarnContext(ctx, "rollback failed", "node", node.Address.String(), "error", err)
			}
		}
	}()
	for _, u := range updates {
		var res dsql.Result
		if err := tx.Exec(ctx, u.query, u.args, &res); err != nil {
			if dsql.IsConstraintError(err) {
				return 0, dsr.NewConfigError(node.Address.String(), "masked values violate a constraint of the table: %v", err)
			}
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		n += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// DryRunQuery renders the select statement of node.
func (c *SQLConnector) DryRunQuery(node *graph.Node) (string, error) {
	return c.config(node).DryRunQuery()
}

// Close closes the pool.
func (c *SQLConnector) Close() error {
	c.logger.Debug("closing connection", "connection", c.key, "stats", c.Stats().String())
	return c.driver.Close()
}

func (c *SQLConnector) config(node *graph.Node) *query.SQLConfig {
	return query.NewSQLConfig(node, c.dialect, query.WithLogger(c.logger))
}

// withTimeout attaches the statement timeout as a session variable.
func (c *SQLConnector) withTimeout(ctx context.Context) context.Context {
	if c.timeout <= 0 {
		return ctx
	}
	ms := strconv.FormatInt(c.timeout.Milliseconds(), 10)
	switch c.dialect.Name {
	case dialect.Postgres, dialect.Redshift:
		return dsql.WithVar(ctx, "statement_timeout", ms)
	case dialect.MySQL, dialect.MariaDB:
		return dsql.WithVar(ctx, "max_execution_time", ms)
	}
	return ctx
}
