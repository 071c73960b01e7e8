// Package sql wraps database/sql for the SQL connectors.
//
// Open registers a pool for a dialect using the bundled drivers
// (lib/pq for postgres and redshift, go-sql-driver/mysql for mysql and
// mariadb, modernc.org/sqlite for sqlite). Other dialects are reached with
// OpenDB over a pool opened by the caller.
//
// Statements are generated with ":name" placeholders and bound to the
// driver syntax with Bind:
//
//	stmt, args, err := sql.Bind(dialect.BindDollar,
//	    "SELECT id, email FROM customer WHERE email IN :email",
//	    map[string]any{"email": []any{"a@example.com", "b@example.com"}})
//	// SELECT id, email FROM customer WHERE email IN ($1, $2)
//
//	rows := &sql.Rows{}
//	if err := drv.Query(ctx, stmt, args, rows); err != nil {
//	    return err
//	}
//	maps, err := sql.ScanMaps(rows)
//
// # Statistics
//
// NewStatsDriver counts statements per pool and logs statements slower than
// a threshold through log/slog. Arguments are never logged.
//
// # Errors
//
// IsTransient classifies driver errors (pq, mysql, sqlite and network) that
// are worth retrying.
package sql
