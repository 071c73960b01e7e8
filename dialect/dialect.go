package dialect

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Connection types understood by the engine.
const (
	Postgres  = "postgres"
	MySQL     = "mysql"
	MariaDB   = "mariadb"
	SQLite    = "sqlite"
	MSSQL     = "mssql"
	BigQuery  = "bigquery"
	Snowflake = "snowflake"
	Redshift  = "redshift"
	Mongo     = "mongodb"
	SaaS      = "saas"
	HTTPS     = "https"
)

// QuoteStyle selects how identifiers are quoted in generated SQL.
type QuoteStyle uint8

// Supported quote styles.
const (
	QuoteNone QuoteStyle = iota
	QuoteDouble
	QuoteBacktick
)

// Quote returns the identifier quoted in the given style.
func (q QuoteStyle) Quote(ident string) string {
	switch q {
	case QuoteDouble:
		return pq.QuoteIdentifier(ident)
	case QuoteBacktick:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	default:
		return ident
	}
}

// MembershipStyle selects how an IN predicate over several values is bound.
type MembershipStyle uint8

const (
	// TupleParam binds all values to one parameter: "f IN :f".
	TupleParam MembershipStyle = iota
	// ExpandedParams binds one named parameter per value:
	// "f IN (:f_in_stmt_generated_0, :f_in_stmt_generated_1)".
	// Some drivers read a single tuple parameter as a type or a quoted literal.
	ExpandedParams
)

// BindStyle is the placeholder syntax of the underlying database/sql driver.
type BindStyle uint8

// Supported placeholder syntaxes.
const (
	BindQuestion BindStyle = iota // ?
	BindDollar                    // $1
	BindAt                        // @name
	BindColon                     // :name
)

// SQL describes the formatting decisions that differ between SQL dialects.
type SQL struct {
	Name string
	// Table is the quote style of the table name.
	Table QuoteStyle
	// Columns is the quote style of column names in field lists and clauses.
	Columns QuoteStyle
	// Membership is the binding style of IN predicates.
	Membership MembershipStyle
	// WrapOperand surrounds every predicate operand with parentheses: "f = (:f)".
	WrapOperand bool
	// Bind is the driver placeholder syntax.
	Bind BindStyle
}

var sqlDialects = map[string]SQL{
	Postgres:  {Name: Postgres, Bind: BindDollar},
	MySQL:     {Name: MySQL, Bind: BindQuestion},
	MariaDB:   {Name: MariaDB, Bind: BindQuestion},
	SQLite:    {Name: SQLite, Bind: BindQuestion},
	MSSQL:     {Name: MSSQL, Membership: ExpandedParams, Bind: BindAt},
	BigQuery:  {Name: BigQuery, Table: QuoteBacktick, Membership: ExpandedParams, Bind: BindAt},
	Snowflake: {Name: Snowflake, Table: QuoteDouble, Columns: QuoteDouble, WrapOperand: true, Bind: BindQuestion},
	Redshift:  {Name: Redshift, Table: QuoteDouble, Bind: BindDollar},
}

// SQLFor returns the SQL dialect for the connection type.
func SQLFor(name string) (SQL, error) {
	d, ok := sqlDialects[name]
	if !ok {
		return SQL{}, fmt.Errorf("dialect: unsupported sql dialect %q", name)
	}
	return d, nil
}

// Generic is the baseline SQL dialect: no quoting, tuple membership.
func Generic() SQL {
	return SQL{Name: "sql", Bind: BindColon}
}

// IsSQL reports whether the connection type is served by a SQL connector.
func IsSQL(name string) bool {
	_, ok := sqlDialects[name]
	return ok
}

// ExecQuerier wraps the Exec and Query methods of a SQL connection.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. v is nil or a
	// *sql.Result receiving the driver result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows into v.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface a SQL connector runs its statements through.
type Driver interface {
	ExecQuerier
	// Tx starts a transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying pool.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query methods with Commit and Rollback.
type Tx interface {
	ExecQuerier
	driver.Tx
}
