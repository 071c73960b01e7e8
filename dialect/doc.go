// Package dialect describes the backends a privacy request can reach.
//
// Each connection configuration names a connection type. SQL types map to a
// small SQL descriptor holding the formatting decisions that differ between
// databases:
//
//	Dialect      Table quoting   Column quoting   IN predicate
//	postgres     none            none             tuple parameter
//	mssql        none            none             one parameter per value
//	bigquery     `backtick`      none             one parameter per value
//	snowflake    "double"        "double"         (parenthesized parameter)
//	redshift     "double"        none             tuple parameter
//
// The query package renders statements from these descriptors; the sql
// sub-package binds the rendered statements to database/sql drivers.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver wrapper, placeholder binding, statistics
//     and transient error classification
package dialect
