package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// errorCoder is an interface for database errors that provide error codes.
type errorCoder interface {
	Code() string
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by pgx and some MySQL drivers.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes and classes worth retrying.
const (
	pgClassConnection     = "08" // connection_exception
	pgClassResources      = "53" // insufficient_resources
	pgAdminShutdown       = "57P01"
	pgCrashShutdown       = "57P02"
	pgCannotConnectNow    = "57P03"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
	pgQueryCanceledByUser = "57014"
)

// MySQL error numbers worth retrying.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlTooManyConns    = 1040
	mysqlServerGone      = 2006
	mysqlServerLost      = 2013
)

// IsTransient reports whether a statement failed for a reason that may not
// recur on retry: a dropped or refused connection, a serialization failure
// or deadlock, or the server shedding load. Context cancellation is never
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isTransientState(string(pqErr.Code))
	}
	if e, ok := asError[sqlStateError](err); ok {
		return isTransientState(e.SQLState())
	}
	if e, ok := asError[errorCoder](err); ok && isTransientState(e.Code()) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlTooManyConns, mysqlServerGone, mysqlServerLost:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Fallback to string matching for drivers that don't expose codes.
	return containsAny(err.Error(),
		"connection reset by peer",
		"broken pipe",
		"bad connection",
		"database is locked", // SQLite
		"server closed the connection unexpectedly",
	)
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlColumnNotNull          = 1048
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451
	mysqlForeignKeyChild        = 1452
	mysqlDataTooLong            = 1406
	mysqlCheckConstraintViolate = 3819
)

// IsConstraintError reports whether a statement was rejected by a
// constraint of the table: a NOT NULL, unique, foreign-key or check
// constraint, or a value too long for its column. Retrying such a statement
// fails again.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isConstraintState(string(pqErr.Code))
	}
	if e, ok := asError[sqlStateError](err); ok && isConstraintState(e.SQLState()) {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && isConstraintState(e.Code()) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlColumnNotNull, mysqlDuplicateEntry, mysqlForeignKeyParent, mysqlForeignKeyChild,
			mysqlDataTooLong, mysqlCheckConstraintViolate:
			return true
		}
		return false
	}
	return containsAny(err.Error(),
		"NOT NULL constraint failed", // SQLite
		"UNIQUE constraint failed",
		"FOREIGN KEY constraint failed",
		"CHECK constraint failed",
		"violates not-null constraint", // Postgres (string fallback)
		"violates unique constraint",
		"violates foreign key constraint",
		"violates check constraint",
	)
}

func isConstraintState(code string) bool {
	switch code {
	case pgNotNullViolation, pgForeignKeyViolation, pgUniqueViolation, pgCheckViolation:
		return true
	}
	// Class 22 data exceptions, e.g. 22001 string_data_right_truncation.
	return code == "22001"
}

func isTransientState(code string) bool {
	switch {
	case strings.HasPrefix(code, pgClassConnection), strings.HasPrefix(code, pgClassResources):
		return true
	}
	switch code {
	case pgAdminShutdown, pgCrashShutdown, pgCannotConnectNow, pgSerializationFail, pgDeadlockDetected, pgQueryCanceledByUser:
		return true
	}
	return false
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
