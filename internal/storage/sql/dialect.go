// Package sql provides the driver-aware SQL helpers the persistence gateway
// needs on top of database/sql: placeholder rewriting for drivers that don't
// speak "?", and a busy-retry wrapper for the embedded SQLite test backend.
package sql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Schema is the portable ten-table DDL the procengine binary's migrate
// subcommand applies verbatim to the configured database.
//
//go:embed schema.sql
var Schema string

// Driver identifies the wire dialect a *sql.DB was opened with. The gateway
// never branches on SQL syntax beyond placeholder style; everything else is
// standard SQL the drivers all accept.
type Driver string

const (
	DriverPostgres  Driver = "postgres"
	DriverMySQL     Driver = "mysql"
	DriverSQLite    Driver = "sqlite"
	DriverSQLServer Driver = "sqlserver"
	DriverOracle    Driver = "oracle"
)

// PreparePlaceholders rewrites a query written with "?" placeholders into the
// target driver's native style. mysql and sqlite accept "?" as-is;
// postgres wants "$1", "$2", ...; sqlserver wants "@p1", "@p2", ...;
// oracle wants ":1", ":2", ....
func PreparePlaceholders(driver Driver, query string) string {
	switch driver {
	case DriverPostgres:
		return rewritePlaceholders(query, func(n int) string { return "$" + strconv.Itoa(n) })
	case DriverSQLServer:
		return rewritePlaceholders(query, func(n int) string { return "@p" + strconv.Itoa(n) })
	case DriverOracle:
		return rewritePlaceholders(query, func(n int) string { return ":" + strconv.Itoa(n) })
	default:
		return query
	}
}

func rewritePlaceholders(query string, render func(n int) string) string {
	var b strings.Builder
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			b.WriteString(render(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// PrepareQuery rewrites placeholders for driver, and is the one call site the
// persistence gateway's DAOs route every hand-written query through before
// handing it to *sql.Tx.
func PrepareQuery(driver Driver, query string) string {
	return PreparePlaceholders(driver, query)
}

// isSQLiteBusyError reports whether err is a transient SQLITE_BUSY/locked
// condition worth retrying. The embedded test backend (modernc.org/sqlite)
// surfaces these as plain error text rather than a typed sentinel.
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// ExecWithRetry runs fn with exponential backoff while it keeps failing with
// a SQLite busy/locked error, bounded by ctx. Only the embedded sqlite
// backend needs this — the network drivers serialize through their own
// connection pool and row-lock semantics instead.
func ExecWithRetry(ctx context.Context, driver Driver, fn func() error) error {
	if driver != DriverSQLite {
		return fn()
	}

	const maxAttempts = 5
	backoff := 10 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isSQLiteBusyError(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

// RowsAffectedExactlyOne runs res.RowsAffected and reports whether it equals
// exactly 1 — the shape every optimistic-lock UPDATE in the DAO layer checks
// after a `rev = rev + 1 WHERE id = ? AND rev = ?` statement.
func RowsAffectedExactlyOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ErrNoDriver is returned by ParseDriver for an unrecognized driver name.
var ErrNoDriver = errors.New("sql: unrecognized driver name")

// ParseDriver maps a configured driver name (as read from config) onto a
// Driver constant.
func ParseDriver(name string) (Driver, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	case "mysql":
		return DriverMySQL, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "sqlserver", "mssql":
		return DriverSQLServer, nil
	case "oracle", "go-ora":
		return DriverOracle, nil
	default:
		return "", ErrNoDriver
	}
}
