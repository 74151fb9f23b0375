// Package dao implements the persistence gateway: one narrow typed DAO per
// entity in internal/storage/model, each method taking a caller-supplied
// *sql.Tx. No DAO ever opens its own transaction — that is always the
// service façade's job (spec §4.1, §4.7).
package dao

import (
	"context"
	"database/sql"

	storagesql "github.com/user/procengine/internal/storage/sql"
)

// Gateway bundles the driver a set of DAOs rewrites placeholders for. All
// DAO constructors take one of these so query text is prepared once, at the
// query-building call site, rather than duplicated per driver.
type Gateway struct {
	Driver storagesql.Driver
}

func NewGateway(driver storagesql.Driver) *Gateway {
	return &Gateway{Driver: driver}
}

func (g *Gateway) q(query string) string {
	return storagesql.PrepareQuery(g.Driver, query)
}

// exec runs query against tx with the busy-retry wrapper engaged for the
// embedded sqlite backend; other drivers pass straight through.
func (g *Gateway) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := storagesql.ExecWithRetry(ctx, g.Driver, func() error {
		var execErr error
		res, execErr = tx.ExecContext(ctx, g.q(query), args...)
		return execErr
	})
	return res, err
}

func (g *Gateway) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	return tx.QueryRowContext(ctx, g.q(query), args...)
}

func (g *Gateway) query(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	return tx.QueryContext(ctx, g.q(query), args...)
}

// checkSingleRowAffected is the shared optimistic-lock assertion every
// rev-bumping UPDATE in this package runs after Exec, grounded on
// apf_ru_execution_dao.rs's mark_begin/deactive_execution rows_affected()
// check.
func checkSingleRowAffected(res sql.Result) (bool, error) {
	return storagesql.RowsAffectedExactlyOne(res)
}
