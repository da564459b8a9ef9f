package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

type ctxKey string

const dbConnKey ctxKey = "dbconn"

// PinOwner acquires a dedicated connection with app.current_user_id set, so
// row-level security policies scope every statement of the request to owner.
// release resets the setting and returns the connection to the pool.
func PinOwner(ctx context.Context, db *sql.DB, owner uuid.UUID) (context.Context, func(), error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return ctx, func() {}, err
	}
	if _, err := conn.ExecContext(ctx, "SELECT set_config('app.current_user_id', $1, false)", owner.String()); err != nil {
		conn.Close()
		return ctx, func() {}, err
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT set_config('app.current_user_id', '', false)")
		conn.Close()
	}
	return context.WithValue(ctx, dbConnKey, conn), release, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dbFrom prefers the connection pinned by PinOwner.
func dbFrom(ctx context.Context, db *sql.DB) querier {
	if c, ok := ctx.Value(dbConnKey).(*sql.Conn); ok {
		return c
	}
	return db
}
