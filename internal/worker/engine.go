// Package worker implements the data-plane node: an embedded DuckDB engine,
// the task executor mutating catalog, manifests and shard files, the HTTP
// task endpoint, and the registration/heartbeat client.
package worker

import (
	"context"
	"database/sql"
	"fmt"

	duckdb "github.com/duckdb/duckdb-go/v2"
)

// Engine wraps an in-memory DuckDB instance. All table data lives in parquet
// files on disk; the engine only provides SQL execution over them.
type Engine struct {
	db *sql.DB
}

// NewEngine opens an in-memory DuckDB. threads > 0 caps the engine's
// parallelism; zero keeps DuckDB's default.
func NewEngine(threads int) (*Engine, error) {
	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	db := sql.OpenDB(connector)

	if threads > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET threads = %d", threads)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting duckdb threads: %w", err)
		}
	}
	return &Engine{db: db}, nil
}

// Exec runs one statement, discarding any result rows.
func (e *Engine) Exec(ctx context.Context, query string) error {
	if _, err := e.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("duckdb exec: %w", err)
	}
	return nil
}

// Count runs a query expected to yield a single integer, such as count(*).
func (e *Engine) Count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := e.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb count: %w", err)
	}
	return n, nil
}

// Columns returns the column names a query would produce, in order.
func (e *Engine) Columns(ctx context.Context, query string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		fmt.Sprintf("SELECT column_name FROM (DESCRIBE %s)", query))
	if err != nil {
		return nil, fmt.Errorf("duckdb describe: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("duckdb describe scan: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Close releases the engine.
func (e *Engine) Close() error {
	return e.db.Close()
}
