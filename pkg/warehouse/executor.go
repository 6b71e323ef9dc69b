// Package warehouse executes validated read-only queries against the data
// warehouse over its own connection pool, separate from the metadata store.
package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ResultSet is one query's output, already capped at the requested row limit.
type ResultSet struct {
	Columns []string
	Rows    [][]any
	// Truncated reports whether the cap cut off additional rows.
	Truncated bool
}

// Executor runs queries against the warehouse. Validation happens before this
// layer; the executor still enforces the row cap and statement timeout as a
// second line of defense.
type Executor interface {
	// Query runs sql and returns at most maxRows rows.
	Query(ctx context.Context, sql string, maxRows int) (*ResultSet, error)

	// DescribeColumns returns the live column names of a target, used by
	// ingestion to warn about narrative columns that do not exist.
	DescribeColumns(ctx context.Context, target string) ([]string, error)
}

// PgExecutor implements Executor against a Postgres-compatible warehouse.
type PgExecutor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// NewPgExecutor creates an executor with the given per-query timeout.
func NewPgExecutor(pool *pgxpool.Pool, timeout time.Duration, logger *zap.Logger) *PgExecutor {
	return &PgExecutor{
		pool:    pool,
		timeout: timeout,
		logger:  logger.Named("warehouse"),
	}
}

// Query implements Executor.
func (e *PgExecutor) Query(ctx context.Context, sql string, maxRows int) (*ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("warehouse query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &ResultSet{Columns: columns}
	for rows.Next() {
		if len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse query failed: %w", err)
	}

	e.logger.Debug("Warehouse query executed",
		zap.Int("rows", len(result.Rows)),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// DescribeColumns implements Executor. Target may be bare or qualified as
// schema.table or db.schema.table; only the trailing two parts are used.
func (e *PgExecutor) DescribeColumns(ctx context.Context, target string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	table := target
	schema := ""
	if parts := strings.Split(target, "."); len(parts) > 1 {
		table = parts[len(parts)-1]
		schema = parts[len(parts)-2]
	}

	query := `SELECT column_name FROM information_schema.columns WHERE lower(table_name) = lower($1)`
	args := []any{table}
	if schema != "" {
		query += ` AND lower(table_schema) = lower($2)`
		args = append(args, schema)
	}
	query += ` ORDER BY ordinal_position`

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", target, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to describe %s: %w", target, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", target, err)
	}

	return columns, nil
}

var _ Executor = (*PgExecutor)(nil)
