// Package warehouse runs validated read-only queries against the data warehouse.
package warehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

// Row is one result record keyed by column name
type Row map[string]interface{}

// Executor runs a validated query and returns its rows
type Executor interface {
	Execute(ctx context.Context, query string) ([]Row, error)
	Ping(ctx context.Context) error
}

// StatementError means the warehouse was reached but refused or failed the statement,
// for example an unknown column in generated SQL
type StatementError struct {
	Err error
}

func (e *StatementError) Error() string { return "query failed: " + e.Err.Error() }

func (e *StatementError) Unwrap() error { return e.Err }

// classify wraps statement failures in StatementError. Timeouts and broken connections stay
// plain errors: they are outages, not bad SQL.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("query failed: %w", err)
	}
	return &StatementError{Err: err}
}

// Options tunes an SQLExecutor
type Options struct {
	// MaxRows caps the rows kept. One extra row is read and returned so callers can tell
	// the statement produced more than MaxRows; they drop it with CapRows.
	MaxRows int
	// QueryTimeout bounds a single Execute call; zero means no extra deadline
	QueryTimeout time.Duration
	// ReadOnlyTx runs each query inside a read-only transaction
	ReadOnlyTx bool
}

// SQLExecutor executes queries through database/sql. Each call checks out its own
// connection and returns it before Execute returns, on success and on failure.
type SQLExecutor struct {
	db      *sql.DB
	driver  string
	options Options
	logger  *observability.Logger
}

// NewSQLExecutor wraps an open pool
func NewSQLExecutor(db *sql.DB, driver string, options Options) *SQLExecutor {
	return &SQLExecutor{
		db:      db,
		driver:  driver,
		options: options,
		logger:  observability.NewLogger("warehouse"),
	}
}

// Ping tests the warehouse connection
func (e *SQLExecutor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close closes the underlying pool
func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

// Execute runs query and returns at most MaxRows+1 rows. []byte values are returned as strings.
func (e *SQLExecutor) Execute(ctx context.Context, query string) (result []Row, err error) {
	start := time.Now()
	defer func() {
		observability.RecordWarehouseMetrics(e.driver, time.Since(start), len(CapRows(result, e.options.MaxRows)), err)
	}()

	if e.options.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.options.QueryTimeout)
		defer cancel()
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire warehouse connection: %w", err)
	}
	defer conn.Close()

	if !e.options.ReadOnlyTx {
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return nil, classify(err)
		}
		return e.collect(rows)
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	return e.collect(rows)
}

func (e *SQLExecutor) collect(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := []Row{}
	for rows.Next() {
		if e.options.MaxRows > 0 && len(result) > e.options.MaxRows {
			break
		}

		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}
	return result, nil
}

// CapRows returns at most max rows. A non-positive max returns rows unchanged.
func CapRows(rows []Row, max int) []Row {
	if max > 0 && len(rows) > max {
		return rows[:max]
	}
	return rows
}
