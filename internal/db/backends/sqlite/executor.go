package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

// Executor runs statements against an embedded sqlite file
type Executor struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database file at path
func Open(ctx context.Context, path string) (*Executor, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single writer connection avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &Executor{db: db, path: path}, nil
}

// DB exposes the underlying handle for migrations
func (e *Executor) DB() *sql.DB {
	return e.db
}

func (e *Executor) Dialect() interfaces.Dialect {
	return interfaces.DialectSQLite
}

func (e *Executor) Query(ctx context.Context, stmt string, args ...any) ([]interfaces.Row, error) {
	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify("sqlite.query", err)
	}
	defer rows.Close()

	result, err := ScanRows(rows)
	if err != nil {
		return nil, classify("sqlite.query", err)
	}
	return result, nil
}

func (e *Executor) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	res, err := e.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, classify("sqlite.exec", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, classify("sqlite.exec", err)
	}
	return affected, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return classify("sqlite.ping", err)
	}
	return nil
}

func (e *Executor) Close() error {
	return e.db.Close()
}

// ScanRows reads a result set into column-keyed rows
func ScanRows(rows *sql.Rows) ([]interfaces.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []interfaces.Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(interfaces.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// classify maps engine errors to Rejected and everything else to Unavailable
func classify(op string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return interfaces.Rejected(op, fmt.Sprintf("sqlite code %d", sqliteErr.Code()), err)
	}
	return interfaces.Unavailable(op, err)
}
