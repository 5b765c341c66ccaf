package interfaces

import "context"

// Executor sends SQL statements to a persistence backend
type Executor interface {
	// Query runs a statement with bound arguments and returns every result row
	Query(ctx context.Context, stmt string, args ...any) ([]Row, error)

	// Exec runs a statement that returns no rows and reports affected rows
	Exec(ctx context.Context, stmt string, args ...any) (int64, error)

	// Dialect reports the placeholder and DDL flavour of the backend
	Dialect() Dialect

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases connections held by the executor
	Close() error
}
