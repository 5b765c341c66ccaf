package db

import (
	"context"
	"time"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

// timeoutExecutor bounds every statement so no backend call blocks indefinitely
type timeoutExecutor struct {
	interfaces.Executor
	timeout time.Duration
}

// WithTimeout wraps exec so Query, Exec and Ping run under timeout
func WithTimeout(exec interfaces.Executor, timeout time.Duration) interfaces.Executor {
	if timeout <= 0 {
		return exec
	}
	return &timeoutExecutor{Executor: exec, timeout: timeout}
}

func (e *timeoutExecutor) Query(ctx context.Context, stmt string, args ...any) ([]interfaces.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.Executor.Query(ctx, stmt, args...)
}

func (e *timeoutExecutor) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.Executor.Exec(ctx, stmt, args...)
}

func (e *timeoutExecutor) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.Executor.Ping(ctx)
}
