package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/config"
	"github.com/inkpost/inkpost-backend/internal/db/backends/d1/d1test"
	"github.com/inkpost/inkpost-backend/internal/db/backends/sqlite"
	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
	"github.com/inkpost/inkpost-backend/internal/db/query"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop().Sugar()
	cfg := config.DatabaseConfig{
		Backend:    config.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "posts.db"),
		Timeout:    time.Second,
	}

	exec, err := Open(ctx, cfg, logger)
	require.NoError(t, err)

	stmts := query.NewBuilder(exec.Dialect())
	rows, err := exec.Query(ctx, stmts.ListPosts())
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, exec.Close())

	// reopening the same file must not fail on already-applied migrations
	exec, err = Open(ctx, cfg, logger)
	require.NoError(t, err)
	defer exec.Close()
	assert.NoError(t, exec.Ping(ctx))
}

func TestOpenD1Bootstraps(t *testing.T) {
	ctx := context.Background()
	local, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	defer local.Close()
	srv := d1test.NewServer(t, local)

	exec, err := Open(ctx, config.DatabaseConfig{
		Backend:      config.BackendD1,
		D1BaseURL:    srv.URL,
		D1AccountID:  "acct",
		D1DatabaseID: "db",
		D1APIToken:   d1test.Token,
		Timeout:      time.Second,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer exec.Close()

	rows, err := local.Query(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", query.PostsTable)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Backend: "mysql"}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

type blockingExecutor struct {
	interfaces.Executor
}

func (blockingExecutor) Query(ctx context.Context, stmt string, args ...any) ([]interfaces.Row, error) {
	<-ctx.Done()
	return nil, interfaces.Unavailable("blocking.query", ctx.Err())
}

func TestWithTimeoutBoundsStatements(t *testing.T) {
	exec := WithTimeout(blockingExecutor{}, 20*time.Millisecond)

	start := time.Now()
	_, err := exec.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrBackendUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithTimeoutZeroIsPassthrough(t *testing.T) {
	inner := blockingExecutor{}
	assert.Equal(t, interfaces.Executor(inner), WithTimeout(inner, 0))
}
