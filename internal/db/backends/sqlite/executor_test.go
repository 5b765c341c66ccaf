package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

func openTestExecutor(t *testing.T) *Executor {
	t.Helper()
	exec, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec
}

func TestExecutorQueryAndExec(t *testing.T) {
	ctx := context.Background()
	exec := openTestExecutor(t)

	_, err := exec.Exec(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT, extra BLOB)")
	require.NoError(t, err)

	hostile := "O'Brien'; DROP TABLE notes;--"
	affected, err := exec.Exec(ctx, "INSERT INTO notes (body, extra) VALUES (?, ?)", hostile, []byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rows, err := exec.Query(ctx, "SELECT id, body, extra FROM notes WHERE body = ?", hostile)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, hostile, rows[0]["body"])
	assert.Equal(t, "raw", rows[0]["extra"])

	rows, err = exec.Query(ctx, "SELECT id FROM notes WHERE id = ?", 42)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

func TestExecutorRejectsBadStatement(t *testing.T) {
	exec := openTestExecutor(t)

	_, err := exec.Query(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrBackendRejected), "got %v", err)

	var backendErr *interfaces.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, "sqlite.query", backendErr.Op)
}

func TestExecutorDialectAndPing(t *testing.T) {
	exec := openTestExecutor(t)
	assert.Equal(t, interfaces.DialectSQLite, exec.Dialect())
	assert.NoError(t, exec.Ping(context.Background()))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
