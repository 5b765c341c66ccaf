package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

func TestPostgresExecutor(t *testing.T) {
	dsn := os.Getenv("INK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INK_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}

	ctx := context.Background()
	exec, err := Open(ctx, dsn, 4)
	require.NoError(t, err)
	defer exec.Close()

	// pooled connections do not share temp tables, so use a real one
	_, err = exec.Exec(ctx, "CREATE TABLE IF NOT EXISTS notes_executor_test (id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY, body TEXT)")
	require.NoError(t, err)
	defer exec.Exec(ctx, "DROP TABLE IF EXISTS notes_executor_test")

	hostile := "O'Brien'; DROP TABLE notes_executor_test;--"
	affected, err := exec.Exec(ctx, "INSERT INTO notes_executor_test (body) VALUES ($1)", hostile)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rows, err := exec.Query(ctx, "SELECT id, body FROM notes_executor_test WHERE body = $1", hostile)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, hostile, rows[0]["body"])

	_, err = exec.Query(ctx, "SELECT * FROM table_that_does_not_exist")
	assert.True(t, errors.Is(err, interfaces.ErrBackendRejected))
}

func TestOpenRejectsBadDSN(t *testing.T) {
	_, err := Open(context.Background(), "://not a dsn", 1)
	assert.Error(t, err)
}
