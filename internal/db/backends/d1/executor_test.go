package d1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpost/inkpost-backend/internal/db/backends/d1/d1test"
	"github.com/inkpost/inkpost-backend/internal/db/backends/sqlite"
	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

func newTestExecutor(t *testing.T, baseURL string) *Executor {
	t.Helper()
	exec, err := New(Config{
		BaseURL:    baseURL,
		AccountID:  "acct",
		DatabaseID: "db",
		APIToken:   d1test.Token,
	}, nil)
	require.NoError(t, err)
	return exec
}

func cannedServer(t *testing.T, status int, body string, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQuerySendsStatementAndParams(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := cannedServer(t, http.StatusOK, `{"success":true,"errors":[],"result":[{"results":[{"id":7,"title":"a"}],"success":true}]}`,
		func(r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			json.NewDecoder(r.Body).Decode(&gotBody)
		})

	exec := newTestExecutor(t, srv.URL)
	rows, err := exec.Query(context.Background(), "SELECT id, title FROM posts WHERE id = ?", int64(7))
	require.NoError(t, err)

	assert.Equal(t, "/accounts/acct/d1/database/db/query", gotPath)
	assert.Equal(t, "Bearer "+d1test.Token, gotAuth)
	assert.Equal(t, "SELECT id, title FROM posts WHERE id = ?", gotBody["sql"])
	assert.Equal(t, []any{float64(7)}, gotBody["params"])

	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0]["id"])
	assert.Equal(t, "a", rows[0]["title"])
}

func TestQueryFlattensResultBlocks(t *testing.T) {
	srv := cannedServer(t, http.StatusOK, `{"success":true,"result":[
		{"results":[{"n":1},{"n":2}]},
		{"results":[{"n":3}]},
		{"results":[]}
	]}`, nil)

	rows, err := newTestExecutor(t, srv.URL).Query(context.Background(), "SELECT n FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, int64(i+1), row["n"])
	}
}

func TestQuerySuccessFalseIsRejected(t *testing.T) {
	srv := cannedServer(t, http.StatusBadRequest,
		`{"success":false,"errors":[{"code":7500,"message":"no such table: posts"}],"result":[]}`, nil)

	_, err := newTestExecutor(t, srv.URL).Query(context.Background(), "SELECT * FROM posts")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrBackendRejected))

	var backendErr *interfaces.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Contains(t, backendErr.Detail, "no such table: posts")
}

func TestQuerySuccessFalseWithOKStatusIsRejected(t *testing.T) {
	srv := cannedServer(t, http.StatusOK, `{"success":false,"errors":[{"code":1,"message":"boom"}]}`, nil)

	_, err := newTestExecutor(t, srv.URL).Query(context.Background(), "SELECT 1")
	assert.True(t, errors.Is(err, interfaces.ErrBackendRejected))
}

func TestQueryServerErrorIsUnavailable(t *testing.T) {
	srv := cannedServer(t, http.StatusBadGateway, `<html>bad gateway</html>`, nil)

	_, err := newTestExecutor(t, srv.URL).Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrBackendUnavailable))
}

func TestQueryTransportFailureIsUnavailable(t *testing.T) {
	srv := cannedServer(t, http.StatusOK, `{}`, nil)
	url := srv.URL
	srv.Close()

	_, err := newTestExecutor(t, url).Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrBackendUnavailable))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{AccountID: "a", DatabaseID: "d"}, nil)
	assert.Error(t, err)
}

func TestExecutorAgainstFakeD1(t *testing.T) {
	ctx := context.Background()
	local, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "d1.db"))
	require.NoError(t, err)
	defer local.Close()

	srv := d1test.NewServer(t, local)
	exec := newTestExecutor(t, srv.URL)

	require.NoError(t, exec.Bootstrap(ctx))
	require.NoError(t, exec.Ping(ctx))

	changes, err := exec.Exec(ctx,
		"INSERT INTO posts (title, content, created_at) VALUES (?, ?, ?)",
		"O'Brien'; DROP TABLE posts;--", "body", "2024-01-01T00:00:00.000000000Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	rows, err := exec.Query(ctx, "SELECT id, title FROM posts WHERE id = ?", int64(1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "O'Brien'; DROP TABLE posts;--", rows[0]["title"])

	srv.Down.Store(true)
	_, err = exec.Query(ctx, "SELECT id FROM posts")
	assert.True(t, errors.Is(err, interfaces.ErrBackendUnavailable))
}
