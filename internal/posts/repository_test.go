package posts

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/assets"
	"github.com/inkpost/inkpost-backend/internal/db"
	"github.com/inkpost/inkpost-backend/internal/db/backends/d1"
	"github.com/inkpost/inkpost-backend/internal/db/backends/d1/d1test"
	"github.com/inkpost/inkpost-backend/internal/db/backends/sqlite"
	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

// stepClock advances one second per call
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type countingRecorder struct {
	created, deleted int
	writeFailures    map[string]int
	readFailures     map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{writeFailures: map[string]int{}, readFailures: map[string]int{}}
}

func (c *countingRecorder) RecordPostCreated(context.Context) { c.created++ }
func (c *countingRecorder) RecordPostDeleted(context.Context) { c.deleted++ }
func (c *countingRecorder) RecordPostWriteFailure(_ context.Context, op string) {
	c.writeFailures[op]++
}
func (c *countingRecorder) RecordBackendReadFailure(_ context.Context, op string) {
	c.readFailures[op]++
}

func openSQLite(t *testing.T) interfaces.Executor {
	t.Helper()
	ctx := context.Background()
	exec, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "posts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	require.NoError(t, db.Migrate(ctx, exec, zap.NewNop().Sugar()))
	return exec
}

// backends returns one executor per backend that runs without external services
func backends() map[string]func(t *testing.T) (interfaces.Executor, *d1test.Server) {
	return map[string]func(t *testing.T) (interfaces.Executor, *d1test.Server){
		"sqlite": func(t *testing.T) (interfaces.Executor, *d1test.Server) {
			return openSQLite(t), nil
		},
		"d1": func(t *testing.T) (interfaces.Executor, *d1test.Server) {
			local := openSQLite(t)
			srv := d1test.NewServer(t, local)
			exec, err := d1.New(d1.Config{
				BaseURL:    srv.URL,
				AccountID:  "acct",
				DatabaseID: "db",
				APIToken:   d1test.Token,
				Timeout:    2 * time.Second,
			}, zap.NewNop().Sugar())
			require.NoError(t, err)
			return exec, srv
		},
	}
}

func TestRepository(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("create then list strips leading whitespace only", func(t *testing.T) {
				exec, _ := open(t)
				repo := NewRepository(exec, zap.NewNop().Sugar(), WithClock(newStepClock().Now))
				ctx := context.Background()

				require.NoError(t, repo.Create(ctx, NewPost{Title: "Hello", Content: " \n\t body  \n keeps trailing  "}))

				list := repo.List(ctx)
				require.Len(t, list, 1)
				assert.Equal(t, "Hello", list[0].Title)
				assert.Equal(t, "body  \n keeps trailing  ", list[0].Content)
				assert.Positive(t, list[0].ID)
			})

			t.Run("content is stored raw", func(t *testing.T) {
				exec, _ := open(t)
				repo := NewRepository(exec, zap.NewNop().Sugar())
				ctx := context.Background()

				require.NoError(t, repo.Create(ctx, NewPost{Title: "raw", Content: "   indented"}))

				rows, err := exec.Query(ctx, "SELECT content FROM posts")
				require.NoError(t, err)
				require.Len(t, rows, 1)
				assert.Equal(t, "   indented", rows[0]["content"])
			})

			t.Run("get round trips", func(t *testing.T) {
				exec, _ := open(t)
				repo := NewRepository(exec, zap.NewNop().Sugar(), WithClock(newStepClock().Now))
				ctx := context.Background()

				require.NoError(t, repo.Create(ctx, NewPost{Title: "Round", Content: "trip"}))
				id := repo.List(ctx)[0].ID

				got, err := repo.Get(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, id, got.ID)
				assert.Equal(t, "Round", got.Title)
				assert.Equal(t, "trip", got.Content)
				assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), got.CreatedAt)
				assert.False(t, got.HasImage())

				again, err := repo.Get(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, got, again)
			})

			t.Run("sql metacharacters are stored verbatim", func(t *testing.T) {
				exec, _ := open(t)
				repo := NewRepository(exec, zap.NewNop().Sugar(), WithClock(newStepClock().Now))
				ctx := context.Background()

				require.NoError(t, repo.Create(ctx, NewPost{Title: "before", Content: "untouched"}))
				hostile := "O'Brien'; DROP TABLE posts;--"
				require.NoError(t, repo.Create(ctx, NewPost{Title: hostile, Content: hostile + ` "x" \ %_`}))

				list := repo.List(ctx)
				require.Len(t, list, 2)
				assert.Equal(t, hostile, list[0].Title)
				assert.Equal(t, hostile+` "x" \ %_`, list[0].Content)
				assert.Equal(t, "before", list[1].Title)
				assert.Equal(t, "untouched", list[1].Content)
			})

			t.Run("newest first", func(t *testing.T) {
				exec, _ := open(t)
				repo := NewRepository(exec, zap.NewNop().Sugar(), WithClock(newStepClock().Now))
				ctx := context.Background()

				for _, title := range []string{"t1", "t2", "t3"} {
					require.NoError(t, repo.Create(ctx, NewPost{Title: title, Content: "c"}))
				}

				var titles []string
				for _, p := range repo.List(ctx) {
					titles = append(titles, p.Title)
				}
				assert.Equal(t, []string{"t3", "t2", "t1"}, titles)
			})

			t.Run("equal timestamps fall back to insertion order", func(t *testing.T) {
				exec, _ := open(t)
				fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
				repo := NewRepository(exec, zap.NewNop().Sugar(), WithClock(func() time.Time { return fixed }))
				ctx := context.Background()

				for _, title := range []string{"a", "b", "c"} {
					require.NoError(t, repo.Create(ctx, NewPost{Title: title, Content: "c"}))
				}

				var titles []string
				for _, p := range repo.List(ctx) {
					titles = append(titles, p.Title)
				}
				assert.Equal(t, []string{"c", "b", "a"}, titles)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				exec, _ := open(t)
				rec := newCountingRecorder()
				repo := NewRepository(exec, zap.NewNop().Sugar(), WithRecorder(rec))
				ctx := context.Background()

				require.NoError(t, repo.Create(ctx, NewPost{Title: "gone", Content: "soon"}))
				id := repo.List(ctx)[0].ID

				require.NoError(t, repo.Delete(ctx, id))
				_, err := repo.Get(ctx, id)
				assert.ErrorIs(t, err, ErrNotFound)
				require.NoError(t, repo.Delete(ctx, id))
				require.NoError(t, repo.Delete(ctx, 987654))
				assert.Empty(t, repo.List(ctx))
				assert.Equal(t, 1, rec.created)
				assert.Equal(t, 3, rec.deleted)
			})

			t.Run("ids are not reused", func(t *testing.T) {
				exec, _ := open(t)
				repo := NewRepository(exec, zap.NewNop().Sugar(), WithClock(newStepClock().Now))
				ctx := context.Background()

				require.NoError(t, repo.Create(ctx, NewPost{Title: "first", Content: "c"}))
				first := repo.List(ctx)[0].ID
				require.NoError(t, repo.Delete(ctx, first))
				require.NoError(t, repo.Create(ctx, NewPost{Title: "second", Content: "c"}))
				second := repo.List(ctx)[0].ID
				assert.Greater(t, second, first)
			})

			t.Run("image references", func(t *testing.T) {
				exec, _ := open(t)
				repo := NewRepository(exec, zap.NewNop().Sugar(), WithClock(newStepClock().Now))
				ctx := context.Background()

				require.NoError(t, repo.Create(ctx, NewPost{Title: "local", Content: "c", Image: &assets.Reference{Filename: "0123456789abcdef0123456789abcdef.png"}}))
				require.NoError(t, repo.Create(ctx, NewPost{Title: "bucket", Content: "c", Image: &assets.Reference{URL: "https://cdn.example.com/x.png"}}))
				require.NoError(t, repo.Create(ctx, NewPost{Title: "inline", Content: "c", Image: &assets.Reference{Base64: "R0lGODlh", MimeType: "image/gif"}}))

				list := repo.List(ctx)
				require.Len(t, list, 3)

				inline := list[0]
				assert.Empty(t, inline.ImageBase64, "list leaves out inline payloads")
				assert.Equal(t, "/media/"+strconv.FormatInt(inline.ID, 10), inline.ImageURL())
				full, err := repo.Get(ctx, inline.ID)
				require.NoError(t, err)
				assert.Equal(t, "R0lGODlh", full.ImageBase64)
				assert.Equal(t, "image/gif", full.ImageMimetype)

				assert.Equal(t, "https://cdn.example.com/x.png", list[1].ImageURL())
				assert.Equal(t, "/uploads/0123456789abcdef0123456789abcdef.png", list[2].ImageURL())
			})

			t.Run("invalid posts are refused", func(t *testing.T) {
				exec, _ := open(t)
				repo := NewRepository(exec, zap.NewNop().Sugar())
				ctx := context.Background()

				assert.ErrorIs(t, repo.Create(ctx, NewPost{Title: "  ", Content: "c"}), ErrInvalidPost)
				assert.ErrorIs(t, repo.Create(ctx, NewPost{Title: "t", Content: ""}), ErrInvalidPost)
				assert.Empty(t, repo.List(ctx))
			})
		})
	}
}

func TestRepositoryBackendDown(t *testing.T) {
	exec, srv := backends()["d1"](t)
	rec := newCountingRecorder()
	repo := NewRepository(exec, zap.NewNop().Sugar(), WithRecorder(rec))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, NewPost{Title: "kept", Content: "c"}))
	id := repo.List(ctx)[0].ID

	srv.Down.Store(true)

	list := repo.List(ctx)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err := repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.Create(ctx, NewPost{Title: "lost", Content: "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	err = repo.Delete(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	assert.Equal(t, 1, rec.readFailures["list"])
	assert.Equal(t, 1, rec.readFailures["get"])
	assert.Equal(t, 1, rec.writeFailures["create"])
	assert.Equal(t, 1, rec.writeFailures["delete"])

	srv.Down.Store(false)
	require.Len(t, repo.List(ctx), 1)
}

func TestSeed(t *testing.T) {
	repo := NewRepository(openSQLite(t), zap.NewNop().Sugar(), WithClock(newStepClock().Now))
	ctx := context.Background()

	n, err := Seed(ctx, repo, SampleFixtures)
	require.NoError(t, err)
	assert.Equal(t, len(SampleFixtures), n)

	list := repo.List(ctx)
	require.Len(t, list, len(SampleFixtures))
	assert.Equal(t, SampleFixtures[len(SampleFixtures)-1].Title, list[0].Title)
}

func TestFromRowConversions(t *testing.T) {
	p, err := fromRow(interfaces.Row{
		"id":         "42",
		"title":      []byte("bytes"),
		"content":    "  x",
		"created_at": "2024-03-01T12:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "bytes", p.Title)
	assert.Equal(t, "x", p.Content)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), p.CreatedAt)

	_, err = fromRow(interfaces.Row{"id": true})
	assert.Error(t, err)
}
