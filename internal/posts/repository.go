package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
	"github.com/inkpost/inkpost-backend/internal/db/query"
)

var (
	ErrNotFound    = errors.New("post not found")
	ErrInvalidPost = errors.New("title and content are required")
)

// Recorder receives repository outcome counts
type Recorder interface {
	RecordPostCreated(ctx context.Context)
	RecordPostDeleted(ctx context.Context)
	RecordPostWriteFailure(ctx context.Context, op string)
	RecordBackendReadFailure(ctx context.Context, op string)
}

type Option func(*Repository)

// WithClock replaces the clock used for created_at
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Repository) {
		r.recorder = rec
	}
}

// Repository reads and writes posts through an executor.
// Reads never return backend errors; writes always do.
type Repository struct {
	exec     interfaces.Executor
	stmts    *query.Builder
	logger   *zap.SugaredLogger
	now      func() time.Time
	recorder Recorder
}

func NewRepository(exec interfaces.Executor, logger *zap.SugaredLogger, opts ...Option) *Repository {
	r := &Repository{
		exec:     exec,
		stmts:    query.NewBuilder(exec.Dialect()),
		logger:   logger,
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns every post, newest first. A backend failure yields an empty list.
func (r *Repository) List(ctx context.Context) []Post {
	rows, err := r.exec.Query(ctx, r.stmts.ListPosts())
	if err != nil {
		r.logger.Errorw("Failed to list posts", "error", err)
		r.recorder.RecordBackendReadFailure(ctx, "list")
		return []Post{}
	}

	posts := make([]Post, 0, len(rows))
	for _, row := range rows {
		p, err := fromRow(row)
		if err != nil {
			r.logger.Warnw("Skipping malformed post row", "error", err)
			continue
		}
		posts = append(posts, p)
	}
	return posts
}

// Get returns the post with id or ErrNotFound. Backend failures are logged and also reported as ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*Post, error) {
	rows, err := r.exec.Query(ctx, r.stmts.GetPost(), id)
	if err != nil {
		r.logger.Errorw("Failed to get post", "id", id, "error", err)
		r.recorder.RecordBackendReadFailure(ctx, "get")
		return nil, ErrNotFound
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	p, err := fromRow(rows[0])
	if err != nil {
		r.logger.Errorw("Malformed post row", "id", id, "error", err)
		return nil, ErrNotFound
	}
	return &p, nil
}

// Create inserts a post stamped with the application clock. The new id is not returned.
func (r *Repository) Create(ctx context.Context, np NewPost) error {
	if strings.TrimSpace(np.Title) == "" || np.Content == "" {
		return ErrInvalidPost
	}

	var filename, encoded, mimetype string
	if img := np.Image; img != nil {
		filename = img.Filename
		if filename == "" {
			filename = img.URL
		}
		encoded = img.Base64
		mimetype = img.MimeType
	}

	createdAt := r.now().UTC().Format(TimeLayout)
	_, err := r.exec.Exec(ctx, r.stmts.InsertPost(),
		np.Title,
		np.Content,
		nullable(filename),
		nullable(encoded),
		nullable(mimetype),
		createdAt,
	)
	if err != nil {
		r.logger.Errorw("Failed to create post", "error", err)
		r.recorder.RecordPostWriteFailure(ctx, "create")
		return fmt.Errorf("create post: %w", err)
	}

	r.recorder.RecordPostCreated(ctx)
	r.logger.Infow("Post created", "created_at", createdAt, "has_image", filename != "" || mimetype != "")
	return nil
}

// Delete removes the post with id. Deleting a missing id is not an error.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	n, err := r.exec.Exec(ctx, r.stmts.DeletePost(), id)
	if err != nil {
		r.logger.Errorw("Failed to delete post", "id", id, "error", err)
		r.recorder.RecordPostWriteFailure(ctx, "delete")
		return fmt.Errorf("delete post %d: %w", id, err)
	}

	r.recorder.RecordPostDeleted(ctx)
	r.logger.Infow("Post deleted", "id", id, "rows", n)
	return nil
}

// Ping checks the backend
func (r *Repository) Ping(ctx context.Context) error {
	return r.exec.Ping(ctx)
}

func fromRow(row interfaces.Row) (Post, error) {
	id, err := toInt64(row[query.ColID])
	if err != nil {
		return Post{}, fmt.Errorf("id: %w", err)
	}

	p := Post{
		ID:            id,
		Title:         toString(row[query.ColTitle]),
		Content:       strings.TrimLeftFunc(toString(row[query.ColContent]), unicode.IsSpace),
		ImageFilename: toString(row[query.ColImageFilename]),
		ImageBase64:   toString(row[query.ColImageBase64]),
		ImageMimetype: toString(row[query.ColImageMimetype]),
	}
	p.CreatedAt = parseTime(row[query.ColCreatedAt])
	return p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

type nopRecorder struct{}

func (nopRecorder) RecordPostCreated(context.Context)                {}
func (nopRecorder) RecordPostDeleted(context.Context)                {}
func (nopRecorder) RecordPostWriteFailure(context.Context, string)   {}
func (nopRecorder) RecordBackendReadFailure(context.Context, string) {}
