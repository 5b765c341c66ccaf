package query

import (
	"strconv"
	"strings"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

// PostsTable is the only table the service owns
const PostsTable = "posts"

// Posts columns. Values are never spliced into statements; only these names are.
const (
	ColID            = "id"
	ColTitle         = "title"
	ColContent       = "content"
	ColImageFilename = "image_filename"
	ColImageBase64   = "image_base64"
	ColImageMimetype = "image_mimetype"
	ColCreatedAt     = "created_at"
)

var (
	// listColumns leaves out the inline payload; the feed only needs to know an image exists
	listColumns   = []string{ColID, ColTitle, ColContent, ColImageFilename, ColImageMimetype, ColCreatedAt}
	detailColumns = []string{ColID, ColTitle, ColContent, ColImageFilename, ColImageBase64, ColImageMimetype, ColCreatedAt}
	insertColumns = []string{ColTitle, ColContent, ColImageFilename, ColImageBase64, ColImageMimetype, ColCreatedAt}
)

// Builder renders the fixed posts statements for one dialect.
// Every value position is a placeholder.
type Builder struct {
	dialect interfaces.Dialect
	table   string
}

// NewBuilder creates a statement builder for a dialect
func NewBuilder(dialect interfaces.Dialect) *Builder {
	return &Builder{dialect: dialect, table: PostsTable}
}

// Dialect returns the dialect statements are rendered for
func (b *Builder) Dialect() interfaces.Dialect {
	return b.dialect
}

// InsertColumns lists the bind order expected by InsertPost
func (b *Builder) InsertColumns() []string {
	return append([]string(nil), insertColumns...)
}

// ListPosts selects every post, newest first, ties broken by insertion order
func (b *Builder) ListPosts() string {
	return "SELECT " + strings.Join(listColumns, ", ") +
		" FROM " + b.table +
		" ORDER BY " + ColCreatedAt + " DESC, " + ColID + " DESC"
}

// GetPost selects one post by id (one bound argument)
func (b *Builder) GetPost() string {
	return "SELECT " + strings.Join(detailColumns, ", ") +
		" FROM " + b.table +
		" WHERE " + ColID + " = " + b.placeholder(1)
}

// InsertPost inserts one post (len(InsertColumns()) bound arguments)
func (b *Builder) InsertPost() string {
	return "INSERT INTO " + b.table +
		" (" + strings.Join(insertColumns, ", ") + ")" +
		" VALUES (" + b.placeholders(len(insertColumns)) + ")"
}

// DeletePost deletes one post by id (one bound argument)
func (b *Builder) DeletePost() string {
	return "DELETE FROM " + b.table + " WHERE " + ColID + " = " + b.placeholder(1)
}

// CreateTable returns the idempotent DDL used by backends that cannot run goose
func (b *Builder) CreateTable() []string {
	idColumn := ColID + " INTEGER PRIMARY KEY AUTOINCREMENT"
	if b.dialect == interfaces.DialectPostgres {
		idColumn = ColID + " BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY"
	}
	return []string{
		"CREATE TABLE IF NOT EXISTS " + b.table + " (" +
			idColumn + ", " +
			ColTitle + " TEXT NOT NULL, " +
			ColContent + " TEXT NOT NULL, " +
			ColImageFilename + " TEXT, " +
			ColImageBase64 + " TEXT, " +
			ColImageMimetype + " TEXT, " +
			ColCreatedAt + " TEXT NOT NULL)",
		"CREATE INDEX IF NOT EXISTS idx_posts_created_at ON " + b.table + " (" + ColCreatedAt + ")",
	}
}

func (b *Builder) placeholder(n int) string {
	if b.dialect == interfaces.DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (b *Builder) placeholders(count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = b.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}
