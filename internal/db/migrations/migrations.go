// Package migrations embeds the goose migrations for the database/sql backends.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Dir returns the embedded migration directory for a dialect
func Dir(d interfaces.Dialect) string {
	if d == interfaces.DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// GooseDialect maps a dialect to the goose dialect name
func GooseDialect(d interfaces.Dialect) string {
	if d == interfaces.DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Prepare points goose at the embedded files and the given dialect.
// goose keeps this as package state, so callers must not migrate concurrently.
func Prepare(d interfaces.Dialect, logger *zap.SugaredLogger) error {
	goose.SetBaseFS(FS)
	if logger != nil {
		goose.SetLogger(gooseLogger{logger})
	} else {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.SetDialect(GooseDialect(d)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// Up applies every pending migration
func Up(ctx context.Context, db *sql.DB, d interfaces.Dialect, logger *zap.SugaredLogger) error {
	if err := Prepare(d, logger); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, Dir(d)); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type gooseLogger struct {
	*zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}
