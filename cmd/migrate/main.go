package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/config"
	"github.com/inkpost/inkpost-backend/internal/db"
	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
	"github.com/inkpost/inkpost-backend/internal/db/migrations"
	"github.com/inkpost/inkpost-backend/internal/log"
	"github.com/inkpost/inkpost-backend/internal/posts"
)

const usage = `Usage: migrate [-timeout 1m] COMMAND

Commands:
  up      apply pending migrations
  down    roll back the last migration
  status  list applied and pending migrations
  seed    migrate, then insert sample posts`

var (
	flags   = flag.NewFlagSet("migrate", flag.ExitOnError)
	timeout = flags.Duration("timeout", time.Minute, "overall deadline for the command")
)

func main() {
	flags.Parse(os.Args[1:])
	args := flags.Args()

	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewSugar(log.Options{Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	exec, err := db.NewExecutor(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}
	defer exec.Close()

	if err := run(ctx, args[0], exec, logger); err != nil {
		logger.Errorw("Migrate command failed", "command", args[0], "error", err)
		exec.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, exec interfaces.Executor, logger *zap.SugaredLogger) error {
	switch command {
	case "up":
		return db.Migrate(ctx, exec, logger)
	case "down":
		return withGoose(exec, logger, func(sqlDB *sql.DB, dir string) error {
			return goose.DownContext(ctx, sqlDB, dir)
		})
	case "status":
		return withGoose(exec, logger, func(sqlDB *sql.DB, dir string) error {
			return goose.StatusContext(ctx, sqlDB, dir)
		})
	case "seed":
		if err := db.Migrate(ctx, exec, logger); err != nil {
			return err
		}
		created, err := posts.Seed(ctx, posts.NewRepository(exec, logger), posts.SampleFixtures)
		if err != nil {
			return err
		}
		logger.Infow("Seeded sample posts", "count", created)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
}

// withGoose runs fn against the embedded migrations. Backends without a
// database/sql handle bootstrap their schema and have no goose history.
func withGoose(exec interfaces.Executor, logger *zap.SugaredLogger, fn func(*sql.DB, string) error) error {
	backed, ok := exec.(interface{ DB() *sql.DB })
	if !ok {
		return fmt.Errorf("executor %T has no migration history", exec)
	}
	if err := migrations.Prepare(exec.Dialect(), logger); err != nil {
		return err
	}
	return fn(backed.DB(), migrations.Dir(exec.Dialect()))
}
