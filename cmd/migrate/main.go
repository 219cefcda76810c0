package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/google/subcommands"

	"tradedesk/internal/config"
	"tradedesk/internal/database"
	"tradedesk/internal/logger"
)

func main() {
	logger.Init(os.Getenv("ENV"))

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&upCmd{}, "")
	subcommands.Register(&downCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	flag.Parse()
	status := subcommands.Execute(context.Background())
	logger.Sync()
	os.Exit(int(status))
}

// withMigrator opens a migrate instance for the configured database and
// closes it after fn returns.
func withMigrator(fn func(m *migrate.Migrate) error) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Errorf("failed to load config: %v", err)
		return subcommands.ExitFailure
	}

	m, err := database.NewMigrator(database.NewConfig(cfg))
	if err != nil {
		logger.Get().Error(err)
		return subcommands.ExitFailure
	}
	defer database.CloseMigrator(m)

	if err := fn(m); err != nil {
		logger.Get().Error(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// --- up ---

type upCmd struct{}

func (*upCmd) Name() string             { return "up" }
func (*upCmd) Synopsis() string         { return "apply all pending migrations" }
func (*upCmd) Usage() string            { return "up\n" }
func (*upCmd) SetFlags(_ *flag.FlagSet) {}

func (*upCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withMigrator(func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Get().Info("Migrations applied successfully")
		return nil
	})
}

// --- down ---

type downCmd struct{}

func (*downCmd) Name() string             { return "down" }
func (*downCmd) Synopsis() string         { return "roll back the last N migrations (default 1)" }
func (*downCmd) Usage() string            { return "down [N]\n" }
func (*downCmd) SetFlags(_ *flag.FlagSet) {}

func (*downCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	steps := 1
	if f.NArg() > 0 {
		n, err := strconv.Atoi(f.Arg(0))
		if err != nil || n < 1 {
			fmt.Fprintf(os.Stderr, "invalid step count %q\n", f.Arg(0))
			return subcommands.ExitUsageError
		}
		steps = n
	}

	return withMigrator(func(m *migrate.Migrate) error {
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Get().Infof("Rolled back %d migration(s)", steps)
		return nil
	})
}

// --- version ---

type versionCmd struct{}

func (*versionCmd) Name() string             { return "version" }
func (*versionCmd) Synopsis() string         { return "print the current schema version" }
func (*versionCmd) Usage() string            { return "version\n" }
func (*versionCmd) SetFlags(_ *flag.FlagSet) {}

func (*versionCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withMigrator(func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Get().Info("No migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Get().Infof("Version: %d, Dirty: %v", version, dirty)
		return nil
	})
}
