package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

type migrateArgs struct {
	action     string
	positional []string
	configPath string
	dbType     string
	dbURL      string
}

// parseMigrateArgs takes the action first and its numeric argument, which
// may be negative, before any flags.
func parseMigrateArgs(args []string) (*migrateArgs, error) {
	if len(args) < 1 {
		return nil, errors.New("usage: dataflow migrate <up|down|steps|force|version|status|info> [options]")
	}
	out := &migrateArgs{action: args[0]}
	rest := args[1:]
	if (out.action == "steps" || out.action == "force") && len(rest) > 0 && !strings.HasPrefix(rest[0], "--") {
		out.positional, rest = rest[:1], rest[1:]
	}

	fs := flag.NewFlagSet("migrate "+out.action, flag.ContinueOnError)
	fs.StringVar(&out.configPath, "config", "", "Path to config file")
	fs.StringVar(&out.dbType, "db-type", "", "Database type: postgres, mysql, sqlite")
	fs.StringVar(&out.dbURL, "db-url", "", "Database connection URL")
	if err := fs.Parse(rest); err != nil {
		return nil, err
	}
	out.positional = append(out.positional, fs.Args()...)
	return out, nil
}

func runMigrate(ctx context.Context, args []string, stdout io.Writer) error {
	parsed, err := parseMigrateArgs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(parsed.configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	var migrator *migration.DefaultMigrator
	if parsed.dbType != "" || parsed.dbURL != "" {
		migrator, err = migration.NewMigratorFromURL(parsed.dbType, parsed.dbURL, logger)
	} else {
		migrator, err = migration.NewMigratorFromStoreConfig(cfg.Checkpoint, logger)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("failed to close migrator", zap.Error(err))
		}
	}()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	return cli.Run(ctx, parsed.action, parsed.positional)
}
