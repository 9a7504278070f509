package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

type dbCommand func(ctx context.Context, runner *migrate.Runner, opts options) error

var dbCommands = map[string]dbCommand{
	"up":      runUp,
	"down":    runDown,
	"status":  runStatus,
	"version": runTo,
}

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	var opts options
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (empty uses the embedded set)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate are file-only and run without config.
	switch *cmd {
	case "create":
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		if opts.name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name, time.Now())
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		fsys, err := migrate.Source(opts.dir)
		if err != nil {
			fail("%v", err)
		}
		files, err := migrate.Validate(fsys)
		if err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Printf("%d migrations valid\n", len(files))
		return
	}

	run, ok := dbCommands[*cmd]
	if !ok {
		fail("unknown -cmd value %q", *cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	if cfg.FeatureFlags.UseSQLite {
		logg.Warn(ctx, "goose migrations target postgres; sqlite schemas come from auto-migrate")
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to get sql handle", err)
		os.Exit(1)
	}
	if err := execute(ctx, sqlDB, run, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration command finished")
}

func execute(ctx context.Context, sqlDB *sql.DB, run dbCommand, opts options) error {
	runner, err := migrate.NewRunner(sqlDB, opts.dir)
	if err != nil {
		return err
	}
	return run(ctx, runner, opts)
}

func runUp(ctx context.Context, runner *migrate.Runner, _ options) error {
	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	printApplied("applied", applied)
	return nil
}

func runDown(ctx context.Context, runner *migrate.Runner, _ options) error {
	file, err := runner.Down(ctx)
	if err != nil {
		return err
	}
	if file != "" {
		fmt.Println("rolled back", file)
	}
	return nil
}

func runTo(ctx context.Context, runner *migrate.Runner, opts options) error {
	if opts.version == "" {
		return fmt.Errorf("missing -version")
	}
	moved, err := runner.To(ctx, opts.version)
	if err != nil {
		return err
	}
	printApplied("migrated", moved)
	return nil
}

func runStatus(ctx context.Context, runner *migrate.Runner, _ options) error {
	statuses, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		state, at := "pending", "-"
		if s.Applied {
			state, at = "applied", s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, state, at, s.File)
	}
	return tw.Flush()
}

func printApplied(verb string, files []string) {
	if len(files) == 0 {
		fmt.Println("schema already current")
		return
	}
	for _, f := range files {
		fmt.Println(verb, f)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
