package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/livo-backend/pkg/bootstrap"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|redo|status|to|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory; the default is embedded in the binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": *dir})

	// create and validate only touch files.
	switch *cmd {
	case "create":
		if *name == "" {
			exit(ctx, logg, "missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			exit(ctx, logg, "create migration failed", err)
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return
	case "validate":
		if err := migrate.ValidateFS(migrate.Source(*dir)); err != nil {
			exit(ctx, logg, "migration validation failed", err)
		}
		logg.Info(ctx, "migrations valid")
		return
	}

	app, err := bootstrap.Load("migrate")
	if err != nil {
		exit(ctx, app.Logger, "failed to load config", err)
	}
	defer app.Close()
	logg = app.Logger
	ctx = logg.WithFields(ctx, map[string]any{"env": app.Config.App.Env, "cmd": *cmd, "dir": *dir})

	// Not app.Database: that would run dev auto-migrations ahead of the command.
	dbClient, err := db.New(ctx, app.Config.DB, logg)
	if err != nil {
		exit(ctx, logg, "failed to bootstrap database", err)
	}
	app.OnClose("database", dbClient.Close)

	sqlDB, err := dbClient.SQL()
	if err != nil {
		exit(ctx, logg, "failed to extract sql.DB", err)
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir), logg)
	if err != nil {
		exit(ctx, logg, "failed to build migration runner", err)
	}

	if *cmd == "to" {
		if *version == "" {
			exit(ctx, logg, "missing -version for -cmd=to", nil)
		}
		err = runner.To(ctx, *version)
	} else {
		err = runner.Exec(ctx, *cmd)
	}
	if err != nil {
		exit(ctx, logg, "migration failed", err)
	}
	logg.Info(ctx, "migration command finished")
}

func exit(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
