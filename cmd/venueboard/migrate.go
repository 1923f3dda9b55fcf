package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"venueboard/internal/config"
	"venueboard/internal/store"
)

func (a *app) migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Revert the most recent migration instead",
			},
		},
		Before: a.loadConfig(config.ScopeDatabase),
		Action: a.migrate,
	}
}

func (a *app) migrate(ctx context.Context, cmd *cli.Command) error {
	db, err := openDatabase(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	dataStore := store.New(db)
	out := cmd.Root().Writer

	if cmd.Bool("rollback") {
		version, err := dataStore.Rollback(ctx)
		if err != nil {
			return err
		}
		if version == 0 {
			fmt.Fprintln(out, "nothing to roll back")
			return nil
		}
		fmt.Fprintf(out, "rolled back migration %04d\n", version)
		return nil
	}

	applied, err := dataStore.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "database is up to date")
		return nil
	}
	for _, version := range applied {
		fmt.Fprintf(out, "applied migration %04d\n", version)
	}
	return nil
}
