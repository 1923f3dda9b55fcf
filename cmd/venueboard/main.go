package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"venueboard/internal/config"
	"venueboard/internal/logging"
)

var version = "dev"

// app carries state shared by every command.
type app struct {
	cfg *config.Config
}

func main() {
	a := &app{}

	cmd := &cli.Command{
		Name:    "venueboard",
		Usage:   "Song-request board for venues",
		Version: version,
		Commands: []*cli.Command{
			a.serveCommand(),
			a.migrateCommand(),
			a.searchCommand(),
			a.recommendCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("venueboard failed")
	}
}

// loadConfig returns a Before hook that loads the settings a command
// depends on and installs the global logger.
func (a *app) loadConfig(scope config.Scope) cli.BeforeFunc {
	return func(ctx context.Context, _ *cli.Command) (context.Context, error) {
		return ctx, a.configure(scope)
	}
}

func (a *app) configure(scope config.Scope) error {
	cfg, err := config.LoadFor(scope)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.SetGlobalLogger(logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	}))
	return nil
}
