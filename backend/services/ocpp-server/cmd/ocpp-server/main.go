package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"csms/backend/libs/logging"
	"csms/backend/services/ocpp-server/internal/app"
	"csms/backend/services/ocpp-server/internal/chargerauth"
	"csms/backend/services/ocpp-server/internal/config"
)

var version = "dev"

func main() {
	cliApp := &cli.App{
		Name:            "ocpp-server",
		Version:         version,
		Usage:           "OCPP 1.6 central system session manager",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("config"); path != "" {
				return os.Setenv("CONFIG_FILE", path)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "accept charge point connections and serve the operator API",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate", Usage: "create the database schema before serving"},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create the database schema",
				Action: migrate,
			},
			{
				Name:      "hash-password",
				Usage:     "print a bcrypt hash for chargers.basicAuth",
				ArgsUsage: "<password>",
				Action:    hashPassword,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if c.Bool("migrate") && cfg.Storage.Driver == config.DriverPostgres {
		if err := app.Migrate(ctx, cfg, logger); err != nil {
			return err
		}
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to init ocpp server", zap.Error(err))
		return err
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ocpp server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("ocpp server stopped")
	return nil
}

func migrate(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate: storage driver %q has no schema", cfg.Storage.Driver)
	}
	return app.Migrate(c.Context, cfg, logger)
}

func hashPassword(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ocpp-server hash-password <password>", 2)
	}
	hash, err := chargerauth.NewBcryptHasher(0).Hash(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hash)
	return nil
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger("ocpp-server")
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
