package main

import (
	"context"
	stdLog "log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Astemirdum/library-circulation/circulation/app"
	"github.com/Astemirdum/library-circulation/circulation/config"
	"github.com/Astemirdum/library-circulation/circulation/migrations"
	"github.com/Astemirdum/library-circulation/pkg/logger"
	"github.com/Astemirdum/library-circulation/pkg/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		stdLog.Fatal("load envs from .env ", zap.Error(err))
	}
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		debug        bool
		writeTimeout time.Duration
	)
	loadConfig := func() *config.Config {
		var opts []config.Option
		if debug {
			opts = append(opts, config.WithLogLevel(zapcore.DebugLevel))
		}
		if writeTimeout > 0 {
			opts = append(opts, config.WithWriteTimeout(writeTimeout))
		}
		return config.NewConfig(opts...)
	}

	root := &cobra.Command{
		Use:          "circulation",
		Short:        "Library circulation service",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			app.Run(loadConfig())
		},
	}
	serve.Flags().DurationVar(&writeTimeout, "write-timeout", 0, "HTTP write timeout")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			log := logger.NewLogger(cfg.Log, "migrate")
			db, err := postgres.NewPostgresDB(cmd.Context(), &cfg.Database, nil)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(db, migrations.MigrationFiles); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the initial catalog and roster into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Seed(cmd.Context(), loadConfig())
		},
	}

	root.AddCommand(serve, migrate, seedCmd)
	return root
}
