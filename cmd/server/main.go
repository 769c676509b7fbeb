package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvshare/internal/config"
	"github.com/JonMunkholm/csvshare/internal/core"
	"github.com/JonMunkholm/csvshare/internal/logging"
	"github.com/JonMunkholm/csvshare/internal/store"
	"github.com/JonMunkholm/csvshare/internal/store/postgres"
	"github.com/JonMunkholm/csvshare/internal/store/sqlite"
	"github.com/JonMunkholm/csvshare/internal/web"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var envFile string
	var cfg *config.Config

	rc := &cobra.Command{
		Use:           "csvshare",
		Short:         "Multi-tenant CSV upload, query and sharing service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Overload lets .env win over the inherited environment.
			if err := godotenv.Overload(envFile); err != nil {
				if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
				slog.Info("no .env file found, using environment variables")
			}

			var err error
			cfg, err = config.Load()
			if err != nil {
				slog.Error("failed to load configuration", "error", err)
				return err
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
	rc.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rc.AddCommand(newServeCommand(&cfg))
	rc.AddCommand(newMigrateCommand(&cfg))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func newServeCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply the schema and run the HTTP API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
}

func newMigrateCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			return migrate(cmd.Context(), st)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver(),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := migrate(ctx, st); err != nil {
		return err
	}

	service, err := core.NewService(st, cfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		return err
	}
	server := web.NewServer(service, cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server stopped", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := service.UploadLimiterStatus(); status.Active > 0 {
		slog.Info("waiting for uploads to complete", "active", status.Active)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}

// openStore connects to the backend DATABASE_URL names.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	db := cfg.Database
	switch db.Driver() {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, db.URL, postgres.PoolOptions{
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: db.MaxConnLifetime,
			MaxConnIdleTime: db.MaxConnIdleTime,
		})
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			return nil, err
		}
		slog.Info("connected to database", "driver", config.DriverPostgres)
		return st, nil
	case config.DriverSQLite:
		st, err := sqlite.Open(db.URL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			return nil, err
		}
		slog.Info("connected to database", "driver", config.DriverSQLite)
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme")
	}
}

func migrate(ctx context.Context, st store.Store) error {
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		return err
	}
	slog.Info("schema applied")
	return nil
}
