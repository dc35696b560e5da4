// Command catalogctl imports and exports the test catalog without the HTTP
// server, against a SQLite file by default or any configured store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/testcatalog/internal/app"
	"github.com/JonMunkholm/testcatalog/internal/config"
	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags override the environment configuration.
type globalFlags struct {
	driver   string
	db       string
	logLevel string
}

// env is what every subcommand needs once flags are resolved.
type env struct {
	cfg     *config.Config
	store   *app.Store
	service *core.Service
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Import, inspect and export the medical test catalog",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.driver, "store", "", "store driver: sqlite, postgres or memory (default from STORE_DRIVER)")
	root.PersistentFlags().StringVar(&flags.db, "db", "", "sqlite path or postgres URL, depending on --store")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(importCmd(flags))
	root.AddCommand(exportCmd(flags))
	root.AddCommand(sessionsCmd(flags))
	root.AddCommand(auditCmd(flags))
	root.AddCommand(formatsCmd())
	return root
}

// open loads configuration, applies flags and opens the store.
func (f *globalFlags) open(cmd *cobra.Command) (*env, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.driver != "" {
		cfg.Database.Driver = f.driver
	}
	if f.db != "" {
		if cfg.Database.Driver == config.DriverPostgres {
			cfg.Database.URL = f.db
		} else {
			cfg.Database.SQLitePath = f.db
		}
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	svc, err := app.NewService(st, cfg.Import, nil)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &env{cfg: cfg, store: st, service: svc}, nil
}

func (e *env) Close() {
	e.store.Close()
}
