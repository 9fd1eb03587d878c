package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"speza/internal/cli"
	"speza/internal/config"
	"speza/internal/log"
	"speza/internal/services"
)

// annotationNoStore marks commands that run without opening the ledger.
const annotationNoStore = "speza/no-store"

type app struct {
	backend string
	data    string
	envFile string
	verbose bool

	logger *log.Logger
	svc    *services.LedgerService
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:                "speza-cli",
		Short:              "Manage the speza expense ledger from the terminal",
		Long:               "Record income and expenses, inspect the dashboard report and export the ledger without running the web server.",
		SilenceUsage:       true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: a.close,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.backend, "backend", "", "ledger backend: csv, memory, sqlite or sheets (default from DATA_BACKEND)")
	pf.StringVar(&a.data, "data", "", "ledger file, or database file for the sqlite backend")
	pf.StringVar(&a.envFile, "env-file", ".env", "environment file to load before reading configuration")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log backend activity to stderr")

	root.AddCommand(
		a.listCmd(),
		a.addCmd(),
		a.editCmd(),
		a.deleteCmd(),
		a.clearCmd(),
		a.reportCmd(),
		a.exportCmd(),
		sheetsAuthCmd(),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	if err := cli.LoadEnvFile(a.envFile); err != nil {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = log.New(log.Config{
		Level:     level,
		Component: log.ComponentCLI,
		Handler:   slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}),
	})
	log.SetDefault(a.logger)

	if cmd.Annotations[annotationNoStore] != "" {
		return nil
	}

	cfg := config.Load()
	if a.backend != "" {
		cfg.DataBackend = a.backend
	}
	if a.data != "" {
		if cfg.DataBackend == "sqlite" {
			cfg.SQLiteDBPath = a.data
		} else {
			cfg.DataPath = a.data
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := cli.OpenStore(cmd.Context(), a.logger, cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	opts := services.Options{
		MoodThreshold: &cfg.MoodThreshold,
		Cleanup:       store.Close,
		Logger:        a.logger,
	}
	publisher, err := cli.NewPublisher(a.logger, cfg)
	if err != nil {
		a.logger.Warn("AMQP unavailable, continuing without events", log.FieldError, err)
	} else if publisher != nil {
		opts.Publisher = publisher
	}
	a.svc = services.NewLedgerService(store.Store, opts)
	return nil
}

func (a *app) close(*cobra.Command, []string) error {
	if a.svc == nil {
		return nil
	}
	err := a.svc.Close()
	a.svc = nil
	return err
}
