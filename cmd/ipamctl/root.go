package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Flarenzy/smart-ipam/internal/app"
	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/Flarenzy/smart-ipam/internal/logging"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const defaultSQLitePath = "ipam.db"

// cli carries state shared by every subcommand. service is set in
// PersistentPreRunE unless a test injected one.
type cli struct {
	out    io.Writer
	errOut io.Writer

	format     string
	dbDriver   string
	dsn        string
	sqlitePath string
	logLevel   string

	cfg      app.Config
	logger   *slog.Logger
	service  domain.NetworkService
	services *app.Services
	closers  []io.Closer

	// confirm asks a yes/no question. Tests replace it.
	confirm func(prompt string) (bool, error)
}

func newRootCmd(c *cli) *cobra.Command {
	if c.confirm == nil {
		c.confirm = func(prompt string) (bool, error) {
			return pterm.DefaultInteractiveConfirm.WithDefaultText(prompt).Show()
		}
	}

	root := &cobra.Command{
		Use:           "ipamctl",
		Short:         "Smart IPAM: address allocation, discovery and conflict detection",
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.format, "format", formatTable, "output format (table, json, csv)")
	flags.StringVar(&c.dbDriver, "db-driver", "", "storage driver (memory, sqlite, postgres); overrides DB_DRIVER")
	flags.StringVar(&c.dsn, "db-conn", "", "PostgreSQL connection string; overrides DB_CONN")
	flags.StringVar(&c.sqlitePath, "sqlite-path", "", "SQLite database file; overrides SQLITE_PATH")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newInitDatabaseCmd(c),
		newCreateSubnetCmd(c),
		newAllocateCmd(c),
		newDeallocateCmd(c),
		newListSubnetsCmd(c),
		newListAllocationsCmd(c),
		newDiscoverCmd(c),
		newCheckConflictsCmd(c),
		newReportCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if err := validateFormat(c.format); err != nil {
		return err
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if c.dbDriver != "" {
		cfg.DBDriver = c.dbDriver
	}
	if c.dsn != "" {
		cfg.DSN = c.dsn
	}
	if c.sqlitePath != "" {
		cfg.SQLitePath = c.sqlitePath
	}
	// A one-shot command against a throwaway store is useless, so the CLI
	// falls back to a local file where the server would use memory.
	if cfg.DBDriver == "" && cfg.DSN == "" && cfg.SQLitePath == "" {
		cfg.SQLitePath = defaultSQLitePath
	}
	switch {
	case c.logLevel != "":
		cfg.Log.Level = c.logLevel
	case os.Getenv("LOG_LEVEL") == "":
		cfg.Log.Level = "warn"
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	c.logger = logger
	c.closers = append(c.closers, closer)

	// serve builds its own services.
	if c.service != nil || cmd.Name() == "serve" {
		return nil
	}

	services, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Driver(), err)
	}
	c.services = services
	c.service = services.Service
	return nil
}

// teardown is safe to call more than once.
func (c *cli) teardown() {
	c.services.Close()
	c.services = nil
	for _, closer := range c.closers {
		_ = closer.Close()
	}
	c.closers = nil
}
