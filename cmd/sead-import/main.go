package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sead-import/internal/config"
	"github.com/JonMunkholm/sead-import/internal/core"
	"github.com/JonMunkholm/sead-import/internal/database"
	"github.com/JonMunkholm/sead-import/internal/logging"
	"github.com/JonMunkholm/sead-import/internal/policy"
	"github.com/JonMunkholm/sead-import/internal/schema"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sead-import",
		Short: "Reconcile a SEAD submission and write the bulk-load files",
		Long: `sead-import reads a submission (one CSV or TSV file per sheet), reconciles it
against the live SEAD database schema with the configured repair policies and
writes the four tab-separated files consumed by the bulk loader.

Settings come from the environment (and .env); flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runImport,
	}

	root.PersistentFlags().StringP("policy-config", "p", "", "Policy and table metadata YAML file (POLICY_CONFIG)")
	root.PersistentFlags().String("db-schema", "", "Database schema holding the SEAD tables (DB_SCHEMA)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (LOG_LEVEL)")

	root.Flags().StringP("input-dir", "i", "", "Directory with one CSV/TSV file per sheet (IMPORT_INPUT_DIR)")
	root.Flags().StringP("output-dir", "o", "", "Directory receiving the export files (EXPORT_OUTPUT_DIR)")
	root.Flags().StringP("basename", "b", "", "Prefix of the export file names (EXPORT_BASENAME)")
	root.Flags().StringSliceP("tables", "t", nil, "Export only these tables, comma-separated (EXPORT_TABLES)")

	root.AddCommand(newSchemaCmd(), newPoliciesCmd())
	return root
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "List the importable tables as read from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer env.close()

			s, err := env.readSchema(cmd.Context())
			if err != nil {
				return err
			}
			return printSchema(cmd.OutOrStdout(), s)
		},
	}
}

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Show the policy run order resolved from the policy file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, false)
			if err != nil {
				return err
			}
			return printPolicies(cmd.OutOrStdout(), policy.Default(env.policies.Policies))
		},
	}
}

func runImport(cmd *cobra.Command, _ []string) error {
	env, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer env.close()

	ctx := logging.WithRunID(cmd.Context(), uuid.NewString())

	s, err := env.readSchema(ctx)
	if err != nil {
		return err
	}

	keys := database.NewCachedKeyService(database.NewKeyService(env.pool, env.cfg.Database.Schema))
	svc := core.NewService(s, keys, env.policies.Policies, core.Options{Timeout: env.cfg.Import.Timeout})

	summary, err := svc.Process(ctx, core.Request{
		InputDir:  env.cfg.Import.InputDir,
		OutputDir: env.cfg.Import.OutputDir,
		Basename:  env.cfg.Import.Basename,
		Tables:    env.cfg.Import.Tables,
	})
	if err != nil {
		return err
	}

	return printSummary(cmd.OutOrStdout(), summary)
}

// environment is the state shared by all commands.
type environment struct {
	cfg      *config.Config
	policies *config.PolicyFile
	pool     *pgxpool.Pool
}

// setup loads configuration and the policy file, configures logging and,
// when connect is set, opens the database pool.
func setup(cmd *cobra.Command, connect bool) (*environment, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	loadConfig := config.LoadFunc
	if !connect {
		loadConfig = config.LoadOffline
	}
	cfg, err := loadConfig(os.Getenv, flagOverrides(cmd))
	if err != nil {
		return nil, err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	pf, err := config.LoadPolicyFile(cfg.Import.PolicyFile)
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, policies: pf}
	if !connect {
		return env, nil
	}

	env.pool, err = openPool(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (e *environment) readSchema(ctx context.Context) (*schema.Schema, error) {
	return database.NewSchemaReader(e.pool, e.cfg.Database.Schema, e.policies.Tables).Read(ctx)
}

func (e *environment) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// openPool parses the connection string, applies pool sizing and verifies
// the connection.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"), "schema", cfg.Schema)
	} else {
		slog.Info("connected to database", "schema", cfg.Schema)
	}
	return pool, nil
}

// flagOverrides applies the flags set on the command line over the
// environment.
func flagOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		set := func(name string, dst *string) {
			if f := flags.Lookup(name); f != nil && f.Changed {
				*dst = f.Value.String()
			}
		}

		set("input-dir", &cfg.Import.InputDir)
		set("output-dir", &cfg.Import.OutputDir)
		set("basename", &cfg.Import.Basename)
		set("policy-config", &cfg.Import.PolicyFile)
		set("db-schema", &cfg.Database.Schema)
		set("log-level", &cfg.Logging.Level)

		if f := flags.Lookup("tables"); f != nil && f.Changed {
			if tables, err := flags.GetStringSlice("tables"); err == nil {
				cfg.Import.Tables = tables
			}
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("import failed", "error", err)
		fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		stop()
		os.Exit(1)
	}
}
