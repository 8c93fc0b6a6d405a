package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/campusmess/messhall/internal/app/runtime"
	"github.com/campusmess/messhall/internal/config"
	"github.com/campusmess/messhall/internal/platform/migrations"
	"github.com/campusmess/messhall/pkg/logger"
)

var (
	envFile string
	dsn     string

	rootCmd = &cobra.Command{
		Use:           "messhall",
		Short:         "Campus mess menu and feedback service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := databaseURL()
			if err != nil {
				return err
			}
			if err := migrations.Up(target); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default one step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			target, err := databaseURL()
			if err != nil {
				return err
			}
			if err := migrations.Down(target, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}

	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := databaseURL()
			if err != nil {
				return err
			}
			v, dirty, err := migrations.Version(target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "messhall %s (%s)\n", version, commit)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres URL (defaults to DATABASE_URL)")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging)
	log.WithField("version", version).WithField("store", cfg.Store.Driver).Info("starting messhall")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	runErr := application.Run(ctx)
	if runErr != nil {
		log.WithError(runErr).Error("server stopped unexpectedly")
	} else {
		log.Info("shutting down")
	}

	// The signal context is already done here.
	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Warn("shutdown finished with errors")
		return errors.Join(runErr, err)
	}
	log.Info("stopped")
	return runErr
}

// databaseURL resolves the migration target from --dsn, then DATABASE_URL
// after loading the env file.
func databaseURL() (string, error) {
	if dsn != "" {
		return dsn, nil
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	return "", errors.New("no database: pass --dsn or set DATABASE_URL")
}
