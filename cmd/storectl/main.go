package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/server"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile       string
	migrationsDir string
)

// app is what a command needs once configuration and the database are up
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       database.Service
	services *server.Services
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Operator tooling for the storefront backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().StringVar(&migrationsDir, "migrations", "migrations", "directory holding the goose migrations")

	root.AddCommand(newMigrateCmd(), newShipmentCmd(), newOutboxCmd(), newShiprocketCmd())
	return root
}

// loadEnv reads the dotenv file. A missing default file is not an error.
func loadEnv(cmd *cobra.Command) error {
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// withApp boots configuration, logging, the database and the service graph around fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	if err := loadEnv(cmd); err != nil {
		return err
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	db, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	services, err := server.NewServices(ctx, cfg, log, db.DB())
	if err != nil {
		return err
	}
	defer services.Close()

	return fn(ctx, &app{cfg: cfg, logger: log, db: db, services: services})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
