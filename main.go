package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stevemurr/simple-data-server/config"
	"github.com/stevemurr/simple-data-server/localdata"
	"github.com/stevemurr/simple-data-server/logging"
	"github.com/stevemurr/simple-data-server/seed"
	"github.com/stevemurr/simple-data-server/server"
	"github.com/stevemurr/simple-data-server/store"
)

var (
	envFile  string
	dataFile string
	backend  string
)

var rootCmd = &cobra.Command{
	Use:   "simple-data-server",
	Short: "Minimal HTTP service for creating and listing JSON records",
	Long: `simple-data-server stores JSON records in a remote document store and
serves a read-only sample set from a local data.json file.

Configuration comes from the environment (ENDPOINT, KEY, DATABASE, CONTAINER,
FLASK_ENV, PORT) and an optional .env file. With FLASK_ENV=production any
missing store variable is fatal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Push the local data file into the store and exit",
	RunE:  runSeed,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&dataFile, "data-file", "", "Local data file (overrides "+config.EnvDataFile+")")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Store backend: cosmos, mongo, surreal, sqlite, memory (overrides "+config.EnvBackend+")")
	rootCmd.AddCommand(serveCmd, seedCmd)
}

// getenv reads the process environment with CLI flag overrides applied.
func getenv(key string) string {
	switch {
	case key == config.EnvDataFile && dataFile != "":
		return dataFile
	case key == config.EnvBackend && backend != "":
		return backend
	}
	return os.Getenv(key)
}

// setup loads configuration and builds the logger. Missing configuration in
// strict mode terminates the process.
func setup() (*config.Config, zerolog.Logger) {
	bootLog := logging.New(os.Stdout, false)

	loaded, err := config.LoadDotEnv(envFile)
	if err != nil {
		bootLog.Error().Err(err).Msg("failed to read env file")
	}

	cfg, err := config.Load(getenv)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logging.New(os.Stdout, cfg.Debug())
	if loaded {
		log.Debug().Str("path", envFile).Msg("loaded env file")
	}
	if len(cfg.Missing) > 0 {
		log.Error().
			Strs("missing", cfg.Missing).
			Msg("missing required environment variables: " + strings.Join(cfg.Missing, ", "))
		log.Warn().Msg("using empty values for missing configuration")
	}
	return cfg, log
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log := setup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := server.New(ctx, cfg, log)
	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server error")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, log := setup()
	if cfg.Strict() {
		return errors.New("seeding is disabled in production mode")
	}

	ctx := cmd.Context()
	conn := server.Connect(ctx, cfg, log)
	if conn.State() != store.StateConnected {
		return conn.Err()
	}
	defer conn.Close(context.Background())

	res := seed.Run(ctx, false, conn, localdata.New(cfg.DataFile, log), log)
	log.Info().Int("added", res.Added).Int("failed", res.Failed).Msg("seed finished")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log := logging.New(os.Stderr, false)
		log.Error().Err(err).Msg("simple-data-server failed")
		os.Exit(1)
	}
}
