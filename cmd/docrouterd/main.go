// Docrouterd is the email attachment classification daemon.
//
// It classifies inbound attachments against a persistent knowledge base
// of asset profiles, file-type rules, and past routing decisions, and
// exposes the pipeline over HTTP.
//
// Usage:
//
//	# Start the daemon
//	docrouterd serve --config config.yaml
//
//	# Seed the knowledge base from YAML files
//	docrouterd bootstrap ./seeds --config config.yaml
//
//	# Inspect the knowledge base
//	docrouterd stats --config config.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/config"
	"github.com/fyrsmithlabs/docrouter/internal/httpapi"
	"github.com/fyrsmithlabs/docrouter/internal/logging"
	"github.com/fyrsmithlabs/docrouter/internal/services"
	"github.com/fyrsmithlabs/docrouter/internal/telemetry"
)

var (
	// configPath is the YAML configuration file; empty means defaults
	// plus environment overrides.
	configPath string

	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "docrouterd",
	Short:   "Email attachment classification daemon",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(statsCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the classification daemon",
	RunE:  runServe,
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap <seed-dir>",
	Short: "Seed the knowledge base from YAML files",
	Long: `Seed the knowledge base from YAML files in the given directory.

Seeding is idempotent: collections already loaded are skipped and
reported, never loaded twice.`,
	Args: cobra.ExactArgs(1),
	RunE: runBootstrap,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print knowledge base statistics",
	RunE:  runStats,
}

// setup loads configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting docrouterd",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	tel, err := telemetry.New(ctx, tracingConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	registry, err := services.Build(cfg, logger, services.BuildOptions{})
	if err != nil {
		return err
	}
	defer registry.Close()

	server, err := httpapi.NewServer(registry.Pipeline(), logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	// Episodic retention runs in the background for the daemon's lifetime.
	go runEviction(ctx, registry, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// tracingConfig maps the config file's telemetry section onto the
// tracing setup.
func tracingConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.TLSSkipVerify = cfg.Telemetry.TLSSkipVerify
	tc.Sampling.Rate = cfg.Telemetry.SamplingRate
	tc.ServiceVersion = version
	return tc
}

// runEviction applies the episodic retention caps at startup and then
// twice a day.
func runEviction(ctx context.Context, registry services.Registry, logger *zap.Logger) {
	evict := func() {
		n, err := registry.Pipeline().EvictEpisodic(ctx)
		if err != nil {
			logger.Warn("episodic eviction failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("episodic records evicted", zap.Int("count", n))
		}
	}

	evict()
	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evict()
		}
	}
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	registry, err := services.Build(cfg, logger, services.BuildOptions{})
	if err != nil {
		return err
	}
	defer registry.Close()

	result, err := registry.Pipeline().Bootstrap(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return printJSON(result)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	registry, err := services.Build(cfg, logger, services.BuildOptions{})
	if err != nil {
		return err
	}
	defer registry.Close()

	stats, err := registry.Pipeline().KnowledgeStats(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
