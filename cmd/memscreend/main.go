// Command memscreend is the local, always-on visual-memory daemon: it boots
// the Supervisor (C13), which wires capture, ingestion, query, and the HTTP
// API into one running process (spec.md §6's CLI surface).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/memscreen/memscreend/internal/config"
	"github.com/memscreen/memscreend/internal/observability"
	"github.com/memscreen/memscreend/internal/paths"
	"github.com/memscreen/memscreend/internal/supervisor"
)

var (
	version = "0.1.0"

	bindOverride       string
	dataRoot           string
	runtimeURLOverride string
	configPathOverride string
	logLevel           string
	otlpEndpoint       string
)

var rootCmd = &cobra.Command{
	Use:   "memscreend",
	Short: "memscreend is the capture/indexing/query daemon behind the visual-memory client",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	rootCmd.Flags().StringVar(&bindOverride, "bind", "", "override api_bind (host:port)")
	rootCmd.Flags().StringVar(&dataRoot, "data-root", "", "override the per-user data root (default <home>/.memscreen)")
	rootCmd.Flags().StringVar(&runtimeURLOverride, "runtime-url", "", "override runtime_base_url")
	rootCmd.Flags().StringVar(&configPathOverride, "config", "", "override the config file path (default <data-root>/config.yaml)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "zerolog level")
	rootCmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP collector endpoint; tracing/metrics disabled when empty")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon() error {
	_ = godotenv.Load(".env")

	p, err := paths.Resolve(dataRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve data root: %v\n", err)
		return err
	}

	observability.InitLogger(p.Logs+"/memscreend.log", logLevel)

	var shutdownOTel func(context.Context) error
	if otlpEndpoint != "" {
		fn, err := observability.InitOTel(context.Background(), observability.Settings{
			ServiceName:    "memscreend",
			ServiceVersion: version,
			Environment:    "local",
			OTLPEndpoint:   otlpEndpoint,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "otel init failed, continuing without observability: %v\n", err)
		} else {
			shutdownOTel = fn
		}
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	log := *observability.LoggerWithTrace(context.Background())

	configPath := p.ConfigPath()
	if configPathOverride != "" {
		configPath = configPathOverride
	}
	cfg, err := config.Load(configPath, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	if bindOverride != "" {
		cfg.APIBind = bindOverride
	}
	if runtimeURLOverride != "" {
		cfg.RuntimeBaseURL = runtimeURLOverride
	}

	settings, err := config.LoadRuntimeSettings(p.SettingsPath(), cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to load runtime settings")
		return err
	}

	sup := supervisor.New(cfg, p, settings, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("data_root", p.Root).
		Str("bind", cfg.APIBind).
		Str("runtime_base_url", cfg.RuntimeBaseURL).
		Msg("starting memscreend")

	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("memscreend exited with error")
		return err
	}
	log.Info().Msg("memscreend exited cleanly")
	return nil
}
