package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opensnatch/snatchd/pkg/action"
	"github.com/opensnatch/snatchd/pkg/api"
	"github.com/opensnatch/snatchd/pkg/events"
	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/metrics"
	"github.com/opensnatch/snatchd/pkg/notify"
	"github.com/opensnatch/snatchd/pkg/profile"
	"github.com/opensnatch/snatchd/pkg/registry"
	"github.com/opensnatch/snatchd/pkg/snatch"
	"github.com/opensnatch/snatchd/pkg/worker"
)

// serverConfig is the YAML config file shape. Flags override file
// values; the file overrides defaults.
type serverConfig struct {
	Listen    string `yaml:"listen"`
	DataDir   string `yaml:"data_dir"`
	Executors int    `yaml:"executors"`
	LogLevel  string `yaml:"log_level"`
	LogJSON   bool   `yaml:"log_json"`
	APIKey    string `yaml:"api_key"`
}

func defaultConfig() serverConfig {
	return serverConfig{
		Listen:    ":8264",
		DataDir:   "/var/lib/snatchd",
		Executors: worker.DefaultExecutors,
		LogLevel:  "info",
	}
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the snatchd server",
	Long: `Run the snatchd server: the REST surface, the worker pool and
the crash-recovery pass over the task database.`,
	RunE: runServer,
}

func init() {
	flags := serverCmd.Flags()
	flags.String("listen", "", "address to listen on (default :8264)")
	flags.String("data-dir", "", "directory for the task database and config files (default /var/lib/snatchd)")
	flags.String("config", "", "path to YAML config file")
	flags.Int("executors", 0, "number of task executors (default 8)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default info)")
	flags.Bool("log-json", false, "log JSON instead of console output")
	flags.String("api-key", "", "Bearer API key protecting the REST surface")
}

func loadConfig(cmd *cobra.Command) (serverConfig, error) {
	cfg := defaultConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetInt("executors"); v > 0 {
		cfg.Executors = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		cfg.LogJSON = true
	}
	if v, _ := cmd.Flags().GetString("api-key"); v != "" {
		cfg.APIKey = v
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("server")

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	profiles, err := profile.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening profile store: %w", err)
	}

	reg, err := registry.NewRegistry(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening task registry: %w", err)
	}
	defer reg.Close()

	broker := events.NewBroker()
	defer broker.Stop()

	collector := metrics.NewCollector(reg, broker)
	collector.Start()
	defer collector.Stop()

	telegram := notify.NewTelegramNotifier(profiles)
	dns := notify.NewCloudflareBinder(profiles)

	engine := snatch.NewEngine(profiles, dns, telegram)
	actions := action.NewExecutor(profiles, dns, telegram)

	pool := worker.NewPool(cfg.Executors, reg, profiles, engine, actions, broker)
	if err := pool.Start(); err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Registry: reg,
		Profiles: profiles,
		Pool:     pool,
		Broker:   broker,
		APIKey:   cfg.APIKey,
	})

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", cfg.Listen).Int("executors", cfg.Executors).Msg("snatchd listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("HTTP server failed")
		pool.Stop()
		return err
	}

	// Stop accepting requests first, then drain the pool. Interrupted
	// snatch rows stay running and are recovered on the next start.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown did not finish cleanly")
	}
	pool.Stop()

	logger.Info().Msg("snatchd stopped")
	return nil
}
