package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"integrator-go/internal/accounts"
	"integrator-go/internal/callback"
	"integrator-go/internal/catalog"
	"integrator-go/internal/config"
	"integrator-go/internal/connect"
	"integrator-go/internal/flow"
	"integrator-go/internal/httpapi"
	"integrator-go/internal/logs"
	"integrator-go/internal/observability"
	"integrator-go/internal/provider"
	"integrator-go/internal/secret"
)

var (
	configFile string
	dataDir    string
	listen     string
	logLevel   string
	logToFile  bool
	logDir     string

	version = "v0.1.0" // This will be injected by -ldflags during build
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "integrator",
		Short:   "Integration connection orchestrator for workspace providers",
		Version: version,
		RunE:    runServe,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory path (default: ~/.integrator)")
	rootCmd.PersistentFlags().StringVarP(&listen, "listen", "l", "", "Listen address")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to file")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator HTTP server",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(getConnectCommand())
	rootCmd.AddCommand(getSecretsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listen != "" {
		cfg.Listen = listen
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging == nil {
		cfg.Logging = logs.DefaultLogConfig()
	}
	cfg.Logging.Level = logLevel
	if logToFile {
		cfg.Logging.EnableFile = true
	}
	if logDir != "" {
		cfg.Logging.LogDir = logDir
	}
	return logs.SetupLogger(cfg.Logging)
}

// openSecretStore picks the OS keyring when it is usable and falls back to
// an in-memory store otherwise. Everything goes through the read cache.
func openSecretStore(cfg *config.Config, logger *zap.Logger) secret.Store {
	if !cfg.DisableKeyring {
		keyring := secret.NewKeyringStore()
		if keyring.IsAvailable() {
			return secret.NewCachingStore(keyring)
		}
		logger.Warn("OS keyring unavailable, falling back to in-memory secret store; " +
			"credentials will not survive a restart")
	}
	return secret.NewCachingStore(secret.NewMemoryStore())
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting integrator",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("data_dir", cfg.DataDir))

	secrets := openSecretStore(cfg, logger)

	accountStore, err := accounts.Open(filepath.Join(cfg.DataDir, "accounts.db"), logger)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	defer func() {
		if cerr := accountStore.Close(); cerr != nil {
			logger.Warn("Failed to close account store", zap.Error(cerr))
		}
	}()

	manifests := loadManifests(cfg, logger)

	flows := flow.NewCoordinator(logger)
	registry := provider.BuildRegistry(manifests, provider.Deps{
		Secrets:          secrets,
		Accounts:         accountStore,
		Flows:            flows,
		CallbackBase:     cfg.CallbackBaseURL,
		AtlassianAuthURL: cfg.AtlassianAuthURL,
		Logger:           logger,
	})

	checker := catalog.NewChecker(secrets)
	cat := catalog.NewService(manifests, checker, registry, logger)
	metrics := observability.NewMetrics()
	orchestrator := connect.NewOrchestrator(cat, checker, registry, secrets, metrics, logger)
	callbackHandler := callback.NewHandler(registry, flows, metrics, logger)

	api := httpapi.NewServer(cat, orchestrator, callbackHandler, metrics, logger)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	// Stale connection attempts are swept in the background so abandoned
	// flows do not pin the in-flight guard forever.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				flows.CleanupStale()
			}
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Listen))
		if serr := httpServer.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errChan <- serr
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
