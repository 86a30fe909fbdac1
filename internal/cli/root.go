package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/walletsync/internal/control"
	"github.com/vietddude/walletsync/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "walletd",
	Short: "Wallet state sync daemon",
	Long: `walletd keeps an EVM account's balance, history and network in sync with a
wallet provider, submits transfers and manages a local address book.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
	Run: runDaemon,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads the config file and installs the logger it asks for.
func loadConfig() *config.AppConfig {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)
	return cfg
}

func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch {
	case isDebug || cfg.Level == "debug":
		level = slog.LevelDebug
	case cfg.Level == "warn":
		level = slog.LevelWarn
	case cfg.Level == "error":
		level = slog.LevelError
	}

	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
}

// openApp builds the application for one-shot commands.
func openApp(ctx context.Context) *control.App {
	cfg := loadConfig()
	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize walletsync", "error", err)
		os.Exit(1)
	}
	atExit(func() { closeApp(app) })
	return app
}

// connectApp builds the application and connects the wallet.
func connectApp(ctx context.Context) *control.App {
	app := openApp(ctx)
	if _, err := app.Wallet.Connect(ctx); err != nil {
		fail("Failed to connect wallet", err)
	}
	return app
}

func closeApp(app *control.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}
}

var cleanups []func()

// atExit registers f to run when the command returns or fails.
func atExit(f func()) {
	cleanups = append(cleanups, f)
}

// cleanup runs the registered functions in reverse order.
func cleanup() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
}

// fail logs err, releases whatever the command opened and exits.
func fail(msg string, err error) {
	slog.Error(msg, "error", err)
	cleanup()
	os.Exit(1)
}

func runDaemon(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.New(context.Background(), cfg)
	if err != nil {
		fail("Failed to initialize walletsync", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		closeApp(app)
		fail("Failed to start walletsync", err)
	}

	slog.Info("walletsync started", "config", cfgPath, "status_port", cfg.Server.Port)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("walletsync stopped gracefully")
}
