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

	"github.com/vietddude/faultline/internal/control"
	"github.com/vietddude/faultline/internal/core/config"
	"github.com/vietddude/faultline/internal/processor"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "Faultline resilience service",
	Long:  `Faultline normalizes errors, retries transient failures and guards resources with circuit breakers.`,
	Run:   runServe,
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

// loadConfig reads the config file, falling back to defaults when it does
// not exist.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(cfgPath)
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
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, jsonOptions(level))))
		return
	}

	stylelog.InitDefault(textOptions(level))
}

func jsonOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if isCritical(groups, a) {
				a.Value = slog.StringValue("CRITICAL")
			}
			return a
		},
	}
}

func textOptions(level slog.Level) *tint.Options {
	return &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if isCritical(groups, a) {
				// 9 is bright red.
				return tint.Attr(9, slog.String(a.Key, "CRITICAL"))
			}
			return a
		},
	}
}

func isCritical(groups []string, a slog.Attr) bool {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return false
	}
	l, ok := a.Value.Any().(slog.Level)
	return ok && l >= processor.LevelCritical
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize faultline", "error", err)
		os.Exit(1)
	}

	slog.Info("Faultline started", "config", cfgPath, "port", cfg.Server.Port)

	runErr := app.Run(ctx)
	if runErr != nil {
		slog.Error("Faultline stopped with error", "error", runErr)
	} else {
		slog.Info("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil || runErr != nil {
		if err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
		os.Exit(1)
	}
}
