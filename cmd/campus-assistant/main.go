package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/ema-campus/core"
	"github.com/koscakluka/ema-campus/internal/config"
)

// alertGracePeriod is how long a command keeps running after its last turn
// so that pending emergency alerts reach the responder.
const alertGracePeriod = 15 * time.Second

var envFile string

var rootCmd = &cobra.Command{
	Use:   "campus-assistant",
	Short: "Voice-first campus assistant for students",
	Long: `campus-assistant answers questions about classes, events and campus
facilities by text or voice, and forwards emergencies to an SOS responder.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(chatCmd, askCmd, sosServerCmd, schemaCmd)
}

// loadConfig reads the configuration and checks what the command needs.
func loadConfig(requirements ...config.Requirement) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(requirements...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch level {
	case slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError:
		opts.Level = level
	default:
		opts.Level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(w, opts))
	slog.SetDefault(logger)
	return logger
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openLogFile returns the destination for logs of commands that own the
// terminal. An empty path discards logs.
func openLogFile(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{io.Discard}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func waitForAlerts(ctx context.Context, controller *orchestration.Controller, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, alertGracePeriod)
	defer cancel()

	if err := controller.WaitForAlerts(ctx); err != nil {
		logger.Error("emergency alert still pending on exit", "error", err)
		return fmt.Errorf("emergency alert was not confirmed: %w", err)
	}
	return nil
}
