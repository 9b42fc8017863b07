package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/ema-campus/core"
	"github.com/koscakluka/ema-campus/core/llms"
	"github.com/koscakluka/ema-campus/core/texttospeech"
	"github.com/koscakluka/ema-campus/internal/config"
)

var askMute bool

var askCmd = &cobra.Command{
	Use:   "ask [text...]",
	Short: "Ask a single question and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		requirements := []config.Requirement{config.RequireGemini, config.RequireStudent}
		if !askMute {
			requirements = append(requirements, config.RequireDeepgram)
		}
		cfg, err := loadConfig(requirements...)
		if err != nil {
			return err
		}
		logger := setupLogger(os.Stderr, cfg.Log.Level)

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		var device audioDevice
		if !askMute {
			device, err = newAudioDevice(cfg.Audio, logger, false)
			if err != nil {
				return err
			}
			defer device.Close()
		}

		opts, err := controllerOptions(cfg, device)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		opts = append(opts, orchestration.WithNotificationSink(logSink{logger: logger}))
		if askMute {
			opts = append(opts, orchestration.WithSpeechSynthesis(consoleSpeech{out: out}))
		} else {
			opts = append(opts, orchestration.WithMessageCallback(func(message llms.Message) {
				if message.Role == llms.MessageRoleAssistant {
					fmt.Fprintln(out, message.Content)
				}
			}))
		}

		controller := orchestration.NewController(opts...)
		defer controller.Close()

		turn, err := controller.Submit(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if err := turn.Wait(ctx); err != nil {
			return err
		}
		logger.Debug("turn finished", "turn", turn.ID, "outcome", turn.Outcome())
		if err := waitForAlerts(ctx, controller, logger); err != nil {
			return err
		}
		return turn.Err()
	},
}

func init() {
	askCmd.Flags().BoolVar(&askMute, "mute", false, "print the reply instead of speaking it")
}

// consoleSpeech "speaks" by writing the text out.
type consoleSpeech struct {
	out io.Writer
}

func (c consoleSpeech) Speak(_ context.Context, text string, _ ...texttospeech.TextToSpeechOption) error {
	_, err := fmt.Fprintln(c.out, text)
	return err
}

type logSink struct {
	logger *slog.Logger
}

func (s logSink) Notify(n orchestration.Notification) {
	level := slog.LevelInfo
	switch n.Level {
	case orchestration.NotificationWarning:
		level = slog.LevelWarn
	case orchestration.NotificationError:
		level = slog.LevelError
	}

	attrs := []any{"title", n.Title}
	if n.Err != nil {
		attrs = append(attrs, "error", n.Err)
	}
	s.logger.Log(context.Background(), level, n.Message, attrs...)
}
