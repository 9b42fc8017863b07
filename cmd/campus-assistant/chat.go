package main

import (
	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/ema-campus/core"
	"github.com/koscakluka/ema-campus/internal/config"
	"github.com/koscakluka/ema-campus/internal/tui"
)

var chatLogFile string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat with typed and voice input",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.RequireGemini, config.RequireDeepgram, config.RequireStudent)
		if err != nil {
			return err
		}

		logFile, err := openLogFile(chatLogFile)
		if err != nil {
			return err
		}
		defer logFile.Close()
		logger := setupLogger(logFile, cfg.Log.Level)

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		device, err := newAudioDevice(cfg.Audio, logger, true)
		if err != nil {
			return err
		}
		defer device.Close()

		opts, err := controllerOptions(cfg, device)
		if err != nil {
			return err
		}
		bridge := tui.NewBridge()
		controller := orchestration.NewController(append(opts, bridge.ControllerOptions()...)...)
		defer controller.Close()

		logger.Info("starting chat", "student", cfg.Student.Name, "audio", cfg.Audio.Backend, "classifier", cfg.Classifier)
		if err := tui.Run(ctx, controller, bridge, "Campus Assistant · "+cfg.Student.Name); err != nil {
			return err
		}
		return waitForAlerts(cmd.Context(), controller, logger)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatLogFile, "log-file", "", "write logs to this file while the chat owns the terminal")
}
