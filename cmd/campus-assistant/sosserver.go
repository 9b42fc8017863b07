package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-campus/internal/sos"
)

var (
	sosAddr   string
	sosSilent bool
)

var sosServerCmd = &cobra.Command{
	Use:   "sos-server",
	Short: "Run the SOS responder that sounds an alarm for every alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(os.Stderr, cfg.Log.Level)

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		var player sos.Player
		if !sosSilent {
			device, err := newAudioDevice(cfg.Audio, logger, false)
			if err != nil {
				return err
			}
			defer device.Close()
			player = device
		}

		addr := cfg.SOS.Addr
		if sosAddr != "" {
			addr = sosAddr
		}

		alarm := sos.NewToneAlarm(player)
		defer alarm.Wait()

		logger.Info("starting SOS responder", "addr", addr, "silent", sosSilent)
		return sos.ListenAndServe(ctx, addr, sos.NewRouter(alarm))
	},
}

func init() {
	sosServerCmd.Flags().StringVar(&sosAddr, "addr", "", "listen address, overrides SOS_ADDR")
	sosServerCmd.Flags().BoolVar(&sosSilent, "silent", false, "only log alarms without playing the tone")
}
