package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	hsicamera "github.com/e7canasta/hsi-sensor-driver"
)

var (
	flagHost  string
	flagPort  int
	flagDebug bool
)

var rootCmd = &cobra.Command{
	Use:           "hsictl",
	Short:         "Inspect and configure a hyperspectral line-scan camera",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if flagDebug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "camera IP or hostname (required)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "camera port (default 7892)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.MarkPersistentFlagRequired("host")
}

// connect builds a Camera from the persistent flags.
func connect() (*hsicamera.Camera, error) {
	return hsicamera.Connect(hsicamera.CameraConfig{Host: flagHost, Port: flagPort})
}
