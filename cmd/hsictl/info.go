package main

import (
	"fmt"

	"github.com/spf13/cobra"

	hsicamera "github.com/e7canasta/hsi-sensor-driver"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device identity, capabilities and acquisition modes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		serial, err := cam.SerialNumber()
		if err != nil {
			return err
		}
		firmware, err := cam.FirmwareVersion()
		if err != nil {
			return err
		}

		fmt.Printf("Device:    %s\n", cam.DeviceName())
		fmt.Printf("Serial:    %s\n", serial)
		fmt.Printf("Firmware:  %s\n", firmware)
		fmt.Printf("Features:  %s\n", featureList(cam.Features()))
		fmt.Printf("Format:    %s\n", cam.PixelFormat())
		fmt.Printf("Modes:\n")
		for i, m := range cam.Modes() {
			marker := " "
			if i == cam.Mode() {
				marker = "*"
			}
			roi := ""
			if i == cam.ManualROIModeIndex() {
				roi = "  (manual ROI)"
			}
			fmt.Printf(" %s [%d] %-20s %4dx%-3d  %d-%dnm  max %d fps%s\n",
				marker, i, m.Name, m.SpatialPixels, m.SpectralBands,
				m.SpectralMin, m.SpectralMax, m.MaxFPS, roi)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the device's connected and streaming bits",
	RunE: func(cmd *cobra.Command, args []string) error {
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		connected, streaming, err := cam.Status()
		if err != nil {
			return err
		}
		fmt.Printf("Connected: %v\n", connected)
		fmt.Printf("Streaming: %v\n", streaming)

		temp, err := cam.Temperature()
		if err != nil {
			return err
		}
		fmt.Printf("Sensor:    %.1f °C\n", temp)
		return nil
	},
}

func featureList(f hsicamera.Features) string {
	names := []struct {
		bit  hsicamera.Features
		name string
	}{
		{hsicamera.FeatureFrameHeader, "frame-header"},
		{hsicamera.FeatureManualROI, "manual-roi"},
		{hsicamera.FeatureTempFrame, "temp-frame"},
		{hsicamera.FeatureTrigger, "trigger"},
		{hsicamera.FeatureCalibratedROI, "calibrated-roi"},
		{hsicamera.FeaturePixelPacking, "pixel-packing"},
		{hsicamera.FeatureSaveUserConfig, "save-config"},
		{hsicamera.FeatureOnCameraClassifier, "classifier"},
		{hsicamera.FeatureSpatialBinning, "spatial-binning"},
		{hsicamera.FeatureDifferentialTrigger, "differential-trigger"},
	}
	out := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if out != "" {
				out += ", "
			}
			out += n.name
		}
	}
	if out == "" {
		return "(none)"
	}
	return out
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(statusCmd)
}
