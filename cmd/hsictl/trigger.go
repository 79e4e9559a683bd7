package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	hsicamera "github.com/e7canasta/hsi-sensor-driver"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Inspect and configure external triggering",
}

var triggerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the full trigger configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		inMode, err := cam.InputTriggerMode()
		if err != nil {
			return err
		}
		divider, err := cam.InputTriggerDivider()
		if err != nil {
			return err
		}
		freq, err := cam.InputTriggerFrequency()
		if err != nil {
			return err
		}
		burst, err := cam.AcquisitionBurstLength()
		if err != nil {
			return err
		}
		outMode, err := cam.OutputTriggerMode()
		if err != nil {
			return err
		}
		inPin, err := cam.InputTriggerPinMode()
		if err != nil {
			return err
		}
		outPin, err := cam.OutputTriggerPinMode()
		if err != nil {
			return err
		}

		fmt.Printf("Input mode:     %s\n", inputModeName(inMode))
		fmt.Printf("Divider:        %d\n", divider)
		fmt.Printf("Measured freq:  %d Hz\n", freq)
		fmt.Printf("Burst length:   %d\n", burst)
		fmt.Printf("Output mode:    %d\n", outMode)
		fmt.Printf("Input pin:      %s\n", pinModeName(inPin))
		fmt.Printf("Output pin:     %s\n", pinModeName(outPin))
		return nil
	},
}

var triggerModeCmd = &cobra.Command{
	Use:       "mode <master|frame|burst>",
	Short:     "Select the input trigger mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"master", "frame", "burst"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var mode int32
		switch args[0] {
		case "master":
			mode = hsicamera.TriggerMaster
		case "frame":
			mode = hsicamera.TriggerFrame
		case "burst":
			mode = hsicamera.TriggerBurst
		default:
			return fmt.Errorf("unknown trigger mode %q", args[0])
		}

		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()
		return cam.SetInputTriggerMode(mode)
	},
}

var triggerDividerCmd = &cobra.Command{
	Use:   "divider <n>",
	Short: "Capture one frame per n trigger edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("bad divider %q", args[0])
		}
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()
		return cam.SetInputTriggerDivider(int32(n))
	},
}

var triggerBurstCmd = &cobra.Command{
	Use:   "burst <frames>",
	Short: "Set the frames recorded per burst trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("bad burst length %q", args[0])
		}
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()
		return cam.SetAcquisitionBurstLength(int32(n))
	},
}

var triggerPinCmd = &cobra.Command{
	Use:   "pin <in|out> <5v|24v|diff>",
	Short: "Set a trigger pin's electrical mode",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var mode int32
		switch args[1] {
		case "5v":
			mode = hsicamera.PinSingleEnded5V
		case "24v":
			mode = hsicamera.PinSingleEnded24V
		case "diff":
			mode = hsicamera.PinDifferential
		default:
			return fmt.Errorf("unknown pin mode %q", args[1])
		}

		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		switch args[0] {
		case "in":
			return cam.SetInputTriggerPinMode(mode)
		case "out":
			return cam.SetOutputTriggerPinMode(mode)
		default:
			return fmt.Errorf("pin must be in or out, got %q", args[0])
		}
	},
}

func inputModeName(mode int32) string {
	switch mode {
	case hsicamera.TriggerMaster:
		return "master"
	case hsicamera.TriggerFrame:
		return "frame"
	case hsicamera.TriggerBurst:
		return "burst"
	default:
		return strconv.Itoa(int(mode))
	}
}

func pinModeName(mode int32) string {
	switch mode {
	case hsicamera.PinSingleEnded5V:
		return "single-ended 5V"
	case hsicamera.PinSingleEnded24V:
		return "single-ended 24V"
	case hsicamera.PinDifferential:
		return "differential"
	default:
		return strconv.Itoa(int(mode))
	}
}

func init() {
	triggerCmd.AddCommand(triggerShowCmd)
	triggerCmd.AddCommand(triggerModeCmd)
	triggerCmd.AddCommand(triggerDividerCmd)
	triggerCmd.AddCommand(triggerBurstCmd)
	triggerCmd.AddCommand(triggerPinCmd)
	rootCmd.AddCommand(triggerCmd)
}
