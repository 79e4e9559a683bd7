package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	hsicamera "github.com/e7canasta/hsi-sensor-driver"
)

var getCmd = &cobra.Command{
	Use:       "get <parameter>",
	Short:     "Read a device parameter",
	Long:      "Parameters: gain, exposure, framerate, mode, format, binning, temperature, limits, block-sendout, save-config, max-auto-exposure",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"gain", "exposure", "framerate", "mode", "format", "binning", "temperature", "limits", "block-sendout", "save-config", "max-auto-exposure"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		switch args[0] {
		case "gain":
			v, err := cam.Gain()
			if err != nil {
				return err
			}
			fmt.Printf("%d dB\n", v)
		case "exposure":
			v, err := cam.Exposure()
			if err != nil {
				return err
			}
			fmt.Printf("%d us\n", v)
		case "framerate":
			v, err := cam.Framerate()
			if err != nil {
				return err
			}
			fmt.Printf("%d Hz\n", v)
		case "mode":
			i := cam.Mode()
			m, _ := modeAt(cam, i)
			fmt.Printf("[%d] %s\n", i, m.Name)
		case "format":
			fmt.Printf("%s\n", cam.PixelFormat())
		case "binning":
			v, err := cam.SpatialBinning()
			if err != nil {
				return err
			}
			fmt.Printf("%d\n", v)
		case "temperature":
			v, err := cam.Temperature()
			if err != nil {
				return err
			}
			fmt.Printf("%.1f °C\n", v)
		case "limits":
			maxFPS, maxExp, err := cam.CurrentLimits()
			if err != nil {
				return err
			}
			fmt.Printf("max framerate: %d Hz\nmax exposure:  %d us\n", maxFPS, maxExp)
		case "block-sendout":
			v, err := cam.TCPBlockSendout()
			if err != nil {
				return err
			}
			fmt.Printf("%d\n", v)
		case "save-config":
			v, err := cam.SavedUserConfig()
			if err != nil {
				return err
			}
			fmt.Printf("%v\n", v)
		case "max-auto-exposure":
			v, err := cam.MaxAutoExposure()
			if err != nil {
				return err
			}
			fmt.Printf("%d us\n", v)
		default:
			return fmt.Errorf("unknown parameter %q", args[0])
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <parameter> <value>",
	Short: "Write a device parameter",
	Long:  "Parameters: gain, exposure, framerate, mode, format, binning, block-sendout, save-config, max-auto-exposure",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		param, value := args[0], args[1]
		switch param {
		case "format":
			pf, err := hsicamera.ParsePixelFormat(value)
			if err != nil {
				return err
			}
			return cam.SetPixelFormat(pf)
		case "save-config":
			on, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			return cam.SaveUserConfig(on)
		}

		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("value %q is not an integer", value)
		}
		v := int32(n)
		switch param {
		case "gain":
			return cam.SetGain(v)
		case "exposure":
			return cam.SetExposure(v)
		case "framerate":
			return cam.SetFramerate(v)
		case "mode":
			return cam.SetMode(int(v))
		case "binning":
			return cam.SetSpatialBinning(v)
		case "block-sendout":
			return cam.SetTCPBlockSendout(v)
		case "max-auto-exposure":
			return cam.SetMaxAutoExposure(v)
		default:
			return fmt.Errorf("unknown parameter %q", param)
		}
	},
}

func modeAt(cam *hsicamera.Camera, i int) (hsicamera.ModeInfo, bool) {
	modes := cam.Modes()
	if i < 0 || i >= len(modes) {
		return hsicamera.ModeInfo{}, false
	}
	return modes[i], true
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
}
