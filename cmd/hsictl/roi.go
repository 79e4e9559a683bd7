package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	hsicamera "github.com/e7canasta/hsi-sensor-driver"
)

var roiCmd = &cobra.Command{
	Use:   "roi",
	Short: "Manage manual and calibrated wavelength regions",
}

var roiListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the manual-ROI region table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		regions, err := cam.ROILimits()
		if err != nil {
			return err
		}
		used := 0
		for i, r := range regions {
			if !r.Used {
				continue
			}
			used++
			active := " "
			if r.Active {
				active = "*"
			}
			fmt.Printf(" %s [%3d] %4d - %4d nm\n", active, i, r.MinWavelength, r.MaxWavelength)
		}
		fmt.Printf("%d regions, * = active\n", used)
		return nil
	},
}

var roiSetCmd = &cobra.Command{
	Use:   "set <index,index,...>",
	Short: "Activate manual-ROI regions by table index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var indices []int
		for _, part := range strings.Split(args[0], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("bad region index %q", part)
			}
			indices = append(indices, n)
		}

		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		if err := cam.WriteROIRegions(indices); err != nil {
			return err
		}
		fmt.Printf("%d regions active, %d effective bands\n", len(indices), len(indices)*4)
		return nil
	},
}

var roiAutoCmd = &cobra.Command{
	Use:   "auto <count>",
	Short: "Let the device pick regions itself",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad region count %q", args[0])
		}

		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		regions, err := cam.AutoSelectManualROI(n)
		if err != nil {
			return err
		}
		for i, r := range regions {
			if r.Active {
				fmt.Printf(" [%3d] %4d - %4d nm\n", i, r.MinWavelength, r.MaxWavelength)
			}
		}
		return nil
	},
}

var roiBandsCmd = &cobra.Command{
	Use:   "bands [start:end ...]",
	Short: "Show or program the calibrated wavelength bands",
	RunE: func(cmd *cobra.Command, args []string) error {
		cam, err := connect()
		if err != nil {
			return err
		}
		defer cam.Close()

		if len(args) == 0 {
			bands, err := cam.CalibratedROI()
			if err != nil {
				return err
			}
			if len(bands) == 0 {
				fmt.Println("no calibrated bands programmed")
				return nil
			}
			for i, b := range bands {
				fmt.Printf(" [%d] %4d - %4d nm\n", i, b.Start, b.End)
			}
			return nil
		}

		var bands []hsicamera.WavelengthBand
		for _, arg := range args {
			start, end, ok := strings.Cut(arg, ":")
			if !ok {
				return fmt.Errorf("band %q, want start:end", arg)
			}
			s, err := strconv.ParseInt(start, 10, 32)
			if err != nil {
				return fmt.Errorf("bad band start %q", start)
			}
			e, err := strconv.ParseInt(end, 10, 32)
			if err != nil {
				return fmt.Errorf("bad band end %q", end)
			}
			bands = append(bands, hsicamera.WavelengthBand{Start: int32(s), End: int32(e)})
		}
		if err := cam.SetCalibratedROI(bands); err != nil {
			return err
		}
		fmt.Printf("%d bands programmed\n", len(bands))
		return nil
	},
}

func init() {
	roiCmd.AddCommand(roiListCmd)
	roiCmd.AddCommand(roiSetCmd)
	roiCmd.AddCommand(roiAutoCmd)
	roiCmd.AddCommand(roiBandsCmd)
	rootCmd.AddCommand(roiCmd)
}
