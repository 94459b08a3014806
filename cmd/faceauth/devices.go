package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceauth/pkg/camera"
	"github.com/MrCodeEU/faceauth/pkg/logging"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List video devices usable as camera",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := camera.ListCameras()
		if err != nil {
			return err
		}
		printDevices(os.Stdout, devices, cfg.Camera.Device)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func printDevices(w io.Writer, devices []camera.DeviceInfo, configured string) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No video devices found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tNAME\tDRIVER\t")
	for _, d := range devices {
		if d.Driver == "" {
			if info, err := camera.Info(d.Path); err == nil {
				d.Driver = info.Driver
			} else {
				logging.WithError(err).Debug("Could not query device info")
			}
		}
		marker := ""
		if d.Path == configured {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t\n", d.Path, marker, d.Name, d.Driver)
	}
	_ = tw.Flush()
}
