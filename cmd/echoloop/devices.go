package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"echoloop/internal/infra/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices usable as input_device or output_device",
	RunE: func(_ *cobra.Command, _ []string) error {
		devices, err := audio.ListDevices()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tNAME\tHOST API\tIN\tOUT\tRATE\tDEFAULT")
		for _, d := range devices {
			def := ""
			switch {
			case d.IsDefaultInput && d.IsDefaultOutput:
				def = "in,out"
			case d.IsDefaultInput:
				def = "in"
			case d.IsDefaultOutput:
				def = "out"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%.0f\t%s\n",
				d.Index, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, def)
		}
		return w.Flush()
	},
}
