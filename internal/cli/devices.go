package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petems/echoframe/internal/device"
	"github.com/petems/echoframe/internal/hostaudio"
)

func newDevicesCmd(e *env) *cobra.Command {
	var loopback bool
	var match string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long:  "List devices that can record a microphone, or with --loopback the outputs whose audio can be captured.\nWith --match, print only the device a name fragment selects.",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := hostaudio.Open(e.log)
			if err != nil {
				return err
			}
			defer host.Close()

			dir := device.Input
			if loopback {
				dir = device.Loopback
			}
			registry := device.NewRegistry(host, e.cfg.Audio.PreferredDevices, e.log)

			if match != "" {
				d, err := registry.Find(match, dir)
				if err != nil {
					return err
				}
				return printDevices(e.out, dir, []device.Descriptor{d})
			}
			devices, err := registry.List(dir)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				return fmt.Errorf("%w (%s)", device.ErrNoDevicesFound, dir)
			}
			return printDevices(e.out, dir, devices)
		},
	}

	cmd.Flags().BoolVar(&loopback, "loopback", false, "list outputs available for system-audio capture")
	cmd.Flags().StringVar(&match, "match", "", "show only the first device whose name contains this fragment")

	return cmd
}

func printDevices(out io.Writer, dir device.Direction, devices []device.Descriptor) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tCHANNELS\tRATE\tHOST API")
	for _, d := range devices {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.0f\t%s\n", d.Index, d.Name, d.MaxChannels(dir), d.DefaultSampleRate, d.HostAPI)
	}
	return tw.Flush()
}
