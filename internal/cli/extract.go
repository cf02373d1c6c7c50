package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petems/echoframe/internal/audio"
)

func newExtractCmd(e *env) *cobra.Command {
	var channels []int

	cmd := &cobra.Command{
		Use:   "extract <input.wav> <output.wav>",
		Short: "Copy selected channels of a recording into a new file",
		Long:  "Copy the listed zero-based channels, in the order given, into a new 16-bit WAV file.\nIndices the input does not have are skipped.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.ExtractChannels(args[0], args[1], channels); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Wrote %s\n", args[1])
			return nil
		},
	}

	cmd.Flags().IntSliceVarP(&channels, "channels", "c", []int{0, 1}, "zero-based channel indices to keep")

	return cmd
}
