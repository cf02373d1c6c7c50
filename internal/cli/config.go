package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petems/echoframe/internal/config"
	"github.com/petems/echoframe/internal/logging"
)

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := e.configPath
			if path == "" {
				path = config.ConfigPath()
			}
			if err := config.WriteDefault(path); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Fprintf(e.out, "Wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "paths",
		Short: "Show where config, models and logs live",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := e.configPath
			if path == "" {
				path = config.ConfigPath()
			}
			fmt.Fprintf(e.out, "config: %s\nmodels: %s\nlog:    %s\n", path, config.ModelsPath(), logging.LogPath())
			return nil
		},
	})

	return cmd
}
