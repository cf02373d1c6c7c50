// Package cli is the echoframe command line.
package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petems/echoframe/internal/config"
	"github.com/petems/echoframe/internal/logging"
	"github.com/petems/echoframe/internal/transcribe"
)

// env is what every subcommand gets once the root has loaded the config.
type env struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
	out io.Writer

	engineFactory transcribe.EngineFactory
}

func NewRootCmd(version, commit string) *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "echoframe",
		Short:         "Record microphone and system audio, transcribe and label speakers",
		Long:          "echoframe records a microphone, the system output, or both into one multi-channel WAV file,\noptionally transcribing live while recording and labelling speakers afterwards.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd.OutOrStdout())
		},
	}
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("echoframe %s (%s)\n", version, commit))

	rootCmd.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	rootCmd.AddCommand(newDevicesCmd(e))
	rootCmd.AddCommand(newRecordCmd(e))
	rootCmd.AddCommand(newExtractCmd(e))
	rootCmd.AddCommand(newTranscribeCmd(e))
	rootCmd.AddCommand(newConfigCmd(e))

	return rootCmd
}

func (e *env) load(out io.Writer) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	e.cfg = cfg
	e.log = logging.New(level)
	e.out = out
	return nil
}
