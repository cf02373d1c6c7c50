package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/diarize"
	"github.com/petems/echoframe/internal/transcribe"
)

func newTranscribeCmd(e *env) *cobra.Command {
	var model, language, speakerMap string
	var channels []int
	var diarizeFlag bool

	cmd := &cobra.Command{
		Use:   "transcribe <audio.wav>",
		Short: "Transcribe an existing recording",
		Long:  "Transcribe a 16-bit WAV file, optionally restricted to some of its channels, and write the\nsegments as JSON next to it. With --diarize each segment is labelled with a speaker.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]
			if !cmd.Flags().Changed("model") {
				model = e.cfg.Whisper.Model
			}
			if !cmd.Flags().Changed("language") {
				language = e.cfg.Whisper.Language
			}
			if !cmd.Flags().Changed("speaker-map") {
				speakerMap = e.cfg.Diarization.SpeakerMap
			}

			source := path
			if len(channels) > 0 {
				source = strings.TrimSuffix(path, filepath.Ext(path)) + ".channels.wav"
				if err := audio.ExtractChannels(path, source, channels); err != nil {
					return err
				}
			}

			engine, err := e.engines()(model)
			if err != nil {
				return err
			}
			defer engine.Close()

			segs, err := transcribe.File(ctx, engine, source, language)
			if err != nil {
				return err
			}

			if diarizeFlag && len(segs) > 0 {
				var d diarize.Diarizer = diarize.Energy{Threshold: e.cfg.Diarization.SilenceThreshold}
				target := path
				if svc := e.diarizer(); svc != nil {
					d, target = svc, source
				}
				turns, err := d.Diarize(ctx, target)
				if err != nil {
					return fmt.Errorf("diarization: %w", err)
				}
				segs = diarize.Label(segs, turns, diarize.ParseSpeakerMap(speakerMap))
			}

			printSegments(e.out, segs)
			out, err := writeSegments(path, segs)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "whisper model (default from config)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "spoken language, empty or \"auto\" to detect")
	cmd.Flags().IntSliceVarP(&channels, "channels", "c", nil, "transcribe only these zero-based channels")
	cmd.Flags().BoolVar(&diarizeFlag, "diarize", false, "label segments with speakers")
	cmd.Flags().StringVar(&speakerMap, "speaker-map", "", "rename speakers, e.g. SPEAKER_00:Alice,SPEAKER_01:Bob")

	return cmd
}
