package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/device"
	"github.com/petems/echoframe/internal/diarize"
	"github.com/petems/echoframe/internal/hostaudio"
	"github.com/petems/echoframe/internal/live"
	"github.com/petems/echoframe/internal/permissions"
	"github.com/petems/echoframe/internal/recorder"
	"github.com/petems/echoframe/internal/status"
)

type recordFlags struct {
	mode           string
	out            string
	mic            string
	system         string
	micChannels    int
	systemChannels int
	sampleRate     int
	duration       time.Duration
	live           bool
	transcribe     bool
	model          string
	language       string
	channels       []int
	diarize        bool
	speakerMap     string
	meter          bool
}

func newRecordCmd(e *env) *cobra.Command {
	return newRecordCmdWith(e, &recordFlags{})
}

func newRecordCmdWith(e *env, f *recordFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record until Ctrl+C or --duration",
		Long: "Record the microphone (--mode mic), the system output (--mode system) or both into one WAV file\n" +
			"with the microphone channels first (--mode dual). Ctrl+C stops at the next block.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd, e)
			if err != nil {
				return err
			}
			return runRecord(cmd.Context(), e, req, f.meter)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.mode, "mode", "mic", "mic, system or dual")
	fl.StringVarP(&f.out, "out", "o", "", "output WAV path (default <output_dir>/recording-<time>.wav)")
	fl.StringVar(&f.mic, "mic", "", "microphone name fragment")
	fl.StringVar(&f.system, "system", "", "output device name fragment for loopback")
	fl.IntVar(&f.micChannels, "mic-channels", 0, "microphone channels (default from config)")
	fl.IntVar(&f.systemChannels, "system-channels", 0, "system channels (default from config)")
	fl.IntVar(&f.sampleRate, "rate", 0, "sample rate in Hz (default from config)")
	fl.DurationVarP(&f.duration, "duration", "d", 0, "stop automatically after this long")
	fl.BoolVar(&f.live, "live", false, "print a live transcription while recording")
	fl.BoolVar(&f.transcribe, "transcribe", false, "transcribe the recording when it ends")
	fl.StringVarP(&f.model, "model", "m", "", "whisper model for the final transcription")
	fl.StringVarP(&f.language, "language", "l", "", "spoken language, empty or \"auto\" to detect")
	fl.IntSliceVarP(&f.channels, "channels", "c", nil, "transcribe only these zero-based channels")
	fl.BoolVar(&f.diarize, "diarize", false, "label transcript segments with speakers")
	fl.StringVar(&f.speakerMap, "speaker-map", "", "rename speakers, e.g. SPEAKER_00:Alice,SPEAKER_01:Bob")
	fl.BoolVar(&f.meter, "meter", false, "print input levels once a second")

	return cmd
}

// request merges the flags over the loaded config.
func (f *recordFlags) request(cmd *cobra.Command, e *env) (recorder.Request, error) {
	cfg := e.cfg
	mode, err := recorder.ParseMode(f.mode)
	if err != nil {
		return recorder.Request{}, err
	}

	changed := cmd.Flags().Changed
	pick := func(flag string, v, fallback int) int {
		if changed(flag) {
			return v
		}
		return fallback
	}
	pickStr := func(flag, v, fallback string) string {
		if changed(flag) {
			return v
		}
		return fallback
	}

	out := f.out
	if out == "" {
		out = filepath.Join(cfg.OutputDir, "recording-"+time.Now().Format("20060102-150405")+".wav")
	}

	req := recorder.Request{
		Mode:               mode,
		OutputPath:         out,
		SampleRate:         pick("rate", f.sampleRate, cfg.Audio.SampleRateHz),
		MicDevice:          pickStr("mic", f.mic, cfg.Audio.MicDevice),
		SystemDevice:       pickStr("system", f.system, cfg.Audio.SystemDevice),
		MicChannels:        pick("mic-channels", f.micChannels, cfg.Audio.MicChannels),
		SystemChannels:     pick("system-channels", f.systemChannels, cfg.Audio.SystemChannels),
		Duration:           f.duration,
		Model:              pickStr("model", f.model, cfg.Whisper.Model),
		Language:           pickStr("language", f.language, cfg.Whisper.Language),
		TranscribeChannels: f.channels,
		Diarize:            f.diarize || cfg.Diarization.Enabled,
		SpeakerMap:         diarize.ParseSpeakerMap(pickStr("speaker-map", f.speakerMap, cfg.Diarization.SpeakerMap)),
		SilenceThreshold:   cfg.Diarization.SilenceThreshold,
	}
	// Speaker labels are attached to transcript segments, so diarizing
	// implies transcribing.
	req.Transcribe = f.transcribe || req.Diarize
	if req.SampleRate <= 0 {
		return recorder.Request{}, fmt.Errorf("sample rate must be positive, got %d", req.SampleRate)
	}
	if f.live || cfg.Live.Enabled {
		req.Live = &live.Options{
			Model:          cfg.Whisper.LiveModel,
			WindowSeconds:  cfg.Live.WindowSeconds,
			OverlapSeconds: cfg.Live.OverlapSeconds,
			QueueSize:      cfg.Live.QueueSize,
		}
	}
	return req, nil
}

func runRecord(ctx context.Context, e *env, req recorder.Request, meter bool) error {
	// macOS requires explicit microphone approval before capture works
	if req.Mode != recorder.ModeSystem {
		if err := permissions.EnsureMicrophone(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return err
	}

	host, err := hostaudio.Open(e.log)
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer host.Close()

	term := status.New(e.out)
	rec := recorder.New(recorder.Config{
		Registry:      device.NewRegistry(host, e.cfg.Audio.PreferredDevices, e.log),
		Capturer:      audio.NewCapturer(host, e.cfg.Audio.FramesPerBlock, e.log),
		Engines:       e.engines(),
		Diarizer:      e.diarizer(),
		Logger:        e.log,
		StatusUpdater: term,
	})
	if req.Live != nil {
		req.LiveSink = term
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go stopOnSignal(ctx, sigCh, func() {
		e.log.Info().Msg("Stopping recording, press Ctrl+C again to abort")
		rec.Stop()
	})

	if meter {
		m := audio.NewMeter()
		req.Taps = append(req.Taps, m)
		go runMeter(ctx, m, term)
	}

	outcome, err := rec.Run(ctx, req)
	if err != nil {
		return err
	}
	cancel()

	p := outcome.Plan
	fmt.Fprintf(e.out, "Recorded %s: %d channels, %d frames at %d Hz (%ds)\n",
		outcome.Recording.AudioPath, outcome.Recording.Channels, outcome.Recording.Frames,
		outcome.Recording.SampleRate, outcome.Recording.DurationSeconds)
	if p.Mode != recorder.ModeSystem {
		fmt.Fprintf(e.out, "  mic:    %s\n", p.Mic)
	}
	if p.Mode != recorder.ModeMic {
		fmt.Fprintf(e.out, "  system: %s\n", p.System)
	}
	if outcome.LiveStats.Dropped > 0 {
		fmt.Fprintf(e.out, "  live transcription skipped %d of %d blocks\n", outcome.LiveStats.Dropped, outcome.LiveStats.Offered)
	}

	if len(outcome.Segments) > 0 {
		printSegments(e.out, outcome.Segments)
		path, err := writeSegments(outcome.Recording.AudioPath, outcome.Segments)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "Wrote %s\n", path)
	}
	return outcome.Err
}

// stopOnSignal calls stop on the first signal and hands later signals back to
// the default handler, so a second Ctrl+C still terminates the process.
func stopOnSignal(ctx context.Context, sigCh chan os.Signal, stop func()) {
	select {
	case <-sigCh:
		signal.Stop(sigCh)
		stop()
	case <-ctx.Done():
	}
}

func runMeter(ctx context.Context, m *audio.Meter, term *status.Terminal) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			term.Levels(m.Levels())
			m.ResetPeaks()
		}
	}
}
