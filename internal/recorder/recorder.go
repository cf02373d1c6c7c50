// Package recorder ties capture, live transcription and post-processing into
// one Idle -> Recording -> Finalizing -> Idle lifecycle.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/device"
	"github.com/petems/echoframe/internal/diarize"
	"github.com/petems/echoframe/internal/live"
	"github.com/petems/echoframe/internal/transcribe"
)

// ErrBusy is returned by Run while another recording is in progress.
var ErrBusy = errors.New("recorder is busy")

type State int

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

type Mode string

const (
	ModeMic    Mode = "mic"
	ModeSystem Mode = "system"
	ModeDual   Mode = "dual"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeMic, ModeSystem, ModeDual:
		return m, nil
	case "":
		return ModeMic, nil
	}
	return "", fmt.Errorf("unknown mode %q (want mic, system or dual)", s)
}

// StatusUpdater is an interface for reporting progress (e.g., a terminal)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetFinalizing()
	Message(msg string)
}

type Config struct {
	Registry *device.Registry
	Capturer *audio.Capturer
	// Engines builds the engine for full transcription and for the live
	// worker.
	Engines transcribe.EngineFactory
	// Diarizer is the external diarization service. When nil, speaker
	// labels come from per-channel energy.
	Diarizer      diarize.Diarizer
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// Request describes one recording and what to do with it afterwards.
type Request struct {
	Mode           Mode
	OutputPath     string
	SampleRate     int
	MicDevice      string // name fragment, "" for the preferred/default device
	SystemDevice   string
	MicChannels    int
	SystemChannels int
	// Duration stops the recording automatically. Zero records until Stop.
	Duration time.Duration
	Taps     []audio.Tap

	// Live enables the streaming worker. LiveSink, when set, receives the
	// text as it is produced.
	Live     *live.Options
	LiveSink live.Sink

	Transcribe bool
	Model      string
	Language   string
	// TranscribeChannels overrides the channel subset handed to full
	// transcription.
	TranscribeChannels []int

	Diarize          bool
	SpeakerMap       map[string]string
	SilenceThreshold float64
}

// Plan is the concrete endpoints and channel counts a Request resolves to.
type Plan struct {
	Mode           Mode
	Mic            device.Descriptor
	System         device.Descriptor
	MicChannels    int
	SystemChannels int
	Clamped        bool
}

// Channels is the channel count of the recording the plan produces.
func (p Plan) Channels() int {
	switch p.Mode {
	case ModeDual:
		return p.MicChannels + p.SystemChannels
	case ModeSystem:
		return p.SystemChannels
	default:
		return p.MicChannels
	}
}

// Outcome is everything a finished Run produced. Err holds the first
// post-processing failure; the recording itself is kept regardless.
type Outcome struct {
	Plan           Plan
	Recording      audio.Result
	TranscribePath string
	Segments       []transcribe.Segment
	LiveText       string
	LiveStats      live.Stats
	Err            error
}

type Recorder struct {
	registry *device.Registry
	capturer *audio.Capturer
	engines  transcribe.EngineFactory
	diarizer diarize.Diarizer
	log      zerolog.Logger
	status   StatusUpdater

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

func New(cfg Config) *Recorder {
	return &Recorder{
		registry: cfg.Registry,
		capturer: cfg.Capturer,
		engines:  cfg.Engines,
		diarizer: cfg.Diarizer,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
	}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stop ends the current recording at the next block boundary. It may be
// called any number of times from any goroutine.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Plan resolves the devices and channel counts for req without opening
// anything.
func (r *Recorder) Plan(req Request) (Plan, error) {
	p := Plan{Mode: req.Mode}
	var clamped bool

	if req.Mode != ModeSystem {
		dev, err := r.registry.Resolve(req.MicDevice, device.Input)
		if err != nil {
			return Plan{}, fmt.Errorf("microphone: %w", err)
		}
		p.Mic = dev
		p.MicChannels, clamped = device.PlanChannels(req.MicChannels, dev.MaxChannels(device.Input))
		p.Clamped = p.Clamped || clamped
	}
	if req.Mode == ModeSystem || req.Mode == ModeDual {
		dev, err := r.registry.Resolve(req.SystemDevice, device.Loopback)
		if err != nil {
			return Plan{}, fmt.Errorf("system audio: %w", err)
		}
		p.System = dev
		p.SystemChannels, clamped = device.PlanChannels(req.SystemChannels, dev.MaxChannels(device.Loopback))
		p.Clamped = p.Clamped || clamped
	}
	return p, nil
}

// Run records until Stop, ctx cancellation or req.Duration, then runs the
// requested post-processing. Capture failures are returned as the error;
// post-processing failures are reported in Outcome.Err. The recorder is
// Idle again when Run returns.
func (r *Recorder) Run(ctx context.Context, req Request) (Outcome, error) {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	captureCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.state = Recording
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.cancel = nil
		r.state = Idle
		r.mu.Unlock()
		if r.status != nil {
			r.status.SetIdle()
		}
	}()

	if r.status != nil {
		r.status.SetRecording()
	}

	out := Outcome{}
	plan, err := r.Plan(req)
	if err != nil {
		r.message("Recording failed: %v", err)
		return out, err
	}
	out.Plan = plan
	if plan.Clamped {
		r.message("Channel count limited by device: mic %d, system %d", plan.MicChannels, plan.SystemChannels)
	}

	if err := r.record(ctx, captureCtx, req, &out); err != nil {
		r.log.Error().Err(err).Msg("Recording failed")
		r.message("Recording failed: %v", err)
		return out, err
	}
	r.log.Info().
		Str("path", out.Recording.AudioPath).
		Int("seconds", out.Recording.DurationSeconds).
		Int("channels", out.Recording.Channels).
		Msg("Recording saved")
	r.message("Saved %s (%ds)", out.Recording.AudioPath, out.Recording.DurationSeconds)

	r.mu.Lock()
	r.state = Finalizing
	r.mu.Unlock()
	if r.status != nil {
		r.status.SetFinalizing()
	}

	if err := r.finalize(ctx, req, &out); err != nil {
		r.log.Error().Err(err).Msg("Post-processing failed")
		r.message("Post-processing failed: %v", err)
		out.Err = err
	}
	return out, nil
}

// record runs capture and the optional live worker side by side. The worker
// is stopped as soon as capture returns so that full transcription never
// competes with it for the engine.
func (r *Recorder) record(ctx, captureCtx context.Context, req Request, out *Outcome) error {
	taps := append([]audio.Tap(nil), req.Taps...)

	var worker *live.Worker
	var transcript live.Transcript
	if req.Live != nil {
		opts := *req.Live
		opts.SampleRate = req.SampleRate
		if opts.Language == "" {
			opts.Language = req.Language
		}
		var sink live.Sink = &transcript
		if req.LiveSink != nil {
			sink = live.SinkFunc(func(text string) {
				transcript.Publish(text)
				req.LiveSink.Publish(text)
			})
		}
		worker = live.NewWorker(r.engines, sink, opts, r.log.With().Str("component", "live").Logger())
		taps = append(taps, worker)
	}

	var g errgroup.Group
	if worker != nil {
		g.Go(func() error {
			worker.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		if worker != nil {
			defer worker.Stop()
		}
		res, err := r.capture(captureCtx, req, out.Plan, taps)
		out.Recording = res
		return err
	})
	err := g.Wait()

	if worker != nil {
		out.LiveText = transcript.Text()
		out.LiveStats = worker.Stats()
		if out.LiveStats.Dropped > 0 {
			r.log.Warn().
				Int64("dropped", out.LiveStats.Dropped).
				Int64("offered", out.LiveStats.Offered).
				Msg("Live transcription skipped audio")
		}
	}
	return err
}

func (r *Recorder) capture(ctx context.Context, req Request, plan Plan, taps []audio.Tap) (audio.Result, error) {
	switch plan.Mode {
	case ModeDual:
		return r.capturer.CaptureDual(ctx, audio.DualRequest{
			Mic:            plan.Mic,
			System:         plan.System,
			OutputPath:     req.OutputPath,
			SampleRate:     req.SampleRate,
			MicChannels:    plan.MicChannels,
			SystemChannels: plan.SystemChannels,
			Duration:       req.Duration,
			Taps:           taps,
		})
	case ModeSystem:
		return r.capturer.Capture(ctx, audio.SingleRequest{
			Device:     plan.System,
			Direction:  device.Loopback,
			OutputPath: req.OutputPath,
			SampleRate: req.SampleRate,
			Channels:   plan.SystemChannels,
			Duration:   req.Duration,
			Taps:       taps,
		})
	default:
		return r.capturer.Capture(ctx, audio.SingleRequest{
			Device:     plan.Mic,
			Direction:  device.Input,
			OutputPath: req.OutputPath,
			SampleRate: req.SampleRate,
			Channels:   plan.MicChannels,
			Duration:   req.Duration,
			Taps:       taps,
		})
	}
}

func (r *Recorder) message(format string, args ...any) {
	if r.status != nil {
		r.status.Message(fmt.Sprintf(format, args...))
	}
}
