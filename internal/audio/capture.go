package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/echoframe/internal/device"
)

// DefaultFramesPerBlock is the block size used when none is configured.
const DefaultFramesPerBlock = 1024

// Session is the state of one capture. It is owned by the capture loop;
// FramesWritten may be read from any goroutine.
type Session struct {
	ID                uuid.UUID
	OutputPath        string
	SampleRate        int
	RequestedChannels int
	Channels          int
	StartedAt         time.Time

	framesWritten atomic.Int64
}

// FramesWritten returns the number of frames committed to the output file.
func (s *Session) FramesWritten() int64 {
	return s.framesWritten.Load()
}

func (s *Session) result() Result {
	frames := s.FramesWritten()
	return Result{
		AudioPath:       s.OutputPath,
		DurationSeconds: int(frames / int64(s.SampleRate)),
		Frames:          frames,
		Channels:        s.Channels,
		SampleRate:      s.SampleRate,
	}
}

// Result describes a finished recording. DurationSeconds is derived from the
// frame count, never from wall-clock time.
type Result struct {
	AudioPath       string
	DurationSeconds int
	Frames          int64
	Channels        int
	SampleRate      int
}

// SingleRequest describes a one-endpoint capture.
type SingleRequest struct {
	Device     device.Descriptor
	Direction  device.Direction
	OutputPath string
	SampleRate int
	Channels   int
	// Duration stops capture after exactly Duration worth of frames. Zero
	// runs until the context is cancelled.
	Duration time.Duration
	Taps     []Tap
}

// DualRequest describes a synchronized microphone + loopback capture.
type DualRequest struct {
	Mic            device.Descriptor
	System         device.Descriptor
	OutputPath     string
	SampleRate     int
	MicChannels    int
	SystemChannels int
	Duration       time.Duration
	Taps           []Tap
}

// Capturer records hardware streams to WAV files.
type Capturer struct {
	opener         Opener
	framesPerBlock int
	log            zerolog.Logger
}

// NewCapturer creates a Capturer reading framesPerBlock frames per block.
func NewCapturer(opener Opener, framesPerBlock int, log zerolog.Logger) *Capturer {
	if framesPerBlock <= 0 {
		framesPerBlock = DefaultFramesPerBlock
	}
	return &Capturer{opener: opener, framesPerBlock: framesPerBlock, log: log}
}

// Capture records one endpoint until ctx is cancelled, the requested
// duration is reached, or the stream fails. The requested channel count is
// clamped to the endpoint's limit.
func (c *Capturer) Capture(ctx context.Context, req SingleRequest) (Result, error) {
	channels, clamped := device.PlanChannels(req.Channels, req.Device.MaxChannels(req.Direction))
	if clamped {
		c.log.Warn().
			Int("requested", req.Channels).
			Int("channels", channels).
			Str("device", req.Device.Name).
			Msg("Channel count clamped to device limit")
	}

	stream, err := c.opener.Open(req.Device, req.Direction, StreamConfig{
		SampleRate:     req.SampleRate,
		Channels:       channels,
		FramesPerBlock: c.framesPerBlock,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrStreamOpen, req.Device.Name, err)
	}
	defer stream.Close()

	sess := c.newSession(req.OutputPath, req.SampleRate, req.Channels, channels)
	log := c.log.With().Str("session", sess.ID.String()).Logger()
	log.Info().
		Str("device", req.Device.Name).
		Str("direction", req.Direction.String()).
		Int("channels", channels).
		Int("sample_rate", req.SampleRate).
		Str("path", req.OutputPath).
		Msg("Capture started")

	err = c.record(ctx, sess, req.Duration, req.Taps, stream.Read)
	res := sess.result()
	log.Info().Int64("frames", res.Frames).Int("seconds", res.DurationSeconds).Msg("Capture finished")
	return res, err
}

// CaptureDual records a microphone and a loopback endpoint into one file,
// microphone channels first. Both streams are read on this goroutine, one
// block each per iteration; when the blocks differ in length the longer one
// is truncated and its tail discarded.
func (c *Capturer) CaptureDual(ctx context.Context, req DualRequest) (Result, error) {
	micChannels, _ := device.PlanChannels(req.MicChannels, req.Mic.MaxChannels(device.Input))
	sysChannels, _ := device.PlanChannels(req.SystemChannels, req.System.MaxChannels(device.Loopback))
	if micChannels != req.MicChannels || sysChannels != req.SystemChannels {
		c.log.Warn().
			Int("mic_requested", req.MicChannels).
			Int("mic_channels", micChannels).
			Int("system_requested", req.SystemChannels).
			Int("system_channels", sysChannels).
			Msg("Channel counts clamped to device limits")
	}

	mic, err := c.opener.Open(req.Mic, device.Input, StreamConfig{
		SampleRate:     req.SampleRate,
		Channels:       micChannels,
		FramesPerBlock: c.framesPerBlock,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: mic %s: %w", ErrStreamOpen, req.Mic.Name, err)
	}
	defer mic.Close()

	sys, err := c.opener.Open(req.System, device.Loopback, StreamConfig{
		SampleRate:     req.SampleRate,
		Channels:       sysChannels,
		FramesPerBlock: c.framesPerBlock,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: system %s: %w", ErrStreamOpen, req.System.Name, err)
	}
	defer sys.Close()

	sess := c.newSession(req.OutputPath, req.SampleRate,
		req.MicChannels+req.SystemChannels, micChannels+sysChannels)
	log := c.log.With().Str("session", sess.ID.String()).Logger()
	log.Info().
		Str("mic", req.Mic.Name).
		Str("system", req.System.Name).
		Int("mic_channels", micChannels).
		Int("system_channels", sysChannels).
		Int("sample_rate", req.SampleRate).
		Str("path", req.OutputPath).
		Msg("Dual capture started")

	var discarded int64
	next := func() (Block, error) {
		m, err := mic.Read()
		if err != nil {
			return Block{}, err
		}
		s, err := sys.Read()
		if err != nil {
			return Block{}, err
		}
		if mf, sf := m.Frames(), s.Frames(); mf != sf {
			discarded += int64(max(mf, sf) - min(mf, sf))
		}
		return Multiplex(m, s), nil
	}

	err = c.record(ctx, sess, req.Duration, req.Taps, next)
	res := sess.result()
	log.Info().
		Int64("frames", res.Frames).
		Int("seconds", res.DurationSeconds).
		Int64("discarded_frames", discarded).
		Msg("Dual capture finished")
	return res, err
}

func (c *Capturer) newSession(path string, sampleRate, requested, channels int) *Session {
	return &Session{
		ID:                uuid.New(),
		OutputPath:        path,
		SampleRate:        sampleRate,
		RequestedChannels: requested,
		Channels:          channels,
		StartedAt:         time.Now(),
	}
}

// record owns the output file for the lifetime of the session. The stop
// signal is polled once per block.
func (c *Capturer) record(ctx context.Context, sess *Session, duration time.Duration, taps []Tap, next func() (Block, error)) (err error) {
	if sess.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sess.SampleRate)
	}
	w, err := CreateWAV(sess.OutputPath, sess.SampleRate, sess.Channels)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to finalize %s: %w", sess.OutputPath, cerr))
		}
	}()

	var target int64
	if duration > 0 {
		target = int64(duration) * int64(sess.SampleRate) / int64(time.Second)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		written := sess.FramesWritten()
		if target > 0 && written >= target {
			return nil
		}

		b, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream read failed: %w", err)
		}
		if b.Frames() == 0 {
			continue
		}
		if target > 0 && int64(b.Frames()) > target-written {
			b = b.Head(int(target - written))
		}

		if err := w.Write(b); err != nil {
			return fmt.Errorf("failed to write block: %w", err)
		}
		sess.framesWritten.Add(int64(b.Frames()))

		for _, t := range taps {
			t.Offer(b.Clone())
		}
	}
}
