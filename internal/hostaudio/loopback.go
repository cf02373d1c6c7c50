package hostaudio

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/device"
)

// loopbackQueueCallbacks is the number of device callbacks buffered between
// the audio thread and Read.
const loopbackQueueCallbacks = 64

// Loopback opens system-output capture through miniaudio. Only backends with
// a loopback mode (WASAPI) support it; elsewhere Open fails.
type Loopback struct {
	log zerolog.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

func NewLoopback(log zerolog.Logger) *Loopback {
	return &Loopback{log: log}
}

func (l *Loopback) context() (*malgo.AllocatedContext, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil {
		return l.ctx, nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		l.log.Debug().Str("backend", "miniaudio").Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("init malgo context: %w", err)
	}
	l.ctx = ctx
	return ctx, nil
}

// Open captures what is playing on dev. The render device is matched by name
// against miniaudio's playback list; without a match the default output is
// used.
func (l *Loopback) Open(dev device.Descriptor, dir device.Direction, cfg audio.StreamConfig) (audio.Stream, error) {
	if dir != device.Loopback {
		return nil, fmt.Errorf("loopback cannot open %s endpoints", dir)
	}
	ctx, err := l.context()
	if err != nil {
		return nil, err
	}
	frames := cfg.FramesPerBlock
	if frames <= 0 {
		frames = audio.DefaultFramesPerBlock
	}

	s := newLoopbackStream(cfg.Channels, frames, cfg.SampleRate, l.log.With().Str("device", dev.Name).Logger())

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(frames)
	if id, ok := l.lookup(ctx, dev.Name); ok {
		s.id = id
		deviceConfig.Capture.DeviceID = s.id.Pointer()
	} else {
		l.log.Warn().Str("device", dev.Name).Msg("Render device not found by name, using default output")
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSample []byte, frameCount uint32) {
			// The backend reuses its buffer.
			b := make([]byte, len(pInputSample))
			copy(b, pInputSample)
			select {
			case s.data <- b:
			default:
				s.dropped.Add(1)
			}
		},
		Stop: func() {
			s.stopOnce.Do(func() { close(s.stopped) })
		},
	}

	d, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init loopback device: %w", err)
	}
	s.dev = d
	if err := d.Start(); err != nil {
		d.Uninit()
		return nil, fmt.Errorf("start loopback device: %w", err)
	}
	return s, nil
}

func (l *Loopback) lookup(ctx *malgo.AllocatedContext, name string) (malgo.DeviceID, bool) {
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		l.log.Warn().Err(err).Msg("Failed to list playback devices")
		return malgo.DeviceID{}, false
	}
	want := strings.ToLower(name)
	for _, info := range infos {
		got := strings.ToLower(info.Name())
		if got == want || (want != "" && strings.Contains(got, want)) || (got != "" && strings.Contains(want, got)) {
			return info.ID, true
		}
	}
	return malgo.DeviceID{}, false
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx == nil {
		return nil
	}
	err := l.ctx.Uninit()
	l.ctx.Free()
	l.ctx = nil
	return err
}

// loopbackStream reassembles callback buffers into fixed-size blocks. The
// loopback endpoint delivers nothing while the output is silent, so a Read
// that waits longer than two block periods pads the block with silence.
type loopbackStream struct {
	dev      *malgo.Device
	id       malgo.DeviceID
	data     chan []byte
	stopped  chan struct{}
	stopOnce sync.Once
	dropped  atomic.Int64

	channels int
	frames   int
	timeout  time.Duration
	pending  []int16
	log      zerolog.Logger

	closeOnce sync.Once
}

func newLoopbackStream(channels, frames, sampleRate int, log zerolog.Logger) *loopbackStream {
	timeout := time.Second
	if sampleRate > 0 {
		timeout = 2 * time.Duration(frames) * time.Second / time.Duration(sampleRate)
	}
	return &loopbackStream{
		data:     make(chan []byte, loopbackQueueCallbacks),
		stopped:  make(chan struct{}),
		channels: channels,
		frames:   frames,
		timeout:  timeout,
		log:      log,
	}
}

func (s *loopbackStream) Read() (audio.Block, error) {
	want := s.frames * s.channels
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for len(s.pending) < want {
		select {
		case b := <-s.data:
			s.pending = appendS16LE(s.pending, b)
		case <-s.stopped:
			if n := len(s.pending) - len(s.pending)%s.channels; n > 0 {
				return s.take(n), nil
			}
			return audio.Block{}, io.EOF
		case <-timer.C:
			s.pending = append(s.pending, make([]int16, want-len(s.pending))...)
		}
	}
	return s.take(want), nil
}

func (s *loopbackStream) take(n int) audio.Block {
	samples := make([]int16, n)
	copy(samples, s.pending)
	s.pending = append(s.pending[:0], s.pending[n:]...)
	return audio.Block{Samples: samples, Channels: s.channels}
}

func (s *loopbackStream) Close() error {
	s.closeOnce.Do(func() {
		if s.dev != nil {
			s.dev.Uninit()
		}
		if n := s.dropped.Load(); n > 0 {
			s.log.Warn().Int64("callbacks", n).Msg("Loopback buffers dropped")
		}
	})
	return nil
}

func appendS16LE(dst []int16, b []byte) []int16 {
	for i := 0; i+1 < len(b); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(b[i:])))
	}
	return dst
}
