package hostaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/device"
)

// PortAudio enumerates every host device and opens input streams.
type PortAudio struct {
	log zerolog.Logger
}

// NewPortAudio initializes the PortAudio library. Call Close when done.
func NewPortAudio(log zerolog.Logger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudio{log: log}, nil
}

// Devices implements device.Enumerator.
func (p *PortAudio) Devices() ([]device.Descriptor, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]device.Descriptor, 0, len(devices))
	for i, d := range devices {
		desc := device.Descriptor{
			Name:              d.Name,
			Index:             i,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			desc.HostAPI = d.HostApi.Name
		}
		result = append(result, desc)
	}
	return result, nil
}

// Open opens an input stream delivering cfg.FramesPerBlock frames per Read.
func (p *PortAudio) Open(dev device.Descriptor, dir device.Direction, cfg audio.StreamConfig) (audio.Stream, error) {
	if dir != device.Input {
		return nil, fmt.Errorf("portaudio cannot open %s endpoints", dir)
	}
	info, err := p.lookup(dev)
	if err != nil {
		return nil, err
	}
	frames := cfg.FramesPerBlock
	if frames <= 0 {
		frames = audio.DefaultFramesPerBlock
	}

	buffer := make([]int16, frames*cfg.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: cfg.Channels,
			Latency:  info.DefaultHighInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: frames,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	return &paStream{
		stream:   stream,
		buffer:   buffer,
		channels: cfg.Channels,
		log:      p.log.With().Str("device", info.Name).Logger(),
	}, nil
}

// lookup prefers the enumeration index and falls back to the name, since
// indices shift when devices are hot-plugged.
func (p *PortAudio) lookup(dev device.Descriptor) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if dev.Index >= 0 && dev.Index < len(devices) && devices[dev.Index].Name == dev.Name {
		return devices[dev.Index], nil
	}
	for _, d := range devices {
		if d.Name == dev.Name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", dev.Name)
}

func (p *PortAudio) Close() error {
	return portaudio.Terminate()
}

type paStream struct {
	stream   *portaudio.Stream
	buffer   []int16
	channels int
	log      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
	overflows int
}

func (s *paStream) Read() (audio.Block, error) {
	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return audio.Block{}, err
		}
		// The block is still valid; the host dropped frames before it.
		s.overflows++
		s.log.Warn().Int("overflows", s.overflows).Msg("Input overflowed")
	}
	samples := make([]int16, len(s.buffer))
	copy(samples, s.buffer)
	return audio.Block{Samples: samples, Channels: s.channels}, nil
}

func (s *paStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.stream.Stop(), s.stream.Close())
	})
	return s.closeErr
}
