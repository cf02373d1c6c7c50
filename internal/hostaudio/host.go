// Package hostaudio binds the capture pipeline to the machine's audio
// devices: PortAudio for enumeration and input streams, miniaudio for
// system-output loopback.
package hostaudio

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/device"
)

// Host implements device.Enumerator and audio.Opener by routing each
// direction to the backend that can serve it.
type Host struct {
	input    *PortAudio
	loopback *Loopback
}

var (
	_ device.Enumerator = (*Host)(nil)
	_ audio.Opener      = (*Host)(nil)
)

func Open(log zerolog.Logger) (*Host, error) {
	pa, err := NewPortAudio(log.With().Str("backend", "portaudio").Logger())
	if err != nil {
		return nil, err
	}
	return &Host{
		input:    pa,
		loopback: NewLoopback(log.With().Str("backend", "loopback").Logger()),
	}, nil
}

func (h *Host) Devices() ([]device.Descriptor, error) {
	return h.input.Devices()
}

func (h *Host) Open(dev device.Descriptor, dir device.Direction, cfg audio.StreamConfig) (audio.Stream, error) {
	if dir == device.Loopback {
		return h.loopback.Open(dev, dir, cfg)
	}
	return h.input.Open(dev, dir, cfg)
}

func (h *Host) Close() error {
	return errors.Join(h.loopback.Close(), h.input.Close())
}
