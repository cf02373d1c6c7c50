package audio

import (
	"errors"

	"github.com/petems/echoframe/internal/device"
)

var (
	// ErrStreamOpen is returned when a hardware endpoint cannot be opened.
	ErrStreamOpen = errors.New("failed to open stream")
	// ErrUnsupportedFormat is returned for audio files that are not 16-bit PCM.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNoValidChannels is returned when a channel selection is empty after
	// out-of-range indices are discarded.
	ErrNoValidChannels = errors.New("no valid channels selected")
)

// Block is a run of interleaved 16-bit samples.
type Block struct {
	Samples  []int16
	Channels int
}

// Frames returns the number of complete frames in b.
func (b Block) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Clone returns a copy of b that shares no memory with it.
func (b Block) Clone() Block {
	samples := make([]int16, len(b.Samples))
	copy(samples, b.Samples)
	return Block{Samples: samples, Channels: b.Channels}
}

// Head returns the first n frames of b.
func (b Block) Head(n int) Block {
	if n >= b.Frames() {
		return b
	}
	if n < 0 {
		n = 0
	}
	return Block{Samples: b.Samples[:n*b.Channels], Channels: b.Channels}
}

// StreamConfig describes the format requested from a hardware endpoint.
type StreamConfig struct {
	SampleRate     int
	Channels       int
	FramesPerBlock int
}

// Stream is an open hardware endpoint. Read blocks until the next block is
// available; io.EOF means the endpoint ended cleanly.
type Stream interface {
	Read() (Block, error)
	Close() error
}

// Opener opens endpoints described by the device registry.
type Opener interface {
	Open(dev device.Descriptor, dir device.Direction, cfg StreamConfig) (Stream, error)
}

// Tap receives a private copy of every captured block. Offer must never
// block; a consumer that cannot keep up drops the block and returns false.
type Tap interface {
	Offer(b Block) bool
}
