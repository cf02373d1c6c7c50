// Package audiotest provides in-memory hardware endpoints for tests.
package audiotest

import (
	"errors"
	"io"
	"sync"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/device"
)

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("stream closed")

// Stream is an audio.Stream whose blocks come from Next. Next receives the
// zero-based read index.
type Stream struct {
	Next func(i int) (audio.Block, error)

	mu     sync.Mutex
	reads  int
	closed bool
}

func (s *Stream) Read() (audio.Block, error) {
	s.mu.Lock()
	i := s.reads
	s.reads++
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return audio.Block{}, ErrClosed
	}
	return s.Next(i)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Pattern yields blocks of frames frames in which channel c always holds
// base+c. A positive limit ends the stream with io.EOF after limit blocks.
func Pattern(channels, frames int, base int16, limit int) func(int) (audio.Block, error) {
	return func(i int) (audio.Block, error) {
		if limit > 0 && i >= limit {
			return audio.Block{}, io.EOF
		}
		return Fill(channels, frames, base), nil
	}
}

// Fill returns a block in which channel c holds base+c.
func Fill(channels, frames int, base int16) audio.Block {
	samples := make([]int16, channels*frames)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			samples[f*channels+c] = base + int16(c)
		}
	}
	return audio.Block{Samples: samples, Channels: channels}
}

// Opener hands out Streams per direction and records what was requested.
type Opener struct {
	Streams map[device.Direction]func(cfg audio.StreamConfig) *Stream
	Errs    map[device.Direction]error

	mu      sync.Mutex
	opened  []*Stream
	configs []audio.StreamConfig
}

func (o *Opener) Open(dev device.Descriptor, dir device.Direction, cfg audio.StreamConfig) (audio.Stream, error) {
	if err := o.Errs[dir]; err != nil {
		return nil, err
	}
	build, ok := o.Streams[dir]
	if !ok {
		return nil, errors.New("no stream configured for " + dir.String())
	}
	s := build(cfg)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, s)
	o.configs = append(o.configs, cfg)
	return s, nil
}

// Opened returns every stream handed out so far.
func (o *Opener) Opened() []*Stream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Stream(nil), o.opened...)
}

// Configs returns the stream configs requested so far.
func (o *Opener) Configs() []audio.StreamConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]audio.StreamConfig(nil), o.configs...)
}

// Endless returns a stream builder producing Pattern blocks forever using
// the channel count each stream was opened with.
func Endless(frames int, base int16) func(cfg audio.StreamConfig) *Stream {
	return func(cfg audio.StreamConfig) *Stream {
		return &Stream{Next: Pattern(cfg.Channels, frames, base, 0)}
	}
}
