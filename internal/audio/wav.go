package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// WAVWriter streams blocks into a 16-bit PCM WAV file. The header is written
// when the file is created and patched with the final sizes on Close.
type WAVWriter struct {
	file     *os.File
	out      *bufferedSeeker
	enc      *wav.Encoder
	channels int
	buf      goaudio.IntBuffer
	frames   int64
}

// CreateWAV creates or truncates path.
func CreateWAV(path string, sampleRate, channels int) (*WAVWriter, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	out := newBufferedSeeker(f)
	w := &WAVWriter{
		file:     f,
		out:      out,
		enc:      wav.NewEncoder(out, sampleRate, bitDepth, channels, 1),
		channels: channels,
		buf: goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}

	// An empty write forces the RIFF and data headers out now.
	if err := w.enc.Write(&w.buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := out.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return w, nil
}

// Write appends b. Its channel count must match the file.
func (w *WAVWriter) Write(b Block) error {
	if b.Channels != w.channels {
		return fmt.Errorf("block has %d channels, file has %d", b.Channels, w.channels)
	}
	if cap(w.buf.Data) < len(b.Samples) {
		w.buf.Data = make([]int, len(b.Samples))
	}
	w.buf.Data = w.buf.Data[:len(b.Samples)]
	for i, s := range b.Samples {
		w.buf.Data[i] = int(s)
	}
	if err := w.enc.Write(&w.buf); err != nil {
		return err
	}
	w.frames += int64(b.Frames())
	return nil
}

// Frames returns the number of frames written so far.
func (w *WAVWriter) Frames() int64 {
	return w.frames
}

// Close finalizes the header and closes the file.
func (w *WAVWriter) Close() error {
	errEnc := w.enc.Close()
	errFlush := w.out.Flush()
	errSync := w.file.Sync()
	errClose := w.file.Close()
	return errors.Join(errEnc, errFlush, errSync, errClose)
}

// PCM is a fully decoded 16-bit file.
type PCM struct {
	Data       []int
	Channels   int
	SampleRate int
}

// Frames returns the number of frames in p.
func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Data) / p.Channels
}

// ReadPCM16 decodes a whole WAV file. Anything other than 16-bit PCM is
// rejected with ErrUnsupportedFormat.
func ReadPCM16(path string) (PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return PCM{}, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFormat, path)
	}
	if dec.BitDepth != bitDepth {
		return PCM{}, fmt.Errorf("%w: %d-bit samples in %s", ErrUnsupportedFormat, dec.BitDepth, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return PCM{
		Data:       buf.Data,
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// bufferedSeeker batches the encoder's per-sample writes and flushes before
// every seek.
type bufferedSeeker struct {
	f *os.File
	w *bufio.Writer
}

func newBufferedSeeker(f *os.File) *bufferedSeeker {
	return &bufferedSeeker{f: f, w: bufio.NewWriterSize(f, 64*1024)}
}

func (b *bufferedSeeker) Write(p []byte) (int, error) {
	return b.w.Write(p)
}

func (b *bufferedSeeker) Seek(offset int64, whence int) (int64, error) {
	if err := b.w.Flush(); err != nil {
		return 0, err
	}
	return b.f.Seek(offset, whence)
}

func (b *bufferedSeeker) Flush() error {
	return b.w.Flush()
}

var _ io.WriteSeeker = (*bufferedSeeker)(nil)
