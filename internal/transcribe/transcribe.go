// Package transcribe defines the speech engine contract shared by live and
// post-hoc transcription.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/petems/echoframe/internal/audio"
)

// ErrEngineUnavailable is returned when an engine cannot be constructed or
// has been closed.
var ErrEngineUnavailable = errors.New("transcription engine unavailable")

// Segment is a timestamped span of recognized text. Times are seconds from
// the start of the audio handed to the engine.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Engine turns mono audio into segments. Implementations may be slow and are
// always called off the capture path.
type Engine interface {
	Transcribe(ctx context.Context, mono []float32, sampleRate int, language string) ([]Segment, error)
	Close() error
}

// EngineFactory builds an engine for the named model.
type EngineFactory func(model string) (Engine, error)

// File transcribes a 16-bit WAV file. Multi-channel files are averaged to
// mono first. The result is ordered by start time.
func File(ctx context.Context, engine Engine, path, language string) ([]Segment, error) {
	pcm, err := audio.ReadPCM16(path)
	if err != nil {
		return nil, err
	}
	if pcm.Frames() == 0 {
		return nil, nil
	}

	segments, err := engine.Transcribe(ctx, pcm.MonoFloat32(), pcm.SampleRate, language)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe %s: %w", path, err)
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
	return segments, nil
}

// Text joins the text of segs with single spaces.
func Text(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// WriteJSON writes segs as an indented JSON array.
func WriteJSON(w io.Writer, segs []Segment) error {
	if segs == nil {
		segs = []Segment{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(segs)
}
