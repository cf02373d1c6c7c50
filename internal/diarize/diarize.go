// Package diarize attributes transcript segments to speakers.
package diarize

import (
	"context"
	"strings"

	"github.com/petems/echoframe/internal/transcribe"
)

// Turn is a span during which one speaker is judged active.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarizer detects speaker turns in a recording.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]Turn, error)
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	return max(0, min(aEnd, bEnd)-max(aStart, bStart))
}

// Label returns a copy of segments in which each segment's speaker is the
// turn overlapping it the most. On equal overlap the earlier turn in turns
// wins. Segments overlapping no turn get an empty speaker. Labels found in
// speakerMap are renamed.
func Label(segments []transcribe.Segment, turns []Turn, speakerMap map[string]string) []transcribe.Segment {
	out := make([]transcribe.Segment, len(segments))
	for i, seg := range segments {
		best := ""
		bestOverlap := 0.0
		for _, t := range turns {
			if ov := overlap(seg.Start, seg.End, t.Start, t.End); ov > bestOverlap {
				bestOverlap = ov
				best = t.Speaker
			}
		}
		if name, ok := speakerMap[best]; ok && best != "" {
			best = name
		}
		seg.Speaker = best
		out[i] = seg
	}
	return out
}

// ParseSpeakerMap parses "SPEAKER_00:Alice,SPEAKER_01:Bob". Pairs without a
// colon are ignored. Returns nil when nothing was parsed.
func ParseSpeakerMap(s string) map[string]string {
	var m map[string]string
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m
}
