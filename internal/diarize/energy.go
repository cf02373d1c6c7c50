package diarize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/petems/echoframe/internal/audio"
)

const (
	DefaultHop              = 500 * time.Millisecond
	DefaultSilenceThreshold = 0.01
)

// Group is a set of channels that belong to one speaker.
type Group struct {
	Name     string
	Channels []int
}

// DualGroups names the microphone and system halves of a dual recording.
func DualGroups(micChannels, systemChannels int) []Group {
	mic := Group{Name: "mic"}
	for c := 0; c < micChannels; c++ {
		mic.Channels = append(mic.Channels, c)
	}
	sys := Group{Name: "system"}
	for c := micChannels; c < micChannels+systemChannels; c++ {
		sys.Channels = append(sys.Channels, c)
	}
	return []Group{mic, sys}
}

// Energy is a credential-free Diarizer. Each hop is attributed to the
// channel group with the highest RMS above Threshold; consecutive hops with
// the same group merge into one turn. Without Groups every channel is its
// own speaker.
type Energy struct {
	Groups    []Group
	Hop       time.Duration
	Threshold float64
}

var _ Diarizer = Energy{}

func (e Energy) Diarize(ctx context.Context, audioPath string) ([]Turn, error) {
	pcm, err := audio.ReadPCM16(audioPath)
	if err != nil {
		return nil, err
	}
	if pcm.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d in %s", pcm.SampleRate, audioPath)
	}

	groups := e.Groups
	if len(groups) == 0 {
		for c := 0; c < pcm.Channels; c++ {
			groups = append(groups, Group{Name: fmt.Sprintf("channel %d", c+1), Channels: []int{c}})
		}
	}
	hopDur := e.Hop
	if hopDur <= 0 {
		hopDur = DefaultHop
	}
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	hop := max(1, int(hopDur.Seconds()*float64(pcm.SampleRate)))
	rate := float64(pcm.SampleRate)

	var turns []Turn
	open := false
	frames := pcm.Frames()
	for start := 0; start < frames; start += hop {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+hop, frames)

		best := -1
		bestRMS := threshold
		for gi, g := range groups {
			if rms := groupRMS(pcm, g.Channels, start, end); rms > bestRMS {
				best, bestRMS = gi, rms
			}
		}
		if best < 0 {
			open = false
			continue
		}

		speaker := groups[best].Name
		if open && turns[len(turns)-1].Speaker == speaker {
			turns[len(turns)-1].End = float64(end) / rate
			continue
		}
		turns = append(turns, Turn{Start: float64(start) / rate, End: float64(end) / rate, Speaker: speaker})
		open = true
	}
	return turns, nil
}

func groupRMS(pcm audio.PCM, channels []int, start, end int) float64 {
	var sum float64
	n := 0
	for _, c := range channels {
		if c < 0 || c >= pcm.Channels {
			continue
		}
		for f := start; f < end; f++ {
			v := float64(pcm.Data[f*pcm.Channels+c]) / 32768
			sum += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
