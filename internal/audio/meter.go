package audio

import (
	"math"
	"sync"
)

// Meter tracks per-channel RMS of the latest block and the peak seen since
// the last ResetPeaks. Values are normalized to [0, 1].
type Meter struct {
	mu     sync.Mutex
	levels []float64
	peaks  []float64
}

func NewMeter() *Meter {
	return &Meter{}
}

// Offer implements Tap.
func (m *Meter) Offer(b Block) bool {
	frames := b.Frames()
	if frames == 0 {
		return true
	}
	sums := make([]float64, b.Channels)
	peaks := make([]float64, b.Channels)
	for f := 0; f < frames; f++ {
		for c := 0; c < b.Channels; c++ {
			v := float64(b.Samples[f*b.Channels+c]) / int16Scale
			sums[c] += v * v
			if a := math.Abs(v); a > peaks[c] {
				peaks[c] = a
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.levels) != b.Channels {
		m.levels = make([]float64, b.Channels)
		m.peaks = make([]float64, b.Channels)
	}
	for c := range sums {
		m.levels[c] = math.Sqrt(sums[c] / float64(frames))
		m.peaks[c] = math.Max(m.peaks[c], peaks[c])
	}
	return true
}

// Levels returns copies of the current levels and held peaks.
func (m *Meter) Levels() (levels, peaks []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	levels = append([]float64(nil), m.levels...)
	peaks = append([]float64(nil), m.peaks...)
	return levels, peaks
}

func (m *Meter) ResetPeaks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.peaks {
		m.peaks[i] = 0
	}
}
