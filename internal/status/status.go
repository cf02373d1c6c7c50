// Package status renders recorder progress, live text and input levels on a
// terminal.
package status

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
)

// Terminal implements recorder.StatusUpdater and live.Sink. Every line is
// written whole so concurrent callers never interleave.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	state string
}

func New(out io.Writer) *Terminal {
	return &Terminal{out: out, state: "idle"}
}

// Status update methods for the recorder to call
func (t *Terminal) SetIdle() {
	t.updateStatus("idle")
}

func (t *Terminal) SetRecording() {
	t.updateStatus("recording")
}

func (t *Terminal) SetFinalizing() {
	t.updateStatus("finalizing")
}

func (t *Terminal) Message(msg string) {
	t.println("   " + msg)
}

// Publish prints one piece of live transcription.
func (t *Terminal) Publish(text string) {
	t.println("» " + text)
}

// Levels prints one meter line: per-channel RMS bars with the held peak.
func (t *Terminal) Levels(levels, peaks []float64) {
	if len(levels) == 0 {
		return
	}
	t.println(FormatLevels(levels, peaks, 20))
}

func (t *Terminal) State() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Terminal) updateStatus(status string) {
	t.mu.Lock()
	t.state = status
	t.mu.Unlock()
	t.println(fmt.Sprintf("🎤 %s %s", emojiForStatus(status), status))
}

func (t *Terminal) println(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "finalizing":
		return "🟡" // Yellow - transcribing/diarizing
	default:
		return "🟢" // Green - ready/idle
	}
}

// FormatLevels draws "ch1 [####|     ]" for every channel. Levels and peaks
// are in [0, 1]; the peak marker is omitted when it falls inside the bar.
func FormatLevels(levels, peaks []float64, width int) string {
	parts := make([]string, len(levels))
	for c, level := range levels {
		bar := []rune(strings.Repeat(" ", width))
		filled := cells(level, width)
		for i := 0; i < filled; i++ {
			bar[i] = '#'
		}
		if c < len(peaks) {
			if p := cells(peaks[c], width); p > filled {
				bar[p-1] = '|'
			}
		}
		parts[c] = fmt.Sprintf("ch%d [%s]", c+1, string(bar))
	}
	return strings.Join(parts, " ")
}

func cells(v float64, width int) int {
	n := int(math.Round(math.Max(0, math.Min(1, v)) * float64(width)))
	return n
}
