package status

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalStates(t *testing.T) {
	var buf bytes.Buffer
	term := New(&buf)
	assert.Equal(t, "idle", term.State())

	term.SetRecording()
	assert.Equal(t, "recording", term.State())
	term.SetFinalizing()
	term.SetIdle()

	assert.Equal(t, "🎤 🔴 recording\n🎤 🟡 finalizing\n🎤 🟢 idle\n", buf.String())
}

func TestTerminalMessagesAndLiveText(t *testing.T) {
	var buf bytes.Buffer
	term := New(&buf)

	term.Message("Saved out.wav (3s)")
	term.Publish("hello there")
	term.Levels(nil, nil)

	assert.Equal(t, "   Saved out.wav (3s)\n» hello there\n", buf.String())
}

func TestEmojiForStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"recording", "🔴"},
		{"finalizing", "🟡"},
		{"idle", "🟢"},
		{"unknown", "🟢"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, emojiForStatus(tt.status))
		})
	}
}

func TestFormatLevels(t *testing.T) {
	assert.Equal(t, "ch1 [##  |] ch2 [     ]", FormatLevels([]float64{0.4, 0}, []float64{1, 0}, 5))
	assert.Equal(t, "ch1 [###]", FormatLevels([]float64{2}, []float64{0.5}, 3), "levels are clamped and an inner peak is hidden")
}
