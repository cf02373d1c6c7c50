package transcribe_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/transcribe"
)

type fakeEngine struct {
	segments []transcribe.Segment
	err      error

	gotRate int
	gotMono []float32
	gotLang string
}

func (f *fakeEngine) Transcribe(ctx context.Context, mono []float32, sampleRate int, language string) ([]transcribe.Segment, error) {
	f.gotMono = mono
	f.gotRate = sampleRate
	f.gotLang = language
	return f.segments, f.err
}

func (f *fakeEngine) Close() error { return nil }

func writeStereo(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stereo.wav")
	w, err := audio.CreateWAV(path, 22050, 2)
	require.NoError(t, err)
	b := audio.Block{Samples: make([]int16, 2*frames), Channels: 2}
	for f := 0; f < frames; f++ {
		b.Samples[2*f] = 16384
		b.Samples[2*f+1] = 0
	}
	require.NoError(t, w.Write(b))
	require.NoError(t, w.Close())
	return path
}

func TestFileDownmixesAndSorts(t *testing.T) {
	path := writeStereo(t, 100)
	engine := &fakeEngine{segments: []transcribe.Segment{
		{Start: 2, End: 3, Text: "second"},
		{Start: 0.5, End: 1, Text: "first"},
		{Start: 2, End: 2.5, Text: "tie"},
	}}

	segs, err := transcribe.File(context.Background(), engine, path, "en")
	require.NoError(t, err)

	assert.Equal(t, 22050, engine.gotRate)
	assert.Equal(t, "en", engine.gotLang)
	require.Len(t, engine.gotMono, 100)
	assert.InDelta(t, 0.25, engine.gotMono[0], 1e-6)

	require.Len(t, segs, 3)
	assert.Equal(t, "first", segs[0].Text)
	assert.Equal(t, "second", segs[1].Text, "equal starts keep engine order")
	assert.Equal(t, "tie", segs[2].Text)
}

func TestFileEngineError(t *testing.T) {
	path := writeStereo(t, 10)
	engine := &fakeEngine{err: transcribe.ErrEngineUnavailable}

	_, err := transcribe.File(context.Background(), engine, path, "")
	assert.ErrorIs(t, err, transcribe.ErrEngineUnavailable)
}

func TestFileRejectsMissingInput(t *testing.T) {
	_, err := transcribe.File(context.Background(), &fakeEngine{}, filepath.Join(t.TempDir(), "none.wav"), "")
	assert.Error(t, err)
}

func TestTextAndJSON(t *testing.T) {
	segs := []transcribe.Segment{
		{Start: 0, End: 1, Text: " hello "},
		{Start: 1, End: 2, Text: ""},
		{Start: 2, End: 3, Text: "world", Speaker: "mic"},
	}
	assert.Equal(t, "hello world", transcribe.Text(segs))

	var buf bytes.Buffer
	require.NoError(t, transcribe.WriteJSON(&buf, segs))
	assert.Contains(t, buf.String(), `"speaker": "mic"`)
	assert.NotContains(t, buf.String(), `"speaker": ""`)

	buf.Reset()
	require.NoError(t, transcribe.WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
