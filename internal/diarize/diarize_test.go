package diarize

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/transcribe"
)

func TestLabelPicksMaximalOverlap(t *testing.T) {
	segments := []transcribe.Segment{
		{Start: 0, End: 4, Text: "hello"},
		{Start: 4, End: 6, Text: "tie"},
		{Start: 10, End: 11, Text: "alone"},
	}
	turns := []Turn{
		{Start: 0, End: 1, Speaker: "SPEAKER_00"},
		{Start: 1, End: 5, Speaker: "SPEAKER_01"},
		{Start: 5, End: 7, Speaker: "SPEAKER_00"},
	}

	got := Label(segments, turns, nil)
	require.Len(t, got, 3)
	assert.Equal(t, "SPEAKER_01", got[0].Speaker)
	assert.Equal(t, "SPEAKER_01", got[1].Speaker, "equal overlap keeps the first turn")
	assert.Equal(t, "", got[2].Speaker)

	assert.Equal(t, "", segments[0].Speaker, "input is not modified")
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, 4.0, got[0].End)
}

func TestLabelAppliesSpeakerMap(t *testing.T) {
	segments := []transcribe.Segment{{Start: 0, End: 1}, {Start: 1, End: 2}, {Start: 5, End: 6}}
	turns := []Turn{{Start: 0, End: 1, Speaker: "SPEAKER_00"}, {Start: 1, End: 2, Speaker: "SPEAKER_01"}}

	got := Label(segments, turns, ParseSpeakerMap("SPEAKER_00: Alice , bogus"))
	assert.Equal(t, "Alice", got[0].Speaker)
	assert.Equal(t, "SPEAKER_01", got[1].Speaker)
	assert.Equal(t, "", got[2].Speaker)
}

func TestParseSpeakerMap(t *testing.T) {
	assert.Nil(t, ParseSpeakerMap(""))
	assert.Nil(t, ParseSpeakerMap("no pairs here"))
	assert.Equal(t, map[string]string{"A": "Alice", "B": "Bob:Jr"}, ParseSpeakerMap("A:Alice,B:Bob:Jr"))
}

func writeDual(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dual.wav")
	const rate = 1000
	w, err := audio.CreateWAV(path, rate, 3)
	require.NoError(t, err)

	// 1s mic speech, 1s system speech, 0.5s silence, 0.5s mic speech.
	frame := func(mic, sys int16) []int16 { return []int16{mic, sys, sys} }
	var samples []int16
	for f := 0; f < 3000; f++ {
		switch {
		case f < 1000:
			samples = append(samples, frame(8000, 10)...)
		case f < 2000:
			samples = append(samples, frame(10, 8000)...)
		case f < 2500:
			samples = append(samples, frame(0, 0)...)
		default:
			samples = append(samples, frame(8000, 0)...)
		}
	}
	require.NoError(t, w.Write(audio.Block{Samples: samples, Channels: 3}))
	require.NoError(t, w.Close())
	return path
}

func TestEnergyDualGroups(t *testing.T) {
	path := writeDual(t)

	turns, err := Energy{Groups: DualGroups(1, 2)}.Diarize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Start: 0, End: 1, Speaker: "mic"},
		{Start: 1, End: 2, Speaker: "system"},
		{Start: 2.5, End: 3, Speaker: "mic"},
	}, turns)
}

func TestEnergyPerChannelDefault(t *testing.T) {
	path := writeDual(t)

	turns, err := Energy{Hop: 250 * time.Millisecond}.Diarize(context.Background(), path)
	require.NoError(t, err)
	require.NotEmpty(t, turns)
	assert.Equal(t, "channel 1", turns[0].Speaker)
	assert.Equal(t, 1.0, turns[0].End)
	assert.Equal(t, "channel 2", turns[1].Speaker, "first of two equally loud channels wins")
}

func TestServiceDiarize(t *testing.T) {
	path := writeDual(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "dual.wav", hdr.Filename)
		assert.NotEmpty(t, data)

		w.Write([]byte(`{"turns":[{"start":0,"end":1.5,"speaker":"SPEAKER_00"},{"start":1.5,"end":3,"speaker":"SPEAKER_01"}]}`))
	}))
	defer srv.Close()

	turns, err := NewService(srv.URL, "secret").Diarize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Start: 0, End: 1.5, Speaker: "SPEAKER_00"},
		{Start: 1.5, End: 3, Speaker: "SPEAKER_01"},
	}, turns)
}

func TestServiceHTTPError(t *testing.T) {
	path := writeDual(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewService(srv.URL, "wrong").Diarize(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad token")
}
