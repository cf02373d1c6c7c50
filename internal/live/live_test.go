package live

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/audio/audiotest"
	"github.com/petems/echoframe/internal/transcribe"
	"github.com/petems/echoframe/internal/transcribe/transcribetest"
)

func TestOfferNeverBlocksWhenConsumerPaused(t *testing.T) {
	factory := &transcribetest.Factory{Engine: &transcribetest.Engine{}}
	w := NewWorker(factory.New, &Transcript{}, Options{SampleRate: 16000, QueueSize: 50}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			w.Offer(audiotest.Fill(1, 256, 0))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Offer blocked with a paused consumer")
	}

	stats := w.Stats()
	assert.Equal(t, int64(200), stats.Offered)
	assert.Equal(t, int64(50), stats.Enqueued)
	assert.Equal(t, int64(150), stats.Dropped)
	assert.Equal(t, stats.Offered, stats.Enqueued+stats.Dropped)

	// Never started: Stop must not wait on a goroutine that does not exist.
	w.Stop()
	w.Stop()
	assert.False(t, w.Offer(audiotest.Fill(1, 1, 0)))
	assert.Equal(t, int64(151), w.Stats().Dropped)
}

func TestWorkerWindowsOverlapAndFlush(t *testing.T) {
	engine := &transcribetest.Engine{}
	factory := &transcribetest.Factory{Engine: engine}
	sink := &Transcript{}
	w := NewWorker(factory.New, sink, Options{
		Model:          "tiny",
		Language:       "en",
		SampleRate:     1000,
		WindowSeconds:  1,
		OverlapSeconds: 0.25,
	}, zerolog.Nop())

	w.Start(context.Background())
	for i := 0; i < 13; i++ {
		require.True(t, w.Offer(audiotest.Fill(1, 200, 0)))
	}
	w.Stop()

	var sizes []int
	for _, c := range engine.Calls() {
		sizes = append(sizes, c.Samples)
		assert.Equal(t, 1000, c.SampleRate)
		assert.Equal(t, "en", c.Language)
	}
	// Windows close after 1000, 1800 and 2600 samples; the 350-sample tail
	// holds 100 new samples and is flushed.
	assert.Equal(t, []int{1000, 1000, 1000, 350}, sizes)
	assert.Equal(t, []string{"window 0", "window 1", "window 2", "window 3"}, sink.Parts())
	assert.Equal(t, []string{"tiny"}, factory.Models())
	assert.True(t, engine.Closed())
}

func TestWorkerSkipsFlushWhenTailAlreadyCovered(t *testing.T) {
	engine := &transcribetest.Engine{}
	factory := &transcribetest.Factory{Engine: engine}
	w := NewWorker(factory.New, &Transcript{}, Options{SampleRate: 1000, WindowSeconds: 1, OverlapSeconds: 0.25}, zerolog.Nop())

	w.Start(context.Background())
	for i := 0; i < 10; i++ {
		w.Offer(audiotest.Fill(1, 250, 0))
	}
	w.Stop()

	// 2500 samples end exactly on a window boundary.
	assert.Len(t, engine.Calls(), 3)
}

func TestWorkerFlushesShortRecording(t *testing.T) {
	engine := &transcribetest.Engine{}
	factory := &transcribetest.Factory{Engine: engine}
	w := NewWorker(factory.New, &Transcript{}, Options{SampleRate: 16000}, zerolog.Nop())

	w.Start(context.Background())
	w.Offer(audiotest.Fill(1, 8000, 0))
	w.Stop()

	calls := engine.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 8000, calls[0].Samples)
}

func TestWorkerDownmixesChannels(t *testing.T) {
	engine := &transcribetest.Engine{}
	factory := &transcribetest.Factory{Engine: engine}
	w := NewWorker(factory.New, &Transcript{}, Options{SampleRate: 100, WindowSeconds: 1, OverlapSeconds: 0}, zerolog.Nop())

	w.Start(context.Background())
	samples := make([]int16, 200)
	for i := 0; i < 100; i++ {
		samples[2*i] = 1000
		samples[2*i+1] = 3000
	}
	w.Offer(audio.Block{Samples: samples, Channels: 2})
	w.Stop()

	calls := engine.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 100, calls[0].Samples)
	assert.InDelta(t, 2000.0/32768, calls[0].First, 1e-6)
}

func TestWorkerEngineUnavailable(t *testing.T) {
	factory := &transcribetest.Factory{Err: transcribe.ErrEngineUnavailable}
	sink := &Transcript{}
	w := NewWorker(factory.New, sink, Options{SampleRate: 16000}, zerolog.Nop())

	w.Start(context.Background())
	w.Offer(audiotest.Fill(1, 100, 0))

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung after engine failure")
	}

	parts := sink.Parts()
	require.Len(t, parts, 1)
	assert.True(t, strings.HasPrefix(parts[0], "[Live transcription unavailable:"), parts[0])
}

func TestWorkerContinuesAfterWindowError(t *testing.T) {
	engine := &transcribetest.Engine{Respond: func(call int, mono []float32) ([]transcribe.Segment, error) {
		if call == 0 {
			return nil, errors.New("decoder hiccup")
		}
		return []transcribe.Segment{{Text: "recovered"}}, nil
	}}
	factory := &transcribetest.Factory{Engine: engine}
	sink := &Transcript{}
	w := NewWorker(factory.New, sink, Options{SampleRate: 100, WindowSeconds: 1, OverlapSeconds: 0}, zerolog.Nop())

	w.Start(context.Background())
	w.Offer(audiotest.Fill(1, 200, 0))
	w.Stop()

	assert.Equal(t, []string{"[Live transcription error: decoder hiccup]", "recovered"}, sink.Parts())
	assert.Equal(t, "[Live transcription error: decoder hiccup] recovered", sink.Text())
}

func TestSinkFunc(t *testing.T) {
	var mu sync.Mutex
	var got []string
	var s Sink = SinkFunc(func(text string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, text)
	})
	s.Publish("a")
	s.Publish("b")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{OverlapSeconds: 9}.withDefaults()
	assert.Equal(t, DefaultWindowSeconds, o.WindowSeconds)
	assert.Equal(t, DefaultOverlapSeconds, o.OverlapSeconds)
	assert.Equal(t, DefaultQueueSize, o.QueueSize)
}

func TestRunBlocksUntilStopped(t *testing.T) {
	engine := &transcribetest.Engine{}
	factory := &transcribetest.Factory{Engine: engine}
	sink := &Transcript{}
	w := NewWorker(factory.New, sink, Options{SampleRate: 1000, WindowSeconds: 1, OverlapSeconds: 0}, zerolog.Nop())

	returned := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(returned)
	}()

	for i := 0; i < 5; i++ {
		require.True(t, w.Offer(audiotest.Fill(1, 300, 0)))
	}
	w.Stop()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	// 1500 samples: one full window, then the 500-sample remainder.
	assert.Equal(t, []string{"window 0", "window 1"}, sink.Parts())

	w.Start(context.Background())
	assert.Len(t, engine.Calls(), 2, "a second start is ignored")
}
