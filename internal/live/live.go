// Package live runs best-effort transcription alongside a recording.
package live

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/transcribe"
)

const (
	DefaultWindowSeconds  = 4.0
	DefaultOverlapSeconds = 0.5
	DefaultQueueSize      = 50
)

// Sink receives recognized text in order.
type Sink interface {
	Publish(text string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(text string)

func (f SinkFunc) Publish(text string) { f(text) }

// Transcript accumulates published text. Safe for concurrent use.
type Transcript struct {
	mu    sync.Mutex
	parts []string
}

func (t *Transcript) Publish(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parts = append(t.parts, text)
}

func (t *Transcript) Parts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.parts...)
}

// Text joins everything published so far with spaces.
func (t *Transcript) Text() string {
	return strings.Join(t.Parts(), " ")
}

// Options configures a Worker. Zero values take the defaults.
type Options struct {
	Model          string
	Language       string
	SampleRate     int
	WindowSeconds  float64
	OverlapSeconds float64
	QueueSize      int
}

func (o Options) withDefaults() Options {
	if o.WindowSeconds <= 0 {
		o.WindowSeconds = DefaultWindowSeconds
	}
	if o.OverlapSeconds < 0 || o.OverlapSeconds >= o.WindowSeconds {
		o.OverlapSeconds = DefaultOverlapSeconds
	}
	if o.OverlapSeconds >= o.WindowSeconds {
		o.OverlapSeconds = 0
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	return o
}

// Stats counts hand-offs from the capture path. Offered always equals
// Enqueued plus Dropped.
type Stats struct {
	Offered  int64
	Enqueued int64
	Dropped  int64
}

type item struct {
	block audio.Block
	end   bool
}

// Worker slices incoming audio into overlapping windows and transcribes each
// one off the capture path. Adjacent windows share OverlapSeconds of audio,
// so consecutive texts may repeat a word or two.
type Worker struct {
	factory transcribe.EngineFactory
	sink    Sink
	opts    Options
	log     zerolog.Logger

	queue chan item
	stop  chan struct{}
	done  chan struct{}

	stopOnce sync.Once
	started  atomic.Bool

	enqueued atomic.Int64
	dropped  atomic.Int64
}

var _ audio.Tap = (*Worker)(nil)

func NewWorker(factory transcribe.EngineFactory, sink Sink, opts Options, log zerolog.Logger) *Worker {
	opts = opts.withDefaults()
	return &Worker{
		factory: factory,
		sink:    sink,
		opts:    opts,
		log:     log,
		queue:   make(chan item, opts.QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Engine calls use ctx.
func (w *Worker) Start(ctx context.Context) {
	if w.started.CompareAndSwap(false, true) {
		go w.run(ctx)
	}
}

// Run is Start without the goroutine: it returns once the worker has
// stopped and flushed. Only the first Start or Run has any effect.
func (w *Worker) Run(ctx context.Context) {
	if w.started.CompareAndSwap(false, true) {
		w.run(ctx)
	}
}

// Offer implements audio.Tap. It never blocks: when the queue is full or the
// worker has stopped the block is dropped.
func (w *Worker) Offer(b audio.Block) bool {
	select {
	case <-w.stop:
		w.dropped.Add(1)
		return false
	default:
	}
	select {
	case w.queue <- item{block: b}:
		w.enqueued.Add(1)
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Stop signals the worker, waits for it to flush the remaining audio and
// exit. It is safe to call more than once and from any goroutine.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		select {
		case w.queue <- item{end: true}:
		default:
		}
	})
	if w.started.Load() {
		<-w.done
	}
}

func (w *Worker) Stats() Stats {
	dropped := w.dropped.Load()
	enqueued := w.enqueued.Load()
	return Stats{Offered: enqueued + dropped, Enqueued: enqueued, Dropped: dropped}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	engine, err := w.factory(w.opts.Model)
	if err != nil {
		w.log.Warn().Err(err).Str("model", w.opts.Model).Msg("Live transcription unavailable")
		w.sink.Publish(fmt.Sprintf("[Live transcription unavailable: %v]", err))
		return
	}
	defer engine.Close()
	defer func() {
		w.log.Debug().
			Int64("enqueued", w.enqueued.Load()).
			Int64("dropped", w.dropped.Load()).
			Msg("Live transcription stopped")
	}()

	win := newWindower(w.opts.SampleRate, w.opts.WindowSeconds, w.opts.OverlapSeconds)
	transcribeWindow := func(samples []float32) {
		segs, err := engine.Transcribe(ctx, samples, w.opts.SampleRate, w.opts.Language)
		if err != nil {
			w.log.Warn().Err(err).Msg("Live window failed")
			w.sink.Publish(fmt.Sprintf("[Live transcription error: %v]", err))
			return
		}
		if text := transcribe.Text(segs); text != "" {
			w.sink.Publish(text)
		}
	}
	feed := func(b audio.Block) {
		win.push(audio.Downmix(audio.ToFloat32(b.Samples), b.Channels))
		for {
			samples, ok := win.next()
			if !ok {
				return
			}
			transcribeWindow(samples)
		}
	}

loop:
	for {
		select {
		case it := <-w.queue:
			if it.end {
				break loop
			}
			feed(it.block)
		case <-w.stop:
			break loop
		case <-ctx.Done():
			break loop
		}
	}
	if ctx.Err() != nil {
		return
	}

	// Blocks already queued before the stop still belong to the recording.
drain:
	for {
		select {
		case it := <-w.queue:
			if !it.end {
				feed(it.block)
			}
		default:
			break drain
		}
	}

	if rest, ok := win.flush(); ok {
		transcribeWindow(rest)
	}
}

// windower accumulates mono samples and cuts fixed windows that overlap by a
// fixed tail.
type windower struct {
	window  int
	overlap int
	buf     []float32
	fresh   int // samples not yet covered by any emitted window
}

func newWindower(sampleRate int, windowSeconds, overlapSeconds float64) *windower {
	window := max(1, int(windowSeconds*float64(sampleRate)))
	overlap := min(window-1, int(overlapSeconds*float64(sampleRate)))
	return &windower{window: window, overlap: max(0, overlap)}
}

func (w *windower) push(samples []float32) {
	w.buf = append(w.buf, samples...)
	w.fresh += len(samples)
}

func (w *windower) next() ([]float32, bool) {
	if len(w.buf) < w.window {
		return nil, false
	}
	out := make([]float32, w.window)
	copy(out, w.buf)
	w.buf = append(w.buf[:0], w.buf[w.window-w.overlap:]...)
	w.fresh = max(0, len(w.buf)-w.overlap)
	return out, true
}

// flush returns the remainder if it holds audio no window has covered.
func (w *windower) flush() ([]float32, bool) {
	if w.fresh == 0 || len(w.buf) == 0 {
		return nil, false
	}
	out := w.buf
	w.buf = nil
	w.fresh = 0
	return out, true
}
