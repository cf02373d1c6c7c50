// Package transcribetest provides a scriptable transcribe.Engine.
package transcribetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/petems/echoframe/internal/transcribe"
)

// Call records one Transcribe invocation.
type Call struct {
	Samples    int
	First      float32
	SampleRate int
	Language   string
}

// Engine returns Respond's result for every call, or one segment naming the
// call number when Respond is nil.
type Engine struct {
	Respond func(call int, mono []float32) ([]transcribe.Segment, error)

	mu     sync.Mutex
	calls  []Call
	closed bool
}

func (e *Engine) Transcribe(ctx context.Context, mono []float32, sampleRate int, language string) ([]transcribe.Segment, error) {
	e.mu.Lock()
	n := len(e.calls)
	c := Call{Samples: len(mono), SampleRate: sampleRate, Language: language}
	if len(mono) > 0 {
		c.First = mono[0]
	}
	e.calls = append(e.calls, c)
	e.mu.Unlock()

	if e.Respond != nil {
		return e.Respond(n, mono)
	}
	end := float64(len(mono)) / float64(sampleRate)
	return []transcribe.Segment{{Start: 0, End: end, Text: fmt.Sprintf("window %d", n)}}, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Factory always hands out e and records the requested model names.
type Factory struct {
	Engine *Engine
	Err    error

	mu     sync.Mutex
	models []string
}

func (f *Factory) New(model string) (transcribe.Engine, error) {
	f.mu.Lock()
	f.models = append(f.models, model)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Engine, nil
}

func (f *Factory) Models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}
