package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"

	"github.com/petems/echoframe/internal/transcribe"
)

// modelSampleRate is the only rate the ggml models accept.
const modelSampleRate = 16000

// Options selects and locates a model.
type Options struct {
	Model        string // "small", "base.en", ...
	ModelsDir    string
	Threads      int
	AutoDownload bool
}

// Engine is a transcribe.Engine backed by a whisper.cpp model. Calls are
// serialized; the model is not safe for concurrent contexts.
type Engine struct {
	mu        sync.Mutex
	model     whisper.Model
	modelPath string
	threads   int
	log       zerolog.Logger
}

var _ transcribe.Engine = (*Engine)(nil)

// ModelPath returns where the named model lives inside dir.
func ModelPath(dir, model string) string {
	return filepath.Join(dir, model+".bin")
}

// New loads the model, downloading it first when allowed. Every failure is
// reported as transcribe.ErrEngineUnavailable.
func New(opts Options, log zerolog.Logger) (*Engine, error) {
	log = log.With().Str("model", opts.Model).Logger()
	modelPath := ModelPath(opts.ModelsDir, opts.Model)

	if _, err := os.Stat(modelPath); errors.Is(err, os.ErrNotExist) {
		if !opts.AutoDownload {
			return nil, fmt.Errorf("%w: model %s not found at %s", transcribe.ErrEngineUnavailable, opts.Model, modelPath)
		}
		if err := newDownloader(log).downloadModel(opts.Model, modelPath); err != nil {
			return nil, fmt.Errorf("%w: failed to download model: %w", transcribe.ErrEngineUnavailable, err)
		}
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load model: %w", transcribe.ErrEngineUnavailable, err)
	}
	log.Info().Str("path", modelPath).Msg("Model loaded")

	return &Engine{
		model:     model,
		modelPath: modelPath,
		threads:   opts.Threads,
		log:       log,
	}, nil
}

// Factory returns an EngineFactory that loads the requested model with the
// rest of opts. An empty model name keeps opts.Model.
func Factory(opts Options, log zerolog.Logger) transcribe.EngineFactory {
	return func(model string) (transcribe.Engine, error) {
		o := opts
		if model != "" {
			o.Model = model
		}
		return New(o, log)
	}
}

func (e *Engine) Transcribe(ctx context.Context, mono []float32, sampleRate int, language string) ([]transcribe.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	samples := mono
	if sampleRate != modelSampleRate {
		samples = resample(mono, sampleRate, modelSampleRate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == nil {
		return nil, fmt.Errorf("%w: engine closed", transcribe.ErrEngineUnavailable)
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	if e.threads > 0 {
		wctx.SetThreads(uint(e.threads))
	}
	if language != "auto" && language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			e.log.Warn().Err(err).Str("language", language).Msg("Language hint ignored")
		}
	}
	wctx.SetTranslate(false)

	if err := wctx.Process(samples, nil); err != nil {
		return nil, fmt.Errorf("whisper process failed: %w", err)
	}

	var segments []transcribe.Segment
	for {
		if err := ctx.Err(); err != nil {
			return segments, err
		}
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return segments, fmt.Errorf("failed to read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, transcribe.Segment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  text,
		})
	}
	return segments, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model != nil {
		e.model.Close()
		e.model = nil
	}
	return nil
}
