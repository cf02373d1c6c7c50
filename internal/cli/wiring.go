package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/petems/echoframe/internal/config"
	"github.com/petems/echoframe/internal/diarize"
	"github.com/petems/echoframe/internal/transcribe"
	"github.com/petems/echoframe/internal/whisper"
)

// engines returns the whisper-backed factory unless a test swapped it.
func (e *env) engines() transcribe.EngineFactory {
	if e.engineFactory != nil {
		return e.engineFactory
	}
	return whisper.Factory(whisper.Options{
		Model:        e.cfg.Whisper.Model,
		ModelsDir:    config.ModelsPath(),
		Threads:      e.cfg.Whisper.Threads,
		AutoDownload: e.cfg.Whisper.AutoDownload,
	}, e.log.With().Str("component", "whisper").Logger())
}

// diarizer returns the external service when both its endpoint and its
// credential are configured. nil selects the energy fallback.
func (e *env) diarizer() diarize.Diarizer {
	if e.cfg.Diarization.Endpoint == "" || e.cfg.Diarization.Token == "" {
		return nil
	}
	return diarize.NewService(e.cfg.Diarization.Endpoint, e.cfg.Diarization.Token)
}

// writeSegments stores segs as JSON next to audioPath and returns the path.
func writeSegments(audioPath string, segs []transcribe.Segment) (string, error) {
	path := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := transcribe.WriteJSON(f, segs); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, f.Close()
}

func printSegments(out io.Writer, segs []transcribe.Segment) {
	for _, s := range segs {
		if s.Speaker != "" {
			fmt.Fprintf(out, "[%7.2f - %7.2f] %s: %s\n", s.Start, s.End, s.Speaker, s.Text)
			continue
		}
		fmt.Fprintf(out, "[%7.2f - %7.2f] %s\n", s.Start, s.End, s.Text)
	}
}
