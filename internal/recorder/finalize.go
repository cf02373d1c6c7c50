package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/petems/echoframe/internal/audio"
	"github.com/petems/echoframe/internal/diarize"
	"github.com/petems/echoframe/internal/transcribe"
)

// finalize extracts the transcribable channels, transcribes them and labels
// speakers, in that order. A panic anywhere in here becomes an error.
func (r *Recorder) finalize(ctx context.Context, req Request, out *Outcome) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Post-processing panicked")
			err = fmt.Errorf("post-processing panicked: %v", p)
		}
	}()

	if !req.Transcribe {
		return nil
	}

	path := out.Recording.AudioPath
	if channels, suffix := transcribeChannels(req, out.Plan, out.Recording.Channels); channels != nil {
		extracted := strings.TrimSuffix(path, filepath.Ext(path)) + suffix
		r.message("Extracting channels %v", channels)
		if err := audio.ExtractChannels(path, extracted, channels); err != nil {
			return fmt.Errorf("channel extraction: %w", err)
		}
		path = extracted
	}
	out.TranscribePath = path

	r.message("Transcribing...")
	engine, err := r.engines(req.Model)
	if err != nil {
		return fmt.Errorf("full transcription: %w", err)
	}
	defer engine.Close()

	segments, err := transcribe.File(ctx, engine, path, req.Language)
	if err != nil {
		return fmt.Errorf("full transcription: %w", err)
	}
	out.Segments = segments
	r.message("Final transcription ready (%d segments)", len(segments))

	if !req.Diarize || len(segments) == 0 {
		return nil
	}

	r.message("Diarizing...")
	diarizer, diarizePath := r.diarizerFor(req, out)
	turns, err := diarizer.Diarize(ctx, diarizePath)
	if err != nil {
		return fmt.Errorf("diarization: %w", err)
	}
	out.Segments = diarize.Label(segments, turns, req.SpeakerMap)
	r.message("Diarization complete")
	return nil
}

// transcribeChannels picks the channel subset for full transcription and the
// suffix of the extracted file. A nil subset means the whole recording.
func transcribeChannels(req Request, plan Plan, recorded int) ([]int, string) {
	switch {
	case len(req.TranscribeChannels) > 0:
		return req.TranscribeChannels, ".channels.wav"
	case plan.Mode == ModeDual:
		return channelRange(plan.MicChannels), ".mic.wav"
	case plan.Mode == ModeMic && recorded > 2:
		return []int{0, 1}, ".front.wav"
	}
	return nil, ""
}

func channelRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// diarizerFor returns the external service with the transcribed file, or the
// energy fallback with the full multi-channel recording.
func (r *Recorder) diarizerFor(req Request, out *Outcome) (diarize.Diarizer, string) {
	if r.diarizer != nil {
		return r.diarizer, out.TranscribePath
	}
	energy := diarize.Energy{Threshold: req.SilenceThreshold}
	if out.Plan.Mode == ModeDual {
		energy.Groups = diarize.DualGroups(out.Plan.MicChannels, out.Plan.SystemChannels)
	}
	return energy, out.Recording.AudioPath
}
