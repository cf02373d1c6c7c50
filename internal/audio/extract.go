package audio

import (
	"fmt"
	"os"
)

// extractFramesPerWrite bounds the size of each block handed to the writer.
const extractFramesPerWrite = 64 * 1024

// ExtractChannels writes the channels listed in indices, in that order, from
// inputPath to outputPath. Out-of-range indices are ignored. Sample rate and
// frame count are preserved. No file is written when the selection ends up
// empty.
func ExtractChannels(inputPath, outputPath string, indices []int) error {
	pcm, err := ReadPCM16(inputPath)
	if err != nil {
		return err
	}

	keep := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < pcm.Channels {
			keep = append(keep, idx)
		}
	}
	if len(keep) == 0 {
		return fmt.Errorf("%w: %v of %d channels", ErrNoValidChannels, indices, pcm.Channels)
	}

	w, err := CreateWAV(outputPath, pcm.SampleRate, len(keep))
	if err != nil {
		return err
	}

	frames := pcm.Frames()
	for start := 0; start < frames; start += extractFramesPerWrite {
		end := min(start+extractFramesPerWrite, frames)
		block := Block{Samples: make([]int16, (end-start)*len(keep)), Channels: len(keep)}
		for f := start; f < end; f++ {
			src := pcm.Data[f*pcm.Channels:]
			dst := block.Samples[(f-start)*len(keep):]
			for i, ch := range keep {
				dst[i] = int16(src[ch])
			}
		}
		if err := w.Write(block); err != nil {
			w.Close()
			os.Remove(outputPath)
			return fmt.Errorf("failed to write %s: %w", outputPath, err)
		}
	}
	return w.Close()
}
