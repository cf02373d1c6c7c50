package whisper

import "github.com/oov/audio/resampler"

const resampleQuality = 10

// resample converts mono samples between rates in one pass. The output holds
// exactly len(in)*to/from samples: leading filter delay is skipped and the
// tail is pushed out with silence.
func resample(in []float32, from, to int) []float32 {
	if from <= 0 || from == to || len(in) == 0 {
		return in
	}
	want := len(in) * to / from
	r := resampler.NewWithSkipZeros(1, from, to, resampleQuality)

	src := make([]float32, len(in)+r.InputLatency())
	copy(src, in)

	out := make([]float32, 0, want+r.OutputLatency()+1)
	buf := make([]float32, 4096)
	for len(src) > 0 {
		read, written := r.ProcessFloat32(0, src, buf)
		out = append(out, buf[:written]...)
		if read == 0 && written == 0 {
			break
		}
		src = src[read:]
	}

	if len(out) >= want {
		return out[:want]
	}
	return append(out, make([]float32, want-len(out))...)
}
