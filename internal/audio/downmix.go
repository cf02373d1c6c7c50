package audio

const int16Scale = 32768.0

// ToFloat32 scales 16-bit samples into [-1, 1).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / int16Scale
	}
	return out
}

// Downmix averages interleaved channels into a new mono slice.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	return downmixInterleaved(interleaved, channels, len(interleaved)/channels)
}

// MonoFloat32 converts decoded PCM into mono float samples.
func (p PCM) MonoFloat32() []float32 {
	samples := make([]float32, len(p.Data))
	for i, v := range p.Data {
		samples[i] = float32(v) / int16Scale
	}
	return Downmix(samples, p.Channels)
}

func downmixInterleaved(input []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels == 1 {
		copy(out, input[:frames])
		return out
	}
	for f := 0; f < frames; f++ {
		var sum float32
		base := f * channels
		for c := 0; c < channels; c++ {
			sum += input[base+c]
		}
		out[f] = sum / float32(channels)
	}
	return out
}
