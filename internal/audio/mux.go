package audio

// Multiplex concatenates a and b along the channel axis, a's channels
// first. The result has as many frames as the shorter input; surplus frames
// of the longer input are dropped.
func Multiplex(a, b Block) Block {
	n := min(a.Frames(), b.Frames())
	ch := a.Channels + b.Channels
	out := make([]int16, n*ch)
	for i := 0; i < n; i++ {
		dst := out[i*ch:]
		copy(dst, a.Samples[i*a.Channels:(i+1)*a.Channels])
		copy(dst[a.Channels:], b.Samples[i*b.Channels:(i+1)*b.Channels])
	}
	return Block{Samples: out, Channels: ch}
}
