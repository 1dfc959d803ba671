package audio

// Concat joins per-chunk buffers in order with no crossfade or gap.
func Concat(chunks [][]float32) []float32 {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]float32, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// PhaseShift runs x through the first-order all-pass filter
// y[n] = k*x[n] + y[n-1] - k*x[n-1] with zero initial state. k == 0 is a
// bypass and returns a copy of x, so a zero shift duplicates the channel.
func PhaseShift(x []float32, k float32) []float32 {
	y := make([]float32, len(x))
	if k == 0 {
		copy(y, x)
		return y
	}
	var x1, y1 float32
	for n, xn := range x {
		y[n] = k*xn + y1 - k*x1
		x1, y1 = xn, y[n]
	}
	return y
}

// Interleave returns mono samples laid out for the given channel count.
// For two channels the left channel is the input and the right channel is
// the input duplicated (k == 0) or phase shifted by k.
func Interleave(mono []float32, channels int, k float32) []float32 {
	if channels != 2 {
		return mono
	}
	right := PhaseShift(mono, k)
	out := make([]float32, 2*len(mono))
	for i, s := range mono {
		out[2*i] = s
		out[2*i+1] = right[i]
	}
	return out
}
