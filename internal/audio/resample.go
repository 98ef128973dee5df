package audio

// Resampler converts a mono stream between sample rates with linear
// interpolation, carrying phase across calls so chunk boundaries are seamless.
type Resampler struct {
	step    float64 // input samples per output sample
	pos     float64 // next output position, relative to prev
	prev    float32
	hasPrev bool
}

// NewResampler creates a resampler from inRate to outRate.
func NewResampler(inRate, outRate int) *Resampler {
	if inRate <= 0 || outRate <= 0 {
		inRate, outRate = 1, 1
	}
	return &Resampler{step: float64(inRate) / float64(outRate)}
}

// Process resamples the next chunk of input.
func (r *Resampler) Process(in []float32) []float32 {
	if r.step == 1 {
		return in
	}
	if len(in) == 0 {
		return nil
	}

	buf := in
	if r.hasPrev {
		buf = make([]float32, 0, len(in)+1)
		buf = append(buf, r.prev)
		buf = append(buf, in...)
	}

	last := float64(len(buf) - 1)
	out := make([]float32, 0, int(float64(len(in))/r.step)+1)
	for r.pos < last {
		i := int(r.pos)
		frac := float32(r.pos - float64(i))
		out = append(out, buf[i]+(buf[i+1]-buf[i])*frac)
		r.pos += r.step
	}

	r.pos -= last
	r.prev = buf[len(buf)-1]
	r.hasPrev = true
	return out
}
