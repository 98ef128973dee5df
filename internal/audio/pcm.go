package audio

// FloatToPCM16 converts samples in [-1,1] to signed 16-bit PCM with
// symmetric clamping: negative values scale by 32768, the rest by 32767.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s < 0 {
			out[i] = int16(s * 0x8000)
		} else {
			out[i] = int16(s * 0x7FFF)
		}
	}
	return out
}

// downmix averages interleaved channels into mono.
func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
