package audio

// Float32ToPCM16 converts normalized float32 samples to 16-bit signed PCM.
// Samples outside [-1, 1] are clamped rather than wrapped.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		out[i] = int16(v * 32767)
	}
	return out
}
