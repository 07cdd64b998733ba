package ofdm

import "math"

// fadeIn[i] rises from near 0 to near 1 over FadeLength samples; the fade out
// is the same curve read backwards.
var fadeIn = func() [FadeLength]float64 {
	var w [FadeLength]float64
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(math.Pi*(float64(i)+0.5)/FadeLength))
	}
	return w
}()

func applyFade(symbol []float32) {
	n := len(symbol)
	for i, w := range fadeIn {
		symbol[i] *= float32(w)
		symbol[n-1-i] *= float32(w)
	}
}
