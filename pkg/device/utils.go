package device

import (
	"golang.org/x/exp/rand"
)

func clearf32(a []float32) {
	for i := range a {
		a[i] = 0
	}
}

// sumf32 stores a+b in c, clipped to the [-1, 1] range of the sound card.
func sumf32(a, b, c []float32) {
	for i := range a {
		c[i] = clipf32(a[i] + b[i])
	}
}

func clipf32(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

func allocf32(n int) []float32 {
	return make([]float32, n)
}

// noise adds gaussian noise with the given standard deviation.
type noise struct {
	rng    *rand.Rand
	stddev float64
}

func newNoise(stddev float64, seed uint64) *noise {
	src := &rand.PCGSource{}
	src.Seed(seed)
	return &noise{rng: rand.New(src), stddev: stddev}
}

func (n *noise) add(a []float32) {
	if n == nil || n.stddev == 0 {
		return
	}
	for i := range a {
		a[i] += float32(n.rng.NormFloat64() * n.stddev)
	}
}

func f32toi32(in []float32, out []int32) {
	for i, v := range in {
		out[i] = int32(float64(clipf32(v)) * 0x7fffffff)
	}
}

func i32tof32(in []int32, out []float32) {
	for i, v := range in {
		out[i] = float32(float64(v) / 0x80000000)
	}
}
