// Package fixed implements signed Q7.24 fixed-point numbers. The capture path
// uses them to measure block energy without touching the FPU's denormals.
package fixed

// 32 = 1 + N + D
type T int32

const (
	D     = 24
	N     = 31 - D
	Denom = 1 << D

	Zero = T(0)
	One  = T(Denom)
	Max  = T(1<<31 - 1)
	Min  = T(-1 << 31)
)

func (f T) Add(other T) T {
	return saturate(f.Int64() + other.Int64())
}

func (f T) Sub(other T) T {
	return saturate(f.Int64() - other.Int64())
}

func (f T) Mul(other T) T {
	return saturate((f.Int64() * other.Int64()) >> D)
}

func (f T) Div(other T) T {
	if other == 0 {
		if f < 0 {
			return Min
		}
		return Max
	}
	return saturate((f.Int64() << D) / other.Int64())
}

func (f T) Neg() T {
	return saturate(-f.Int64())
}

func (f T) Abs() T {
	if f < 0 {
		if f == Min {
			return Max
		}
		return -f
	}
	return f
}

func (f T) Int32() int32 {
	return int32(f)
}

func (f T) Int64() int64 {
	return int64(f)
}

func (f T) Int() int {
	return int(f >> D)
}

func (f T) Float() float64 {
	return float64(f) / Denom
}

func (f T) Float32() float32 {
	return float32(f.Float())
}

func FromFloat(f float64) T {
	switch {
	case f >= Max.Float():
		return Max
	case f <= Min.Float():
		return Min
	}
	return T(int32(f * Denom))
}

func FromFloat32(f float32) T {
	return FromFloat(float64(f))
}

func FromInt(i int) T {
	return saturate(int64(i) << D)
}

func saturate(v int64) T {
	switch {
	case v > int64(Max):
		return Max
	case v < int64(Min):
		return Min
	}
	return T(v)
}

// MeanSquare is the average power of samples. The sum is carried in 64 bits so
// a full symbol of full-scale samples does not overflow.
func MeanSquare(samples []float32) T {
	if len(samples) == 0 {
		return Zero
	}
	var acc int64
	for _, s := range samples {
		v := FromFloat32(s).Int64()
		acc += (v * v) >> D
	}
	return saturate(acc / int64(len(samples)))
}
