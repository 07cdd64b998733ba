package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(from, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(from + i)
	}
	return s
}

func TestWriteRead(t *testing.T) {
	b := New(8)
	b.Write(seq(0, 5))
	require.Equal(t, 5, b.Available())

	dst := make([]float32, 3)
	require.Equal(t, 3, b.Read(dst))
	assert.Equal(t, seq(0, 3), dst)
	assert.Equal(t, uint64(3), b.ReadIndex())
	assert.Equal(t, 2, b.Available())

	// wraps around the end of the storage
	b.Write(seq(5, 6))
	dst = make([]float32, 8)
	require.Equal(t, 8, b.Read(dst))
	assert.Equal(t, seq(3, 8), dst)
	assert.Zero(t, b.Lost())
}

func TestOverflowLosesOldest(t *testing.T) {
	b := New(DefaultCapacity)
	block := 256
	total := 0
	for i := 0; i < 400; i++ {
		b.Write(seq(total, block))
		total += block
		assert.LessOrEqual(t, b.Available(), DefaultCapacity)
	}

	require.Equal(t, DefaultCapacity, b.Available())
	assert.Equal(t, uint64(total-DefaultCapacity), b.Lost())

	dst := make([]float32, 4)
	b.Read(dst)
	assert.Equal(t, seq(total-DefaultCapacity, 4), dst)
}

func TestOversizedWrite(t *testing.T) {
	b := New(4)
	b.Write(seq(0, 10))
	dst := make([]float32, 4)
	require.Equal(t, 4, b.Read(dst))
	assert.Equal(t, seq(6, 4), dst)
	assert.Equal(t, uint64(6), b.Lost())

	// unread samples plus the ones that never fit
	b = New(4)
	b.Write(seq(0, 3))
	b.Write(seq(3, 10))
	require.Equal(t, 4, b.Read(dst))
	assert.Equal(t, seq(9, 4), dst)
	assert.Equal(t, uint64(9), b.Lost())
	assert.Equal(t, b.WriteIndex(), b.Lost()+4)
}

func TestPeekDiscardReset(t *testing.T) {
	b := New(16)
	b.Write(seq(0, 10))

	dst := make([]float32, 4)
	require.Equal(t, 4, b.Peek(dst))
	assert.Equal(t, seq(0, 4), dst)
	assert.Equal(t, 10, b.Available())

	assert.Equal(t, 6, b.Discard(6))
	assert.Equal(t, 4, b.Available())
	assert.Equal(t, 4, b.Discard(100))
	assert.Zero(t, b.Available())

	b.Write(seq(10, 3))
	b.Reset()
	assert.Zero(t, b.Available())
	assert.Equal(t, b.WriteIndex(), b.ReadIndex())
}

func TestConcurrentProducerNeverBlocks(t *testing.T) {
	b := New(1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			b.Write(seq(i*64, 64))
		}
	}()

	// only the index side is shared across goroutines; sample data is read
	// on the producer goroutine in practice
	for {
		select {
		case <-done:
			assert.LessOrEqual(t, b.Available(), 1024)
			assert.Equal(t, b.WriteIndex(), b.ReadIndex()+uint64(b.Available()))
			return
		default:
			assert.LessOrEqual(t, b.Available(), 1024)
			b.Discard(100)
		}
	}
}
