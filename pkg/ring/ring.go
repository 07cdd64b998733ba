// Package ring holds the capture-side circular audio buffer.
//
// A Buffer has exactly one producer (the device callback) and one logical
// consumer. Counters are absolute sample indices, so the producer never waits:
// when it laps the consumer the oldest unread samples are dropped and counted.
package ring

import (
	"sync/atomic"
)

const DefaultCapacity = 44100

type Buffer struct {
	data  []float32
	read  atomic.Uint64
	write atomic.Uint64
	lost  atomic.Uint64
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{data: make([]float32, capacity)}
}

func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Write appends samples, overwriting the oldest unread ones on overflow. Every
// sample that is overwritten or never stored is counted as lost exactly once.
func (b *Buffer) Write(samples []float32) {
	capacity := uint64(len(b.data))
	if uint64(len(samples)) > capacity {
		skipped := uint64(len(samples)) - capacity
		b.write.Add(skipped)
		samples = samples[skipped:]
	}

	w := b.write.Load()
	start := w % capacity
	n := copy(b.data[start:], samples)
	copy(b.data, samples[n:])
	w += uint64(len(samples))
	b.write.Store(w)

	for {
		r := b.read.Load()
		if w-r <= capacity {
			break
		}
		if b.read.CompareAndSwap(r, w-capacity) {
			b.lost.Add(w - capacity - r)
			break
		}
	}
}

// Available is the number of unread samples, never more than Capacity.
func (b *Buffer) Available() int {
	w := b.write.Load()
	r := b.read.Load()
	if r >= w {
		return 0
	}
	return int(w - r)
}

// ReadIndex is the absolute index of the next sample Read returns.
func (b *Buffer) ReadIndex() uint64 {
	return b.read.Load()
}

// WriteIndex is the absolute index one past the newest sample.
func (b *Buffer) WriteIndex() uint64 {
	return b.write.Load()
}

// Lost counts samples that were overwritten before they were read.
func (b *Buffer) Lost() uint64 {
	return b.lost.Load()
}

// Peek copies unread samples into dst without consuming them.
func (b *Buffer) Peek(dst []float32) int {
	n, _ := b.peek(dst)
	return n
}

func (b *Buffer) peek(dst []float32) (int, uint64) {
	r := b.read.Load()
	avail := b.Available()
	n := min(len(dst), avail)
	capacity := uint64(len(b.data))
	start := r % capacity
	m := copy(dst[:n], b.data[start:])
	copy(dst[m:n], b.data)
	return n, r
}

// Read copies and consumes unread samples.
func (b *Buffer) Read(dst []float32) int {
	n, r := b.peek(dst)
	if n > 0 {
		b.read.CompareAndSwap(r, r+uint64(n))
	}
	return n
}

// Discard consumes up to n samples without copying them.
func (b *Buffer) Discard(n int) int {
	r := b.read.Load()
	n = min(n, b.Available())
	if n > 0 {
		b.read.CompareAndSwap(r, r+uint64(n))
	}
	return n
}

// Reset drops all unread samples. It must not race with Write.
func (b *Buffer) Reset() {
	b.read.Store(b.write.Load())
}
