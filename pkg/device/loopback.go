package device

import "time"

// Loopback feeds every block it plays back into its own input one period
// later, like a speaker pressed against its microphone.
type Loopback struct {
	SampleRate float64 // the fake sample rate, 0 means no limit
	BlockSize  int     // 0 means BufferSize

	done     chan struct{}
	finished chan struct{}
}

func (d *Loopback) Start(callback Callback) error {
	size := d.BlockSize
	if size == 0 {
		size = BufferSize
	}
	d.done = make(chan struct{})
	d.finished = make(chan struct{})

	go func() {
		defer close(d.finished)
		lockThread()
		var buf = make([][]float32, 2)
		buf[0] = allocf32(size)
		buf[1] = allocf32(size)

		swap := true
		update := func() {
			if swap {
				clearf32(buf[1])
				callback(buf[0], buf[1])
			} else {
				clearf32(buf[0])
				callback(buf[1], buf[0])
			}
			swap = !swap
		}

		if d.SampleRate == 0 {
			for {
				select {
				case <-d.done:
					return
				default:
					update()
				}
			}
		} else {
			period := time.Duration(float64(time.Second) * float64(size) / d.SampleRate)
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-d.done:
					return
				case <-ticker.C:
					update()
				}
			}
		}
	}()
	return nil
}

// Stop returns after the last callback finished. Stopping twice is a no-op.
func (d *Loopback) Stop() {
	if d.done == nil {
		return
	}
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	<-d.finished
}
