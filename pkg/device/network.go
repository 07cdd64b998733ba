package device

import (
	"errors"
	"sync"
	"time"
)

var ErrNetworkClosed = errors.New("device: network closed")

// NetworkConfig wires every node to the buffer it hears (In) and the buffer
// it plays into (Out). Nodes sharing a buffer hear each other and themselves.
type NetworkConfig[BufferIDType comparable] []struct {
	In  BufferIDType
	Out BufferIDType
}

// Node is one simulated sound card on a Network.
type Node[BufferIDType comparable] struct {
	*Network[BufferIDType]
	input    []float32
	output   []float32
	callback Callback
}

// Network simulates an acoustic medium. Every update each running node hears
// the sum of what the nodes playing into its input buffer played during the
// previous update, plus optional noise.
//
// With Manual set nothing runs until Step is called, which makes end-to-end
// tests deterministic.
type Network[BufferIDType comparable] struct {
	SampleRate float64                     // the fake sample rate, 0 means no limit
	BlockSize  int                         // 0 means BufferSize
	Config     NetworkConfig[BufferIDType] // the topology of the network
	Noise      float64                     // standard deviation of the added noise
	Seed       uint64
	Manual     bool
	LateUpdate func() // the post process function, called with the network locked

	mu       sync.Mutex
	once     sync.Once
	buffers  map[BufferIDType][]float32
	devices  []*Node[BufferIDType]
	noise    *noise
	done     chan struct{}
	finished chan struct{}
	closed   bool
}

func (n *Network[BufferIDType]) getBuffer(name BufferIDType) []float32 {
	buf, ok := n.buffers[name]
	if !ok {
		buf = allocf32(n.BlockSize)
		n.buffers[name] = buf
	}
	return buf
}

// Build creates one node per Config entry, in order.
func (n *Network[BufferIDType]) Build() []*Node[BufferIDType] {
	if n.BlockSize == 0 {
		n.BlockSize = BufferSize
	}
	n.buffers = make(map[BufferIDType][]float32)
	n.noise = newNoise(n.Noise, n.Seed)
	n.done = make(chan struct{})
	n.finished = make(chan struct{})
	for _, deviceConfig := range n.Config {
		n.devices = append(n.devices, &Node[BufferIDType]{
			Network: n,
			input:   allocf32(n.BlockSize),
			output:  allocf32(n.BlockSize),
		})
		n.getBuffer(deviceConfig.In)
		n.getBuffer(deviceConfig.Out)
	}
	return n.devices
}

// Step runs a single update.
func (n *Network[BufferIDType]) Step() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.update()
}

func (n *Network[BufferIDType]) update() {
	for i, d := range n.devices {
		copy(d.input, n.buffers[n.Config[i].In])
		clearf32(d.output)
		if d.callback != nil {
			d.callback(d.input, d.output)
		}
	}

	// clear the buffers
	for _, buf := range n.buffers {
		clearf32(buf)
	}

	// sum up the output of all the devices to the buffer they play into
	for i, deviceConfig := range n.Config {
		device := n.devices[i]
		buf := n.buffers[deviceConfig.Out]
		sumf32(buf, device.output, buf)
	}

	for _, buf := range n.buffers {
		n.noise.add(buf)
	}

	if n.LateUpdate != nil {
		n.LateUpdate()
	}
}

func (n *Network[BufferIDType]) run() {
	defer close(n.finished)
	lockThread()

	if n.SampleRate == 0 {
		for {
			select {
			case <-n.done:
				return
			default:
				n.Step()
			}
		}
	}

	period := time.Duration(float64(time.Second) * float64(n.BlockSize) / n.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-n.done:
			return
		case <-ticker.C:
			n.Step()
		}
	}
}

// Close stops the medium. Nodes can't be started afterwards.
func (n *Network[BufferIDType]) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	for _, d := range n.devices {
		d.callback = nil
	}
	n.mu.Unlock()

	close(n.done)
	// a network that never ran has nothing to join
	n.once.Do(func() { close(n.finished) })
	<-n.finished
}

func (d *Node[BufferIDType]) Start(callback Callback) error {
	n := d.Network
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNetworkClosed
	}
	d.callback = callback
	n.mu.Unlock()

	if !n.Manual {
		n.once.Do(func() { go n.run() })
	}
	return nil
}

// Stop detaches the node. It waits for an update in progress, so the callback
// is not running and won't run again once Stop returns.
func (d *Node[BufferIDType]) Stop() {
	d.mu.Lock()
	d.callback = nil
	d.mu.Unlock()
}
