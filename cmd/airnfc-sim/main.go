// Command airnfc-sim connects two AirNFC instances over a simulated acoustic
// medium in real time and exchanges one message in each direction.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"AirNFC/internal/log"
	"AirNFC/pkg/airnfc"
	"AirNFC/pkg/async"
	"AirNFC/pkg/device"
)

type peer struct {
	name      string
	connected async.Signal[struct{}]
	received  chan []byte
	failed    chan error
}

func (p *peer) DidUpdateConnectingProgress(progress float64) {
	log.Info("progress", "peer", p.name, "progress", progress)
}

func (p *peer) DidConnect() {
	p.connected.Notify()
}

func (p *peer) DidReceiveData(data []byte) {
	select {
	case p.received <- data:
	default:
	}
}

func (p *peer) DidFail(err error) {
	select {
	case p.failed <- err:
	default:
	}
}

func main() {
	noise := flag.Float64("noise", 0.001, "standard deviation of the channel noise")
	timeout := flag.Duration("timeout", time.Minute, "give up after this long")
	message := flag.String("message", "hello over the air", "message to exchange")
	level := flag.String("log", "info", "log level")
	flag.Parse()

	log.Init(*level)

	network := &device.Network[string]{
		SampleRate: device.SampleRate,
		Noise:      *noise,
		Config:     device.NetworkConfig[string]{{In: "air", Out: "air"}, {In: "air", Out: "air"}},
	}
	nodes := network.Build()
	defer network.Close()

	exec := async.NewSerial()
	defer exec.Close()

	var nfcs [2]*airnfc.AirNFC
	var peers [2]*peer
	var waits [2]<-chan struct{}
	for i := range nfcs {
		peers[i] = &peer{
			name:     fmt.Sprintf("device%d", i),
			received: make(chan []byte, 1),
			failed:   make(chan error, 1),
		}
		waits[i] = peers[i].connected.Signal()
		nfcs[i] = airnfc.New(airnfc.Config{Device: nodes[i], Executor: exec})
	}

	var err error
	exec.Do(func() {
		for i, nfc := range nfcs {
			nfc.SetListener(peers[i])
			if err = nfc.Connect(); err != nil {
				return
			}
		}
	})
	defer exec.Do(func() {
		for _, nfc := range nfcs {
			nfc.Disconnect()
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		os.Exit(1)
	}

	begin := time.Now()
	select {
	case <-async.Gather0(waits[:]...):
	case err := <-peers[0].failed:
		fmt.Fprintf(os.Stderr, "device0 failed: %v\n", err)
		return
	case err := <-peers[1].failed:
		fmt.Fprintf(os.Stderr, "device1 failed: %v\n", err)
		return
	case <-time.After(*timeout):
		fmt.Fprintln(os.Stderr, "Timed out while connecting")
		return
	}
	exec.Do(func() {
		fmt.Printf("Connected after %v, secret %x\n", time.Since(begin).Round(time.Millisecond), nfcs[0].SharedSecret())
	})

	// the last handshake frames may still be in the air
	time.Sleep(2 * time.Second)

	for i := range nfcs {
		other := peers[1-i]
		exec.Do(func() { err = nfcs[i].Write([]byte(*message)) })
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing: %v\n", err)
			return
		}
		data, ok := async.AwaitTimeout(other.received, *timeout)
		if !ok {
			fmt.Fprintln(os.Stderr, "Timed out while exchanging data")
			return
		}
		fmt.Printf("%s received %q\n", other.name, data)
	}

	exec.Do(func() {
		for i, nfc := range nfcs {
			s := nfc.Port().Stats()
			fmt.Printf("%s: %d callbacks, %d overruns, %d samples lost\n", peers[i].name, s.Callbacks, s.Overruns, s.Lost)
		}
	})
}
