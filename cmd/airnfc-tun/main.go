// Command airnfc-tun pairs with a nearby device and then tunnels IP packets
// between a TUN interface and the acoustic link.
package main

import (
	"flag"
	"fmt"
	"os"

	"AirNFC/internal/config"
	"AirNFC/internal/log"
	"AirNFC/pkg/airnfc"
	"AirNFC/pkg/async"
	"AirNFC/pkg/iface"
)

type tunnel struct {
	bridge    *iface.Bridge
	connected async.Signal[struct{}]
	failed    chan error
}

func (t *tunnel) DidUpdateConnectingProgress(p float64) {
	log.Info("negotiating", "progress", p)
}

func (t *tunnel) DidConnect() {
	t.connected.Notify()
}

func (t *tunnel) DidReceiveData(data []byte) {
	if t.bridge != nil {
		t.bridge.Deliver(data)
	}
}

func (t *tunnel) DidFail(err error) {
	select {
	case t.failed <- err:
	default:
	}
}

func main() {
	configPath := flag.String("config", "airnfc.yml", "YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	exec := async.NewSerial()
	defer exec.Close()

	nfc, err := config.NewAirNFC(cfg, exec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer exec.Do(nfc.Disconnect)

	t := &tunnel{failed: make(chan error, 1)}
	connected := t.connected.Signal()
	exec.Do(func() {
		nfc.SetListener(t)
		err = nfc.Connect()
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		return
	}

	exit := async.Exit()
	select {
	case <-connected:
	case err := <-t.failed:
		fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
		return
	case <-exit:
		return
	}

	tun, err := iface.OpenTUN(cfg.Tun.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening TUN device: %v\n", err)
		return
	}
	defer tun.Close()
	if cfg.Tun.IP != "" {
		if err := iface.Configure(tun, cfg.Tun.IP, cfg.Tun.MTU); err != nil {
			log.Warn("failed to configure interface", "error", err)
		}
	}

	exec.Do(func() {
		t.bridge = iface.NewBridge(tun, link{nfc}, cfg.Tun.MTU)
	})
	fmt.Printf("Tunnel up on %s\n", tun.Name())

	for {
		select {
		case packet, ok := <-tun.Packets():
			if !ok {
				return
			}
			exec.Do(func() { t.bridge.Forward(packet) })

		case err := <-t.failed:
			fmt.Fprintf(os.Stderr, "Connection lost: %v\n", err)
			return

		case <-exit:
			exec.Do(func() {
				forwarded, delivered, dropped := t.bridge.Stats()
				fmt.Printf("Exiting: %d forwarded, %d delivered, %d dropped\n", forwarded, delivered, dropped)
			})
			return
		}
	}
}

type link struct {
	nfc *airnfc.AirNFC
}

// Write runs on the owner executor.
func (l link) Write(data []byte) error {
	return l.nfc.Write(data)
}
