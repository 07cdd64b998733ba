// Command airnfc pairs with a nearby device over the default sound card and
// then sends every line typed on stdin to it.
package main

import (
	"flag"
	"fmt"
	"os"

	"AirNFC/internal/config"
	"AirNFC/internal/log"
	"AirNFC/pkg/async"
)

type chat struct {
	connected async.Signal[struct{}]
	failed    chan error
}

func (c *chat) DidUpdateConnectingProgress(p float64) {
	fmt.Printf("negotiating... %3.0f%%\n", p*100)
}

func (c *chat) DidConnect() {
	c.connected.Notify()
}

func (c *chat) DidReceiveData(data []byte) {
	fmt.Printf("< %s\n", data)
}

func (c *chat) DidFail(err error) {
	select {
	case c.failed <- err:
	default:
	}
}

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
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

	c := &chat{failed: make(chan error, 1)}
	connected := c.connected.Signal()
	exec.Do(func() {
		nfc.SetListener(c)
		err = nfc.Connect()
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		return
	}
	fmt.Println("Looking for another device. Hold the two devices close together.")

	lines := async.Lines()
	exit := async.Exit()
	for {
		select {
		case <-connected:
			connected = nil
			exec.Do(func() {
				fmt.Printf("Connected, session %v. Type to send.\n", nfc.SessionID())
			})

		case err := <-c.failed:
			fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			exec.Do(func() { err = nfc.Write([]byte(line)) })
			if err != nil {
				fmt.Fprintf(os.Stderr, "Not sent: %v\n", err)
			}

		case <-exit:
			fmt.Println("Exiting...")
			return
		}
	}
}
