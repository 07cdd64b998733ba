package async

import (
	"bufio"
	"os"
	"os/signal"
	"syscall"
)

// Lines streams stdin line by line (without the trailing newline) until EOF.
func Lines() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

// Exit completes on SIGINT or SIGTERM.
func Exit() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		signal.Stop(c)
		close(done)
	}()
	return done
}
