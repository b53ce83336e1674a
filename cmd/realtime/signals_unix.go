//go:build unix

package realtime

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/birdnet-pipeline/internal/analysis"
)

var signalControls = map[os.Signal]analysis.Control{
	syscall.SIGUSR1: analysis.ControlPause,
	syscall.SIGUSR2: analysis.ControlResume,
	syscall.SIGHUP:  analysis.ControlRestart,
}

// notifyControls forwards session control signals to ch until stop is
// called. A command is dropped when ch is full.
func notifyControls(ch chan<- analysis.Control) (stop func()) {
	sigs := make(chan os.Signal, 1)
	for sig := range signalControls {
		signal.Notify(sigs, sig)
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigs:
				select {
				case ch <- signalControls[sig]:
				default:
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
