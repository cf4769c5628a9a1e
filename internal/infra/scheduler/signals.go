package scheduler

import (
	"os"
	"os/signal"
	"syscall"
)

// exit is swapped out in tests.
var exit = os.Exit

// SetupSignalHandler turns SIGINT and SIGTERM into a Process shutdown
// request. A second signal while shutting down exits the process with
// status 1. The returned stop function detaches the handler.
func SetupSignalHandler(p *Process) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			p.Shutdown("signal " + sig.String())
		case <-quit:
			return
		}
		select {
		case sig := <-sigChan:
			p.log.Warn().Str("signal", sig.String()).Msg("second signal, exiting without cleanup")
			exit(1)
		case <-quit:
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		signal.Stop(sigChan)
		close(quit)
	}
}
