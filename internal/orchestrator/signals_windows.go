//go:build windows

package orchestrator

import (
	"os"
	"syscall"
)

var daemonSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Windows has no SIGHUP; reload is only ever console-triggered there.
func isReloadSignal(os.Signal) bool {
	return false
}
