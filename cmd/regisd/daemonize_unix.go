//go:build unix || linux || darwin

package main

import (
	"os"
	"os/exec"
	"syscall"
)

// configureDaemonProcess detaches the re-exec'd child into its own
// session so it survives the launching shell's exit.
func configureDaemonProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// isProcessRunning reports whether pid is a live process, permission-
// aware: EPERM means the process exists but we can't signal it, which
// still counts as running.
func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}

func sendShutdownSignal(process *os.Process) error {
	return process.Signal(syscall.SIGTERM)
}
