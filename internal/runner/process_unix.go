//go:build !windows

package runner

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func shellArgv(command string) []string {
	return []string{"/bin/sh", "-c", command}
}

// setProcessGroup puts the shell in its own process group so that
// terminate reaches every process the command spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGTERM)
}

func forceKill(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGKILL)
}

func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	pid := cmd.Process.Pid
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	if err != nil {
		return cmd.Process.Signal(sig)
	}
	return nil
}
