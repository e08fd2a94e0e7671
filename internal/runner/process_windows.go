//go:build windows

package runner

import (
	"os/exec"
	"strconv"
)

func shellArgv(command string) []string {
	return []string{"cmd.exe", "/c", command}
}

func setProcessGroup(*exec.Cmd) {}

// terminate kills the whole process tree; Windows has no graceful
// equivalent of SIGTERM for console children.
func terminate(cmd *exec.Cmd) error {
	return exec.Command("taskkill", "/pid", strconv.Itoa(cmd.Process.Pid), "/T", "/F").Run()
}

func forceKill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
