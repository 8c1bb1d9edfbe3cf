//go:build windows

package supervisor

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {
	// No process group is created on Windows; Process.Kill() below stops
	// only the directly-spawned child, as a best-effort stop.
}

func stopProcessGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
