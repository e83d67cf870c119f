//go:build windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
)

// Windows has no process groups in the Unix sense; fall back to plain
// terminate/kill on the direct child.

func setupProcessGroup(cmd *exec.Cmd) {}

func terminateProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	cmd.Process.Kill()
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
