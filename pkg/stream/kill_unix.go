//go:build unix

package stream

import (
	"os/exec"
	"syscall"
)

// killGroup runs the process in its own group and kills the whole group on
// cancellation, so helpers spawned by yt-dlp don't keep the pipes open.
func killGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
