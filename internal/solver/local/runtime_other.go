//go:build !windows

package local

import (
	"os/exec"
)

// FindRuntime resolves the solver or wrapper executable in PATH
func FindRuntime(runtime string) (string, error) {
	return exec.LookPath(runtime)
}
