package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/stepperctl/internal/errors"
)

const (
	ErrAlreadyRunning = errors.ErrAlreadyRunning
	ErrPIDFile        = errors.ErrorCode("pid_file_failed")
)

// Write records the current process ID at path. It fails with
// ErrAlreadyRunning while the process named by an existing file is alive.
func Write(path string) error {
	errFactory := errors.New()

	if bytes, err := os.ReadFile(path); err == nil {
		// PID file exists, check if the process is running
		if pid, err := strconv.Atoi(strings.TrimSpace(string(bytes))); err == nil && pid > 0 && alive(pid) {
			return errFactory.WithData(ErrAlreadyRunning, pid)
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(ErrPIDFile, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(ErrPIDFile, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(ErrPIDFile, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(ErrPIDFile, err)
	}

	return nil
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
