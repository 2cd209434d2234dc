// Package procctl measures and acts on host processes.
package procctl

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/rcliao/hostwarden/internal/model"
)

var (
	// ErrNoProcess is returned when the target process no longer exists.
	ErrNoProcess = errors.New("no such process")
	// ErrPermission is returned when the caller may not inspect or signal the process.
	ErrPermission = errors.New("permission denied")
)

// Signal is a termination request.
type Signal int

const (
	SignalTerm Signal = iota + 1
	SignalKill
)

func (s Signal) String() string {
	switch s {
	case SignalTerm:
		return "SIGTERM"
	case SignalKill:
		return "SIGKILL"
	}
	return "signal(?)"
}

// Controller is the capability the remediation state machine needs from the OS.
type Controller interface {
	// Measure samples CPU and memory usage of pid.
	Measure(ctx context.Context, pid int) (model.ProcessSnapshot, error)
	// Priority returns the current nice value of pid.
	Priority(ctx context.Context, pid int) (int, error)
	// SetPriority sets the nice value of pid.
	SetPriority(ctx context.Context, pid int, nice int) error
	// Signal delivers sig to pid.
	Signal(ctx context.Context, pid int, sig Signal) error
	// Alive reports whether pid still exists. Zombies count as gone.
	Alive(ctx context.Context, pid int) (bool, error)
}

// classify maps OS and gopsutil errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNoProcess), errors.Is(err, ErrPermission):
		return err
	case errors.Is(err, process.ErrorProcessNotRunning), errors.Is(err, fs.ErrNotExist), isESRCH(err):
		return errors.Join(ErrNoProcess, err)
	case errors.Is(err, fs.ErrPermission):
		return errors.Join(ErrPermission, err)
	}
	return err
}

func isZombie(status []string) bool {
	for _, s := range status {
		if strings.EqualFold(s, process.Zombie) {
			return true
		}
	}
	return false
}
