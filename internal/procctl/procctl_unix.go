//go:build !windows

package procctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"

	"github.com/rcliao/hostwarden/internal/model"
)

// OS is the Controller backed by the running kernel.
type OS struct {
	// SampleWindow is how long Measure observes CPU time.
	SampleWindow time.Duration
}

// NewOS creates a Controller that samples CPU over window.
func NewOS(window time.Duration) *OS {
	return &OS{SampleWindow: window}
}

func isESRCH(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

func (o *OS) Measure(ctx context.Context, pid int) (model.ProcessSnapshot, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return model.ProcessSnapshot{}, classify(err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return model.ProcessSnapshot{}, classify(err)
	}
	window := o.SampleWindow
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	cpu, err := p.PercentWithContext(ctx, window)
	if err != nil {
		return model.ProcessSnapshot{}, classify(err)
	}
	mem, err := p.MemoryPercentWithContext(ctx)
	if err != nil {
		return model.ProcessSnapshot{}, classify(err)
	}
	return model.ProcessSnapshot{
		PID:        pid,
		Name:       name,
		CPUPercent: cpu,
		MemPercent: float64(mem),
		ObservedAt: time.Now().UTC(),
	}, nil
}

func (o *OS) Priority(ctx context.Context, pid int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	nice, err := getNice(pid)
	if err != nil {
		return 0, classify(fmt.Errorf("getpriority %d: %w", pid, err))
	}
	return nice, nil
}

func (o *OS) SetPriority(ctx context.Context, pid int, nice int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, nice); err != nil {
		return classify(fmt.Errorf("setpriority %d: %w", pid, err))
	}
	return nil
}

func (o *OS) Signal(ctx context.Context, pid int, sig Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var s unix.Signal
	switch sig {
	case SignalTerm:
		s = unix.SIGTERM
	case SignalKill:
		s = unix.SIGKILL
	default:
		return fmt.Errorf("unsupported signal %d", sig)
	}
	if err := unix.Kill(pid, s); err != nil {
		return classify(fmt.Errorf("kill %d %s: %w", pid, sig, err))
	}
	return nil
}

func (o *OS) Alive(ctx context.Context, pid int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
	case errors.Is(err, unix.ESRCH):
		return false, nil
	default:
		return false, fmt.Errorf("probe %d: %w", pid, err)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(classify(err), ErrNoProcess) {
			return false, nil
		}
		return true, nil
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		return true, nil
	}
	return !isZombie(status), nil
}
