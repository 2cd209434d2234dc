package procctl

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/rcliao/hostwarden/internal/model"
)

// Snapshotter produces a point-in-time view of the process table.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]model.ProcessSnapshot, error)
}

// Sampler measures every process over a short window using two CPU-time passes.
type Sampler struct {
	Window time.Duration
	// IncludeSelf keeps this process in the snapshot. Off by default so the
	// daemon never remediates itself.
	IncludeSelf bool
}

// NewSampler returns a Sampler with the given window.
func NewSampler(window time.Duration) *Sampler {
	return &Sampler{Window: window}
}

// Snapshot lists processes and samples their CPU over the window. Processes
// that vanish or deny access between passes are skipped.
func (s *Sampler) Snapshot(ctx context.Context) ([]model.ProcessSnapshot, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())

	primed := make([]*process.Process, 0, len(procs))
	for _, p := range procs {
		if p.Pid == self && !s.IncludeSelf {
			continue
		}
		if _, err := p.PercentWithContext(ctx, 0); err != nil {
			continue
		}
		primed = append(primed, p)
	}

	window := s.Window
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	timer := time.NewTimer(window)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}

	now := time.Now().UTC()
	out := make([]model.ProcessSnapshot, 0, len(primed))
	skipped := 0
	for _, p := range primed {
		cpu, err := p.PercentWithContext(ctx, 0)
		if err != nil {
			skipped++
			continue
		}
		mem, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			skipped++
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, model.ProcessSnapshot{
			PID:        int(p.Pid),
			Name:       name,
			CPUPercent: cpu,
			MemPercent: float64(mem),
			ObservedAt: now,
		})
	}
	if skipped > 0 {
		slog.Debug("processes skipped during snapshot", "component", "procctl", "skipped", skipped)
	}
	return out, nil
}

// Static is a fixed Snapshotter, useful for replaying a captured process table.
type Static []model.ProcessSnapshot

func (s Static) Snapshot(ctx context.Context) ([]model.ProcessSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]model.ProcessSnapshot(nil), s...), nil
}
