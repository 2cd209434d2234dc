//go:build !windows

package procctl

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"
)

var _ Controller = (*OS)(nil)

func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestOSMeasureSelf(t *testing.T) {
	ctl := NewOS(20 * time.Millisecond)
	s, err := ctl.Measure(context.Background(), os.Getpid())
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if s.PID != os.Getpid() || s.Name == "" {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestOSLifecycle(t *testing.T) {
	ctx := context.Background()
	ctl := NewOS(20 * time.Millisecond)
	cmd := startSleeper(t)
	pid := cmd.Process.Pid

	alive, err := ctl.Alive(ctx, pid)
	if err != nil || !alive {
		t.Fatalf("Alive = %v, %v", alive, err)
	}

	if err := ctl.SetPriority(ctx, pid, 19); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	nice, err := ctl.Priority(ctx, pid)
	if err != nil {
		t.Fatalf("Priority: %v", err)
	}
	if nice != 19 {
		t.Errorf("nice = %d, want 19", nice)
	}

	if err := ctl.Signal(ctx, pid, SignalKill); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	_ = cmd.Wait()

	alive, err = ctl.Alive(ctx, pid)
	if err != nil || alive {
		t.Errorf("after kill Alive = %v, %v", alive, err)
	}
	if err := ctl.Signal(ctx, pid, SignalTerm); !errors.Is(err, ErrNoProcess) {
		t.Errorf("signal to reaped pid err = %v, want ErrNoProcess", err)
	}
	if _, err := ctl.Measure(ctx, pid); !errors.Is(err, ErrNoProcess) {
		t.Errorf("measure reaped pid err = %v, want ErrNoProcess", err)
	}
}
