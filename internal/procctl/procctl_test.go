package procctl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not running", process.ErrorProcessNotRunning, ErrNoProcess},
		{"missing proc file", fmt.Errorf("open /proc/1/stat: %w", fs.ErrNotExist), ErrNoProcess},
		{"permission", fmt.Errorf("open: %w", fs.ErrPermission), ErrPermission},
		{"already classified", ErrPermission, ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
	other := errors.New("boom")
	if got := classify(other); got != other {
		t.Errorf("unrelated error should pass through, got %v", got)
	}
}

func TestSignalString(t *testing.T) {
	if SignalTerm.String() != "SIGTERM" || SignalKill.String() != "SIGKILL" {
		t.Errorf("unexpected names %s %s", SignalTerm, SignalKill)
	}
}

func TestIsZombie(t *testing.T) {
	if !isZombie([]string{process.Zombie}) {
		t.Error("zombie status not detected")
	}
	if isZombie([]string{process.Running}) {
		t.Error("running process reported as zombie")
	}
}

func TestStaticSnapshot(t *testing.T) {
	s := Static{{PID: 1, Name: "init"}}
	got, err := s.Snapshot(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("Snapshot = %v, %v", got, err)
	}
	got[0].Name = "mutated"
	if s[0].Name != "init" {
		t.Error("Snapshot should return a copy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Snapshot(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled snapshot err = %v", err)
	}
}

func TestSamplerExcludesSelf(t *testing.T) {
	if testing.Short() {
		t.Skip("samples the live process table")
	}
	snap, err := NewSampler(50 * time.Millisecond).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	for _, p := range snap {
		if p.PID == os.Getpid() {
			t.Fatal("sampler should exclude its own process")
		}
	}
}

var _ Snapshotter = Static(nil)
var _ Snapshotter = (*Sampler)(nil)
