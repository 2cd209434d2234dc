package detect

import (
	"testing"

	"github.com/rcliao/hostwarden/internal/model"
)

var th = Thresholds{CPU: 80, Memory: 50}

func snap(pid int, cpu, mem float64) model.ProcessSnapshot {
	return model.ProcessSnapshot{PID: pid, Name: "p", CPUPercent: cpu, MemPercent: mem}
}

func TestViolates(t *testing.T) {
	tests := []struct {
		name   string
		s      model.ProcessSnapshot
		want   model.TriggerReason
		wantOK bool
	}{
		{"idle", snap(1, 1, 1), "", false},
		{"cpu only", snap(1, 95, 10), model.TriggerCPU, true},
		{"memory only", snap(1, 5, 60), model.TriggerMemory, true},
		{"both", snap(1, 90, 70), model.TriggerBoth, true},
		{"exactly at threshold", snap(1, 80, 50), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Violates(tt.s, th)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Violates = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDetectOrdering(t *testing.T) {
	snapshot := []model.ProcessSnapshot{
		snap(10, 10, 10),  // not a hog
		snap(20, 88, 10),  // cpu ratio 1.1
		snap(30, 10, 75),  // mem ratio 1.5
		snap(5, 10, 75),   // same severity as 30, lower pid
		snap(40, 160, 60), // cpu ratio 2.0
	}
	got := Detect(snapshot, th)
	wantPIDs := []int{40, 5, 30, 20}
	if len(got) != len(wantPIDs) {
		t.Fatalf("Detect returned %d candidates, want %d", len(got), len(wantPIDs))
	}
	for i, pid := range wantPIDs {
		if got[i].Snapshot.PID != pid {
			t.Errorf("position %d: pid %d, want %d", i, got[i].Snapshot.PID, pid)
		}
	}
	if got[0].Reason != model.TriggerBoth || len(got[0].Reasons) != 2 {
		t.Errorf("pid 40 reason = %q reasons=%v", got[0].Reason, got[0].Reasons)
	}
	if got[0].Reasons[0] != "CPU: 160.0%" {
		t.Errorf("reason text = %q", got[0].Reasons[0])
	}
}

func TestDetectEmpty(t *testing.T) {
	if got := Detect(nil, th); len(got) != 0 {
		t.Errorf("Detect(nil) = %v", got)
	}
	if got := Detect([]model.ProcessSnapshot{snap(1, 1, 1)}, th); len(got) != 0 {
		t.Errorf("Detect(idle) = %v", got)
	}
}

func TestTop(t *testing.T) {
	c := Detect([]model.ProcessSnapshot{snap(1, 90, 0), snap(2, 91, 0), snap(3, 92, 0), snap(4, 93, 0)}, th)
	if got := Top(c, 3); len(got) != 3 || got[0].Snapshot.PID != 4 {
		t.Errorf("Top(3) = %+v", got)
	}
	if got := Top(c, 0); len(got) != 4 {
		t.Errorf("Top(0) should return all, got %d", len(got))
	}
}
