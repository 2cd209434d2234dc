// Package detect selects processes that exceed CPU or memory thresholds.
package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/rcliao/hostwarden/internal/model"
)

// Thresholds are the detection limits in percent.
type Thresholds struct {
	CPU    float64
	Memory float64
}

// Candidate is a process selected for remediation.
type Candidate struct {
	Snapshot model.ProcessSnapshot `json:"snapshot"`
	Reason   model.TriggerReason   `json:"reason"`
	Severity float64               `json:"severity"`
	Reasons  []string              `json:"reasons"`
}

// Violates reports whether s exceeds either threshold and which one.
// A process at exactly the threshold does not violate it.
func Violates(s model.ProcessSnapshot, th Thresholds) (model.TriggerReason, bool) {
	cpu := s.CPUPercent > th.CPU
	mem := s.MemPercent > th.Memory
	switch {
	case cpu && mem:
		return model.TriggerBoth, true
	case cpu:
		return model.TriggerCPU, true
	case mem:
		return model.TriggerMemory, true
	}
	return "", false
}

// Severity is the largest ratio of usage to threshold.
func Severity(s model.ProcessSnapshot, th Thresholds) float64 {
	return math.Max(ratio(s.CPUPercent, th.CPU), ratio(s.MemPercent, th.Memory))
}

func ratio(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return v / limit
}

// Detect returns every process violating a threshold, most severe first.
// Ties are broken by PID ascending so the order is deterministic.
func Detect(snapshot []model.ProcessSnapshot, th Thresholds) []Candidate {
	var out []Candidate
	for _, s := range snapshot {
		reason, ok := Violates(s, th)
		if !ok {
			continue
		}
		var reasons []string
		if s.CPUPercent > th.CPU {
			reasons = append(reasons, fmt.Sprintf("CPU: %.1f%%", s.CPUPercent))
		}
		if s.MemPercent > th.Memory {
			reasons = append(reasons, fmt.Sprintf("Memory: %.1f%%", s.MemPercent))
		}
		out = append(out, Candidate{
			Snapshot: s,
			Reason:   reason,
			Severity: Severity(s, th),
			Reasons:  reasons,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Snapshot.PID < out[j].Snapshot.PID
	})
	return out
}

// Top returns at most n candidates.
func Top(c []Candidate, n int) []Candidate {
	if n <= 0 || len(c) <= n {
		return c
	}
	return c[:n]
}
