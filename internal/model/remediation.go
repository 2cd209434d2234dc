package model

import (
	"fmt"
	"strings"
	"time"
)

// ProcessSnapshot is a point-in-time measurement of one process.
type ProcessSnapshot struct {
	PID        int       `json:"pid"`
	Name       string    `json:"name"`
	CPUPercent float64   `json:"cpu_percent"`
	MemPercent float64   `json:"mem_percent"`
	ObservedAt time.Time `json:"observed_at"`
}

// Tier is one step of the escalation sequence.
type Tier string

const (
	TierDeprioritize Tier = "deprioritize"
	TierGracefulStop Tier = "graceful_stop"
	TierForceStop    Tier = "force_stop"
)

// Ordinal returns the position of the tier in the escalation (1..3), or 0 if unknown.
func (t Tier) Ordinal() int {
	switch t {
	case TierDeprioritize:
		return 1
	case TierGracefulStop:
		return 2
	case TierForceStop:
		return 3
	}
	return 0
}

// TriggerReason records which thresholds a process violated when detected.
type TriggerReason string

const (
	TriggerCPU    TriggerReason = "cpu"
	TriggerMemory TriggerReason = "memory"
	TriggerBoth   TriggerReason = "both"
)

// Outcome is the terminal state of a remediation run.
type Outcome string

const (
	OutcomeResolved           Outcome = "resolved"
	OutcomeEscalatedExhausted Outcome = "escalated_exhausted"
	OutcomeProcessExited      Outcome = "process_exited"
	OutcomeDryRun             Outcome = "dry_run"
	OutcomeFailed             Outcome = "failed"
	OutcomeInterrupted        Outcome = "interrupted"
)

// NeedsOperator reports whether the outcome should be surfaced as a failure.
func (o Outcome) NeedsOperator() bool {
	return o == OutcomeEscalatedExhausted || o == OutcomeFailed
}

// RemediationAttempt is one escalation step. Immutable once appended to a result.
type RemediationAttempt struct {
	Tier             Tier      `json:"tier"`
	IssuedAt         time.Time `json:"issued_at"`
	PriorPriority    *int      `json:"prior_priority,omitempty"`
	TargetPriority   *int      `json:"target_priority,omitempty"`
	WaitSeconds      float64   `json:"wait_seconds"`
	VerifiedResolved bool      `json:"verified_resolved"`
	Simulated        bool      `json:"simulated,omitempty"`
	Skipped          bool      `json:"skipped,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// RemediationResult is the complete record of one state-machine run.
type RemediationResult struct {
	RunID         string               `json:"run_id"`
	PID           int                  `json:"pid"`
	ProcessName   string               `json:"process_name"`
	TriggerReason TriggerReason        `json:"trigger_reason,omitempty"`
	Baseline      *ProcessSnapshot     `json:"baseline,omitempty"`
	Attempts      []RemediationAttempt `json:"attempts"`
	FinalOutcome  Outcome              `json:"final_outcome"`
	DryRun        bool                 `json:"dry_run"`
	StartedAt     time.Time            `json:"started_at"`
	EndedAt       time.Time            `json:"ended_at"`
	Note          string               `json:"note,omitempty"`
}

// Tiers returns the tier sequence of the recorded attempts.
func (r *RemediationResult) Tiers() []Tier {
	tiers := make([]Tier, len(r.Attempts))
	for i, a := range r.Attempts {
		tiers[i] = a.Tier
	}
	return tiers
}

// Narrative renders the human-readable summary used for embedding and display.
func (r *RemediationResult) Narrative() string {
	var b strings.Builder
	if r.DryRun {
		b.WriteString("[DRY RUN] ")
	}
	fmt.Fprintf(&b, "Remediation of process %s (PID %d)", r.ProcessName, r.PID)
	if r.Baseline != nil {
		fmt.Fprintf(&b, " using CPU %.1f%% and memory %.1f%%", r.Baseline.CPUPercent, r.Baseline.MemPercent)
	}
	if r.TriggerReason != "" {
		fmt.Fprintf(&b, ", triggered by %s", r.TriggerReason)
	}
	b.WriteString(".")
	if len(r.Attempts) == 0 {
		b.WriteString(" No actions taken.")
	}
	for _, a := range r.Attempts {
		b.WriteString(" ")
		b.WriteString(a.describe())
	}
	fmt.Fprintf(&b, " Outcome: %s.", r.FinalOutcome)
	if r.Note != "" {
		fmt.Fprintf(&b, " %s", r.Note)
	}
	return b.String()
}

func (a RemediationAttempt) describe() string {
	var verb string
	switch a.Tier {
	case TierDeprioritize:
		verb = "Lowered priority"
		if a.PriorPriority != nil && a.TargetPriority != nil {
			verb = fmt.Sprintf("Lowered priority from nice %d to %d", *a.PriorPriority, *a.TargetPriority)
		}
		if a.Skipped {
			verb = "Priority already lowered"
		}
	case TierGracefulStop:
		verb = "Sent SIGTERM"
	case TierForceStop:
		verb = "Sent SIGKILL"
	default:
		verb = string(a.Tier)
	}
	if a.Simulated {
		verb = "Would have: " + strings.ToLower(verb[:1]) + verb[1:]
	}
	s := fmt.Sprintf("%s, waited %.0fs", verb, a.WaitSeconds)
	if a.VerifiedResolved {
		s += ", resolved."
	} else {
		s += ", still running."
	}
	if a.Error != "" {
		s += " Error: " + a.Error + "."
	}
	return s
}
