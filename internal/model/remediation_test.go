package model

import (
	"strings"
	"testing"
)

func TestTierOrdinal(t *testing.T) {
	tests := []struct {
		tier Tier
		want int
	}{
		{TierDeprioritize, 1},
		{TierGracefulStop, 2},
		{TierForceStop, 3},
		{Tier("bogus"), 0},
	}
	for _, tt := range tests {
		if got := tt.tier.Ordinal(); got != tt.want {
			t.Errorf("%s.Ordinal() = %d, want %d", tt.tier, got, tt.want)
		}
	}
}

func TestNarrativeDryRunLabel(t *testing.T) {
	prior, target := 0, 19
	r := &RemediationResult{
		PID:           42,
		ProcessName:   "stress",
		TriggerReason: TriggerCPU,
		Baseline:      &ProcessSnapshot{PID: 42, Name: "stress", CPUPercent: 99},
		Attempts: []RemediationAttempt{
			{Tier: TierDeprioritize, PriorPriority: &prior, TargetPriority: &target, WaitSeconds: 10, Simulated: true},
		},
		FinalOutcome: OutcomeDryRun,
		DryRun:       true,
	}

	n := r.Narrative()
	if !strings.HasPrefix(n, "[DRY RUN]") {
		t.Errorf("dry-run narrative should be labelled, got %q", n)
	}
	if !strings.Contains(n, "Would have: lowered priority from nice 0 to 19") {
		t.Errorf("expected simulated attempt wording, got %q", n)
	}
	if !strings.Contains(n, "Outcome: dry_run.") {
		t.Errorf("expected outcome in narrative, got %q", n)
	}
}

func TestNarrativeNoAttempts(t *testing.T) {
	r := &RemediationResult{PID: 7, ProcessName: "gone", FinalOutcome: OutcomeProcessExited}
	n := r.Narrative()
	if strings.HasPrefix(n, "[DRY RUN]") {
		t.Error("real run must not be labelled dry-run")
	}
	if !strings.Contains(n, "No actions taken.") {
		t.Errorf("expected no-action wording, got %q", n)
	}
}

func TestOutcomeNeedsOperator(t *testing.T) {
	if !OutcomeEscalatedExhausted.NeedsOperator() || !OutcomeFailed.NeedsOperator() {
		t.Error("escalated and failed outcomes need an operator")
	}
	if OutcomeResolved.NeedsOperator() || OutcomeDryRun.NeedsOperator() {
		t.Error("resolved and dry-run outcomes do not need an operator")
	}
}
