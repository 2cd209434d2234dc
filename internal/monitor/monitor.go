// Package monitor runs the resource-check pipeline: snapshot the process
// table, pick the worst hogs, remediate them and record what happened.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/hostwarden/internal/detect"
	"github.com/rcliao/hostwarden/internal/logging"
	"github.com/rcliao/hostwarden/internal/model"
	"github.com/rcliao/hostwarden/internal/procctl"
	"github.com/rcliao/hostwarden/internal/remediation"
	"github.com/rcliao/hostwarden/internal/store"
)

// Remediator runs one escalation. *remediation.Machine implements it.
type Remediator interface {
	Remediate(ctx context.Context, t remediation.Target) (*model.RemediationResult, error)
	DryRun() bool
}

// Memory is the part of the incident store the monitor uses.
type Memory interface {
	Append(ctx context.Context, p store.AppendParams) (*model.Incident, error)
	Latest(ctx context.Context, p store.ListParams) (*model.Incident, error)
}

// Options tunes a Monitor.
type Options struct {
	Thresholds  detect.Thresholds
	MaxPerCycle int
	// Concurrency bounds simultaneous remediations. Defaults to MaxPerCycle.
	Concurrency int
}

// Monitor runs resource-check cycles.
type Monitor struct {
	snap    procctl.Snapshotter
	rem     Remediator
	breaker *remediation.CircuitBreaker
	memory  Memory
	opts    Options
	now     func() time.Time
	log     *slog.Logger
}

// New creates a Monitor. breaker may be nil to disable rate limiting.
func New(snap procctl.Snapshotter, rem Remediator, breaker *remediation.CircuitBreaker, memory Memory, opts Options) *Monitor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = max(opts.MaxPerCycle, 1)
	}
	return &Monitor{
		snap:    snap,
		rem:     rem,
		breaker: breaker,
		memory:  memory,
		opts:    opts,
		now:     time.Now,
		log:     logging.Component("monitor"),
	}
}

// Skip is a candidate that was not remediated this cycle.
type Skip struct {
	PID    int    `json:"pid"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// CycleReport describes one resource check.
type CycleReport struct {
	StartedAt  time.Time                  `json:"started_at"`
	EndedAt    time.Time                  `json:"ended_at"`
	Scanned    int                        `json:"scanned"`
	Hogs       int                        `json:"hogs"`
	Candidates []detect.Candidate         `json:"candidates"`
	Results    []*model.RemediationResult `json:"results"`
	Skipped    []Skip                     `json:"skipped,omitempty"`
	Incidents  []string                   `json:"incidents"`
}

// Skip reasons.
const (
	SkipBreakerOpen = "circuit breaker open"
	SkipCooldown    = "cooldown"
	SkipInFlight    = "remediation in flight"
)

// CheckResources runs one cycle. Remediations always run to completion; store
// failures are joined into the returned error alongside a complete report.
func (m *Monitor) CheckResources(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		StartedAt:  m.now().UTC(),
		Candidates: []detect.Candidate{},
		Results:    []*model.RemediationResult{},
		Incidents:  []string{},
	}
	snapshot, err := m.snap.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	report.Scanned = len(snapshot)

	hogs := detect.Detect(snapshot, m.opts.Thresholds)
	report.Hogs = len(hogs)
	report.Candidates = detect.Top(hogs, m.opts.MaxPerCycle)
	if len(report.Candidates) == 0 {
		report.EndedAt = m.now().UTC()
		m.log.Debug("no resource hogs", "scanned", report.Scanned)
		return report, nil
	}
	m.log.Info("resource hogs detected", "hogs", report.Hogs, "selected", len(report.Candidates))

	var (
		mu      sync.Mutex
		results = make([]*model.RemediationResult, len(report.Candidates))
		g       errgroup.Group
	)
	g.SetLimit(m.opts.Concurrency)
	for i, c := range report.Candidates {
		t := remediation.Target{PID: c.Snapshot.PID, Name: c.Snapshot.Name}
		if reason, ok := m.gate(t); !ok {
			mu.Lock()
			report.Skipped = append(report.Skipped, Skip{PID: t.PID, Name: t.Name, Reason: reason})
			mu.Unlock()
			m.log.Info("remediation skipped", "pid", t.PID, "process", t.Name, "reason", reason)
			continue
		}
		g.Go(func() error {
			res, err := m.rem.Remediate(ctx, t)
			if errors.Is(err, remediation.ErrInFlight) {
				mu.Lock()
				report.Skipped = append(report.Skipped, Skip{PID: t.PID, Name: t.Name, Reason: SkipInFlight})
				mu.Unlock()
				return nil
			}
			if err != nil {
				m.log.Error("remediation error", "pid", t.PID, "error", err)
				return nil
			}
			if res.TriggerReason == "" {
				res.TriggerReason = c.Reason
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	// Records are written even during shutdown so interrupted runs are kept.
	recordCtx := context.WithoutCancel(ctx)
	var errs []error
	for _, res := range results {
		if res == nil {
			continue
		}
		report.Results = append(report.Results, res)
		inc, err := m.record(recordCtx, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("record remediation of pid %d: %w", res.PID, err))
			m.log.Error("failed to record remediation", "pid", res.PID, "run_id", res.RunID, "error", err)
			continue
		}
		report.Incidents = append(report.Incidents, inc.ID)
	}
	report.EndedAt = m.now().UTC()
	return report, errors.Join(errs...)
}

// gate consults the breaker and reserves a slot for real runs. Dry runs are
// never counted against it.
func (m *Monitor) gate(t remediation.Target) (string, bool) {
	if m.breaker == nil {
		return "", true
	}
	if m.breaker.IsOpen() {
		return SkipBreakerOpen, false
	}
	if m.breaker.IsOnCooldown(t.PID, t.Name) {
		return SkipCooldown, false
	}
	if !m.rem.DryRun() {
		m.breaker.Record(t.PID, t.Name)
	}
	return "", true
}

// record appends the result as a remediation incident linked to the previous
// remediation of the same process name.
func (m *Monitor) record(ctx context.Context, res *model.RemediationResult) (*model.Incident, error) {
	processTag := "process:" + res.ProcessName
	tags := []string{string(res.FinalOutcome), "trigger:" + string(res.TriggerReason), processTag}
	if res.DryRun {
		tags = append(tags, "dry-run")
	}

	var links []store.LinkTo
	prev, err := m.memory.Latest(ctx, store.ListParams{Kind: model.KindRemediation, Tag: processTag})
	if err != nil {
		return nil, fmt.Errorf("find previous remediation: %w", err)
	}
	if prev != nil {
		links = append(links, store.LinkTo{ToID: prev.ID, Rel: model.RelRecurrenceOf})
	}

	return m.memory.Append(ctx, store.AppendParams{
		Kind:      model.KindRemediation,
		Narrative: res.Narrative(),
		Payload:   res,
		Tags:      tags,
		Outcome:   string(res.FinalOutcome),
		Links:     links,
	})
}

// RemediateTarget runs one operator-requested escalation and records it.
// It bypasses the circuit breaker.
func (m *Monitor) RemediateTarget(ctx context.Context, t remediation.Target) (*model.RemediationResult, *model.Incident, error) {
	res, err := m.rem.Remediate(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	inc, err := m.record(context.WithoutCancel(ctx), res)
	if err != nil {
		return res, nil, fmt.Errorf("record remediation of pid %d: %w", t.PID, err)
	}
	return res, inc, nil
}
