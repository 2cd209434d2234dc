// Package remediation escalates action against a resource-hogging process:
// lower its priority, then ask it to stop, then force it to stop.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/hostwarden/internal/config"
	"github.com/rcliao/hostwarden/internal/detect"
	"github.com/rcliao/hostwarden/internal/logging"
	"github.com/rcliao/hostwarden/internal/model"
	"github.com/rcliao/hostwarden/internal/procctl"
)

// ErrInFlight is returned when a run for the same pid is already active.
var ErrInFlight = errors.New("remediation already in flight for pid")

// Config controls one Machine.
type Config struct {
	DryRun           bool
	ReniceValue      int
	DeprioritizeWait time.Duration
	GracePeriod      time.Duration
	KillVerifyWait   time.Duration
	ActionTimeout    time.Duration
	Thresholds       detect.Thresholds
}

// ConfigFrom extracts the machine settings from the daemon config.
func ConfigFrom(c config.Config) Config {
	return Config{
		DryRun:           c.Remediation.DryRun,
		ReniceValue:      c.Remediation.ReniceValue,
		DeprioritizeWait: c.Remediation.DeprioritizeWait,
		GracePeriod:      c.Remediation.GracePeriod,
		KillVerifyWait:   c.Remediation.KillVerifyWait,
		ActionTimeout:    c.Remediation.ActionTimeout,
		Thresholds:       detect.Thresholds{CPU: c.Thresholds.CPU, Memory: c.Thresholds.Memory},
	}
}

// Target identifies the process to remediate.
type Target struct {
	PID  int
	Name string
}

// Machine runs remediation state machines. It is safe for concurrent use;
// at most one run per pid is active at a time.
type Machine struct {
	cfg   Config
	ctl   procctl.Controller
	sleep Sleeper
	now   func() time.Time
	log   *slog.Logger

	mu       sync.Mutex
	inflight map[int]struct{}
}

// Option configures a Machine.
type Option func(*Machine)

// WithSleeper replaces the real timer used between tiers.
func WithSleeper(s Sleeper) Option { return func(m *Machine) { m.sleep = s } }

// WithClock replaces time.Now for attempt timestamps.
func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Machine) { m.log = l } }

// New creates a Machine acting through ctl.
func New(ctl procctl.Controller, cfg Config, opts ...Option) *Machine {
	m := &Machine{
		cfg:      cfg,
		ctl:      ctl,
		sleep:    TimerSleeper{},
		now:      time.Now,
		log:      logging.Component("remediation"),
		inflight: make(map[int]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// DryRun reports whether the machine only simulates actions.
func (m *Machine) DryRun() bool { return m.cfg.DryRun }

func (m *Machine) acquire(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[pid]; busy {
		return false
	}
	m.inflight[pid] = struct{}{}
	return true
}

func (m *Machine) release(pid int) {
	m.mu.Lock()
	delete(m.inflight, pid)
	m.mu.Unlock()
}

// InFlight reports whether a run for pid is active.
func (m *Machine) InFlight(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[pid]
	return ok
}

// Remediate runs the escalation for t to a terminal outcome. Tier failures are
// reported in the result, never as an error; the only error is ErrInFlight.
//
// Cancelling ctx does not abort the tier in progress: its wait and
// verification complete, then the run ends as interrupted instead of escalating.
func (m *Machine) Remediate(ctx context.Context, t Target) (*model.RemediationResult, error) {
	if !m.acquire(t.PID) {
		return nil, fmt.Errorf("pid %d: %w", t.PID, ErrInFlight)
	}
	defer m.release(t.PID)

	r := &run{
		m:      m,
		parent: ctx,
		work:   context.WithoutCancel(ctx),
		log:    m.log.With("pid", t.PID, "process", t.Name, "dry_run", m.cfg.DryRun),
		res: &model.RemediationResult{
			RunID:       uuid.NewString(),
			PID:         t.PID,
			ProcessName: t.Name,
			DryRun:      m.cfg.DryRun,
			StartedAt:   m.now().UTC(),
			Attempts:    []model.RemediationAttempt{},
		},
	}
	for s := stateIdle; s != stateTerminal; {
		s = r.step(s)
	}
	r.res.EndedAt = m.now().UTC()

	lvl := slog.LevelInfo
	if r.res.FinalOutcome.NeedsOperator() {
		lvl = slog.LevelWarn
	}
	r.log.Log(ctx, lvl, "remediation finished",
		"run_id", r.res.RunID, "outcome", r.res.FinalOutcome, "tiers", len(r.res.Attempts))
	return r.res, nil
}

type state int

const (
	stateIdle state = iota
	stateDeprioritizeIssued
	stateWaiting1
	stateGracefulIssued
	stateWaiting2
	stateForceIssued
	stateWaiting3
	stateTerminal
)

func (s state) String() string {
	return [...]string{"idle", "deprioritize_issued", "waiting_1", "graceful_issued",
		"waiting_2", "force_issued", "waiting_3", "terminal"}[s]
}

// run holds the mutable state of a single Remediate call.
type run struct {
	m      *Machine
	parent context.Context
	work   context.Context
	log    *slog.Logger
	res    *model.RemediationResult
	// pending is the attempt being built for the current tier. It is appended
	// to the result once its wait and verification finish.
	pending *model.RemediationAttempt
}

func (r *run) step(s state) state {
	switch s {
	case stateIdle:
		return r.baseline()
	case stateDeprioritizeIssued:
		return r.deprioritize()
	case stateWaiting1:
		return r.waitAndVerify(r.m.cfg.DeprioritizeWait, stateGracefulIssued)
	case stateGracefulIssued:
		return r.signal(model.TierGracefulStop, procctl.SignalTerm, stateWaiting2)
	case stateWaiting2:
		return r.waitAndVerify(r.m.cfg.GracePeriod, stateForceIssued)
	case stateForceIssued:
		return r.signal(model.TierForceStop, procctl.SignalKill, stateWaiting3)
	case stateWaiting3:
		return r.verifyGone()
	}
	return stateTerminal
}

func (r *run) actionCtx() (context.Context, context.CancelFunc) {
	if r.m.cfg.ActionTimeout <= 0 {
		return context.WithCancel(r.work)
	}
	return context.WithTimeout(r.work, r.m.cfg.ActionTimeout)
}

func (r *run) measure() (model.ProcessSnapshot, error) {
	ctx, cancel := r.actionCtx()
	defer cancel()
	return r.m.ctl.Measure(ctx, r.res.PID)
}

func (r *run) finish(o model.Outcome) state {
	if r.m.cfg.DryRun && (o == model.OutcomeResolved || o == model.OutcomeEscalatedExhausted) {
		o = model.OutcomeDryRun
	}
	r.res.FinalOutcome = o
	return stateTerminal
}

// abandon appends the pending attempt with err and ends the run. Vanished
// processes end as process_exited; permission errors as failed.
func (r *run) abandon(err error) state {
	r.pending.Error = err.Error()
	r.commit()
	if errors.Is(err, procctl.ErrNoProcess) {
		return r.finish(model.OutcomeProcessExited)
	}
	return r.finish(model.OutcomeFailed)
}

func (r *run) commit() {
	r.res.Attempts = append(r.res.Attempts, *r.pending)
	r.pending = nil
}

func (r *run) baseline() state {
	if r.parent.Err() != nil {
		r.res.Note = "shutdown before remediation started"
		return r.finish(model.OutcomeInterrupted)
	}
	snap, err := r.measure()
	switch {
	case errors.Is(err, procctl.ErrNoProcess):
		return r.finish(model.OutcomeProcessExited)
	case err != nil:
		r.res.Note = "baseline unreadable: " + err.Error()
		return r.finish(model.OutcomeFailed)
	}
	r.res.Baseline = &snap
	if r.res.ProcessName == "" {
		r.res.ProcessName = snap.Name
	}
	reason, violating := detect.Violates(snap, r.m.cfg.Thresholds)
	if !violating {
		r.res.Note = "usage below thresholds at baseline"
		return r.finish(model.OutcomeResolved)
	}
	r.res.TriggerReason = reason
	return stateDeprioritizeIssued
}

func (r *run) deprioritize() state {
	target := r.m.cfg.ReniceValue
	r.pending = &model.RemediationAttempt{
		Tier:           model.TierDeprioritize,
		IssuedAt:       r.m.now().UTC(),
		TargetPriority: &target,
		Simulated:      r.m.cfg.DryRun,
	}

	ctx, cancel := r.actionCtx()
	prior, err := r.m.ctl.Priority(ctx, r.res.PID)
	cancel()
	if err != nil {
		if terminalIssueErr(err) {
			return r.abandon(err)
		}
		r.pending.Error = err.Error()
		r.log.Warn("could not read priority", "error", err)
		return stateWaiting1
	}
	r.pending.PriorPriority = &prior

	// Never raise priority: a process already at or below the target stays put.
	if prior >= target {
		r.pending.Skipped = true
		r.log.Info("priority already lowered", "nice", prior)
		return stateWaiting1
	}
	if r.m.cfg.DryRun {
		r.log.Info("[DRY RUN] would lower priority", "from", prior, "to", target)
		return stateWaiting1
	}

	ctx, cancel = r.actionCtx()
	err = r.m.ctl.SetPriority(ctx, r.res.PID, target)
	cancel()
	if err != nil {
		if terminalIssueErr(err) {
			return r.abandon(err)
		}
		r.pending.Error = err.Error()
		r.log.Warn("lower priority failed", "error", err)
		return stateWaiting1
	}
	r.log.Info("lowered priority", "from", prior, "to", target)
	return stateWaiting1
}

func (r *run) signal(tier model.Tier, sig procctl.Signal, next state) state {
	r.pending = &model.RemediationAttempt{
		Tier:      tier,
		IssuedAt:  r.m.now().UTC(),
		Simulated: r.m.cfg.DryRun,
	}
	if r.m.cfg.DryRun {
		r.log.Info("[DRY RUN] would send signal", "signal", sig.String(), "tier", tier)
		return next
	}
	ctx, cancel := r.actionCtx()
	err := r.m.ctl.Signal(ctx, r.res.PID, sig)
	cancel()
	if err != nil {
		if terminalIssueErr(err) {
			return r.abandon(err)
		}
		r.pending.Error = err.Error()
		r.log.Warn("signal failed", "signal", sig.String(), "error", err)
		return next
	}
	r.log.Info("sent signal", "signal", sig.String(), "tier", tier)
	return next
}

// wait sleeps for d on the detached context so shutdown never cuts a tier short.
func (r *run) wait(d time.Duration) {
	r.pending.WaitSeconds = d.Seconds()
	if err := r.m.sleep.Sleep(r.work, d); err != nil {
		r.log.Warn("wait ended early", "error", err)
	}
}

// waitAndVerify finishes tier 1 or 2: wait, re-check, then resolve or escalate.
func (r *run) waitAndVerify(d time.Duration, next state) state {
	r.wait(d)
	tier := r.pending.Tier

	if tier == model.TierGracefulStop {
		ctx, cancel := r.actionCtx()
		alive, err := r.m.ctl.Alive(ctx, r.res.PID)
		cancel()
		if err == nil && !alive {
			r.pending.VerifiedResolved = true
			r.commit()
			return r.finish(model.OutcomeResolved)
		}
	}

	snap, err := r.measure()
	switch {
	case errors.Is(err, procctl.ErrNoProcess):
		r.commit()
		if tier == model.TierGracefulStop {
			return r.finish(model.OutcomeResolved)
		}
		return r.finish(model.OutcomeProcessExited)
	case err != nil:
		// Escalating on a measurement we could not take would be blind.
		r.appendError("verify: " + err.Error())
		r.commit()
		return r.finish(model.OutcomeFailed)
	}

	if _, violating := detect.Violates(snap, r.m.cfg.Thresholds); !violating {
		r.pending.VerifiedResolved = true
		r.commit()
		return r.finish(model.OutcomeResolved)
	}
	r.commit()

	if r.parent.Err() != nil {
		r.res.Note = fmt.Sprintf("shutdown after %s; not escalating", tier)
		return r.finish(model.OutcomeInterrupted)
	}
	return next
}

func (r *run) verifyGone() state {
	r.wait(r.m.cfg.KillVerifyWait)
	ctx, cancel := r.actionCtx()
	alive, err := r.m.ctl.Alive(ctx, r.res.PID)
	cancel()
	if err != nil {
		r.appendError("verify: " + err.Error())
		r.commit()
		return r.finish(model.OutcomeEscalatedExhausted)
	}
	if !alive {
		r.pending.VerifiedResolved = true
		r.commit()
		return r.finish(model.OutcomeResolved)
	}
	r.commit()
	return r.finish(model.OutcomeEscalatedExhausted)
}

func (r *run) appendError(msg string) {
	if r.pending.Error != "" {
		r.pending.Error += "; " + msg
		return
	}
	r.pending.Error = msg
}

// terminalIssueErr reports whether an error while issuing a tier ends the run.
// Other errors, such as timeouts, still go through wait-and-verify.
func terminalIssueErr(err error) bool {
	return errors.Is(err, procctl.ErrNoProcess) || errors.Is(err, procctl.ErrPermission)
}
