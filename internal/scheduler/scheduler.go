// Package scheduler runs independent periodic pipelines. A trigger never
// overlaps itself: ticks that arrive while its pipeline runs are dropped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/hostwarden/internal/logging"
)

// Trigger is one periodic pipeline.
type Trigger struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// Immediate runs the pipeline once at start instead of waiting a full interval.
	Immediate bool
}

// TriggerStats counts what a trigger has done since Run started.
type TriggerStats struct {
	Runs     int64     `json:"runs"`
	Failures int64     `json:"failures"`
	Dropped  int64     `json:"dropped"`
	LastRun  time.Time `json:"last_run"`
	LastErr  string    `json:"last_error,omitempty"`
}

// Scheduler runs triggers until its context is cancelled.
type Scheduler struct {
	log *slog.Logger

	mu    sync.Mutex
	stats map[string]*TriggerStats
}

// New creates a Scheduler.
func New() *Scheduler {
	return &Scheduler{
		log:   logging.Component("scheduler"),
		stats: make(map[string]*TriggerStats),
	}
}

// Run starts every trigger in its own goroutine and blocks until ctx is
// cancelled and all in-flight pipelines have returned. Pipeline errors are
// logged and never stop the scheduler.
func (s *Scheduler) Run(ctx context.Context, triggers ...Trigger) error {
	for _, t := range triggers {
		if t.Interval <= 0 {
			return fmt.Errorf("trigger %q: interval must be positive", t.Name)
		}
		if t.Run == nil {
			return fmt.Errorf("trigger %q: no pipeline", t.Name)
		}
	}

	s.mu.Lock()
	for _, t := range triggers {
		s.stats[t.Name] = &TriggerStats{}
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, t := range triggers {
		g.Go(func() error {
			s.loop(ctx, t)
			return nil
		})
	}
	s.log.Info("scheduler started", "triggers", len(triggers))
	err := g.Wait()
	s.log.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, t Trigger) {
	log := s.log.With("trigger", t.Name)
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	run := func() {
		elapsed := s.fire(ctx, t, log)
		s.drain(ticker, t, log, elapsed)
	}
	if t.Immediate && ctx.Err() == nil {
		run()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			run()
		}
	}
}

// drain discards a tick left pending by a long run and counts every tick
// the run overlapped as dropped.
func (s *Scheduler) drain(ticker *time.Ticker, t Trigger, log *slog.Logger, elapsed time.Duration) {
	dropped := int64(elapsed / t.Interval)
	select {
	case <-ticker.C:
		if dropped == 0 {
			dropped = 1
		}
	default:
	}
	if dropped == 0 {
		return
	}
	s.mu.Lock()
	s.stats[t.Name].Dropped += dropped
	s.mu.Unlock()
	log.Warn("pipeline overran its interval; ticks dropped", "dropped", dropped)
}

func (s *Scheduler) fire(ctx context.Context, t Trigger, log *slog.Logger) time.Duration {
	start := time.Now()
	err := safeRun(ctx, t.Run)

	s.mu.Lock()
	st := s.stats[t.Name]
	st.Runs++
	st.LastRun = start
	st.LastErr = ""
	if err != nil {
		st.Failures++
		st.LastErr = err.Error()
	}
	s.mu.Unlock()

	elapsed := time.Since(start)
	if err != nil {
		log.Error("pipeline failed", "error", err, "duration", elapsed)
	} else {
		log.Debug("pipeline finished", "duration", elapsed)
	}
	return elapsed
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Stats returns a copy of every trigger's counters.
func (s *Scheduler) Stats() map[string]TriggerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TriggerStats, len(s.stats))
	for k, v := range s.stats {
		out[k] = *v
	}
	return out
}
