// Package scheduler implements the Scheduler (C12): one background worker
// per agent kind that fires its custody cycle and domain task on its
// configured cadence, gated by host resource headroom and by Manual triggers
// that bypass the cadence but not the per-kind serialization already
// enforced by the Custody Engine.
//
// Grounded on the teacher's pkg/queue/worker.go: a poll loop driven by a
// ticker rather than a single blocking sleep, started and stopped through
// the stopCh/sync.Once/sync.WaitGroup idiom, so Stop always returns once
// every worker goroutine has actually exited.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aion-systems/aion-core/pkg/agentrunner"
	"github.com/aion-systems/aion-core/pkg/clock"
	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/custody"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

// pollTick is how often each kind's worker wakes to check whether its
// cadence is due. It is independent of any kind's actual Interval, which is
// always much larger; a short tick just keeps the gap between "due" and
// "run" small without a separate timer per due instant.
const pollTick = 1 * time.Second

// CustodyEngine is the subset of the Custody Engine a worker drives.
type CustodyEngine interface {
	RunCycle(ctx context.Context, kind model.AgentKind, opts custody.TriggerOptions) (model.CycleRecord, error)
}

// DomainRunner is the subset of an Agent Runner a worker drives for its
// own-cadence domain task.
type DomainRunner interface {
	Kind() model.AgentKind
	DomainTask(ctx context.Context) (agentrunner.DomainTaskResult, error)
}

// worker tracks one agent kind's cadence state.
type worker struct {
	kind       model.AgentKind
	runner     DomainRunner
	lastRun    time.Time
	nextAttempt time.Time // set when a due tick was skipped by the resource gate
	manual     chan custody.TriggerOptions
}

// EventSink is an optional observer notified of every cycle this Scheduler
// records, for the HTTP/WS Surface to republish as cycle.start/cycle.end
// events. Nil-safe: Scheduler nil-checks before calling, the same pattern
// the teacher's Server uses for its optional Set*Service dependencies.
type EventSink interface {
	CycleRecorded(record model.CycleRecord)
}

// Scheduler is the Scheduler (C12).
type Scheduler struct {
	store   store.Store
	custody CustodyEngine
	gate    Gate
	cfg     *config.Manager
	clock   clock.Clock
	log     *slog.Logger
	sink    EventSink // nil until SetEventSink is called

	workers map[model.AgentKind]*worker

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Scheduler with one worker per runner in runners.
func New(st store.Store, ce CustodyEngine, gate Gate, cfg *config.Manager, clk clock.Clock, runners map[model.AgentKind]DomainRunner) *Scheduler {
	workers := make(map[model.AgentKind]*worker, len(runners))
	for kind, r := range runners {
		workers[kind] = &worker{kind: kind, runner: r, manual: make(chan custody.TriggerOptions, 1)}
	}
	return &Scheduler{
		store:   st,
		custody: ce,
		gate:    gate,
		cfg:     cfg,
		clock:   clk,
		log:     slog.Default().With("component", "scheduler"),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// SetEventSink wires an optional cycle observer, following the teacher's
// Set*Service wiring pattern in pkg/api/server.go. Must be called before
// Start to avoid a startup race with the first tick.
func (s *Scheduler) SetEventSink(sink EventSink) {
	s.sink = sink
}

// Start launches one goroutine per registered kind. lastRun is seeded so the
// kind's configured InitialDelay is honored without a blocking Sleep: the
// worker's first due instant is now+InitialDelay, computed algebraically
// rather than waited out, so Stop can still cancel a worker immediately
// during its initial delay.
func (s *Scheduler) Start() {
	now := s.clock.Now()
	for kind, w := range s.workers {
		cadence := s.cfg.Get().Cadence[kind]
		w.lastRun = now.Add(cadence.InitialDelay).Add(-cadence.Interval)
		s.wg.Add(1)
		go s.runWorker(w)
	}
}

// Stop signals every worker to exit and waits for them to drain.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Pause marks kind paused in its AgentMetrics row; maybeRun skips its ticks
// until Resume is called. A manual Trigger still runs during a pause, the
// same way an operator's explicit request overrides cadence gating.
func (s *Scheduler) Pause(ctx context.Context, kind model.AgentKind) error {
	status := model.StatusPaused
	_, err := s.store.MetricsUpdate(ctx, kind, store.MetricsDelta{StatusSet: &status})
	return err
}

// Resume clears a pause set by Pause, returning kind to active scheduling.
func (s *Scheduler) Resume(ctx context.Context, kind model.AgentKind) error {
	status := model.StatusActive
	_, err := s.store.MetricsUpdate(ctx, kind, store.MetricsDelta{StatusSet: &status})
	return err
}

// Trigger requests an immediate, cadence-bypassing cycle for kind. It does
// not bypass the Custody Engine's own per-kind in-flight guard: a manual
// trigger for a kind already mid-cycle simply runs right after the current
// one finishes. Returns false if kind has no registered worker or a manual
// trigger is already queued for it.
func (s *Scheduler) Trigger(kind model.AgentKind, opts custody.TriggerOptions) bool {
	w, ok := s.workers[kind]
	if !ok {
		return false
	}
	select {
	case w.manual <- opts:
		return true
	default:
		return false // a manual trigger is already queued for this kind
	}
}

func (s *Scheduler) runWorker(w *worker) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case opts := <-w.manual:
			s.runOnce(w, opts)
		case <-ticker.C():
			s.maybeRun(w)
		}
	}
}

// maybeRun checks whether w's cadence is due and, if so, either runs it or
// defers it when the resource gate is closed. A
// gate-driven skip sets nextAttempt to retry the same due instant after the
// gate's poll interval, rather than advancing lastRun, which would silently
// skip all the way to the following cadence period.
func (s *Scheduler) maybeRun(w *worker) {
	now := s.clock.Now()
	cadence := s.cfg.Get().Cadence[w.kind]

	due := w.lastRun.Add(cadence.Interval)
	if now.Before(due) {
		return
	}
	if !w.nextAttempt.IsZero() && now.Before(w.nextAttempt) {
		return
	}

	metrics, err := s.store.MetricsGet(context.Background(), w.kind)
	if err != nil {
		s.log.Error("metrics lookup failed", "agent_kind", w.kind, "error", err)
		return
	}
	if metrics.Status == model.StatusPaused {
		w.lastRun = now
		return
	}

	allow, err := s.gate.Allow(context.Background())
	if err != nil {
		s.log.Error("resource gate check failed", "agent_kind", w.kind, "error", err)
		return
	}
	if !allow {
		w.nextAttempt = now.Add(s.cfg.Get().ResourceGate.PollInterval)
		s.log.Warn("cadence due but resource gate closed, deferring", "agent_kind", w.kind)
		return
	}

	w.nextAttempt = time.Time{}
	w.lastRun = now
	s.runOnce(w, custody.TriggerOptions{})
}

// runOnce drives one custody cycle followed by the kind's own domain task.
// The two are recorded as separate CycleRecords: the custody cycle's XPDelta
// reflects the scored test, the domain task's is always zero since domain
// work earns no custody XP.
func (s *Scheduler) runOnce(w *worker, opts custody.TriggerOptions) {
	ctx := context.Background()

	custodyRecord, err := s.custody.RunCycle(ctx, w.kind, opts)
	if err != nil {
		s.log.Error("custody cycle failed", "agent_kind", w.kind, "error", err)
	}
	s.notify(custodyRecord)

	started := s.clock.Now()
	result, err := w.runner.DomainTask(ctx)
	record := model.CycleRecord{
		ID:        fmt.Sprintf("%s-domain-%d", w.kind, started.UnixNano()),
		AgentKind: w.kind,
		StartedAt: started,
		EndedAt:   s.clock.Now(),
		Outcome:   model.OutcomeOK,
		Notes:     result.Notes,
	}
	if err != nil {
		record.Outcome = model.OutcomeError
		record.Notes = err.Error()
		s.log.Error("domain task failed", "agent_kind", w.kind, "error", err)
	}
	if err := s.store.CycleInsert(ctx, record); err != nil {
		s.log.Error("persist domain task cycle record", "agent_kind", w.kind, "error", err)
	}
	s.notify(record)
	if result.Proposal != nil {
		s.log.Info("domain task surfaced a proposal", "agent_kind", w.kind, "proposal_id", result.Proposal.ID)
	}
}

// notify republishes record to the event sink, if one is wired. The
// Scheduler is synchronous per cycle, so cycle.start and cycle.end are both
// known only once record is complete; the sink is expected to emit both
// notifications back to back rather than a true start-then-end stream.
func (s *Scheduler) notify(record model.CycleRecord) {
	if s.sink != nil && record.ID != "" {
		s.sink.CycleRecorded(record)
	}
}
