package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aion-systems/aion-core/pkg/agentrunner"
	fakeclock "github.com/aion-systems/aion-core/pkg/clock"
	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/custody"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/scheduler"
	"github.com/aion-systems/aion-core/pkg/store/memstore"
)

type fakeGate struct{ allow atomic.Bool }

func newFakeGate(allow bool) *fakeGate {
	g := &fakeGate{}
	g.allow.Store(allow)
	return g
}

func (g *fakeGate) Allow(context.Context) (bool, error) { return g.allow.Load(), nil }

type fakeCustody struct {
	calls atomic.Int64
}

func (c *fakeCustody) RunCycle(ctx context.Context, kind model.AgentKind, opts custody.TriggerOptions) (model.CycleRecord, error) {
	c.calls.Add(1)
	return model.CycleRecord{ID: "c", AgentKind: kind, Outcome: model.OutcomeOK}, nil
}

type fakeDomainRunner struct {
	kind  model.AgentKind
	calls atomic.Int64
}

func (r *fakeDomainRunner) Kind() model.AgentKind { return r.kind }

func (r *fakeDomainRunner) DomainTask(ctx context.Context) (agentrunner.DomainTaskResult, error) {
	r.calls.Add(1)
	return agentrunner.DomainTaskResult{Notes: "did the thing"}, nil
}

func newScheduler(t *testing.T, allow bool, cadence, initialDelay time.Duration) (*scheduler.Scheduler, *fakeclock.FakeClock, *fakeCustody, *fakeDomainRunner, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	ce := &fakeCustody{}
	runner := &fakeDomainRunner{kind: model.Imperium}
	gate := newFakeGate(allow)
	clk := fakeclock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := config.NewManager(config.Defaults())
	cfg.Update(func(c *config.Config) {
		c.Cadence[model.Imperium] = config.CadenceConfig{Interval: cadence, InitialDelay: initialDelay}
	})

	s := scheduler.New(st, ce, gate, cfg, clk, map[model.AgentKind]scheduler.DomainRunner{
		model.Imperium: runner,
	})
	return s, clk, ce, runner, st
}

func TestSchedulerRunsDueCadence(t *testing.T) {
	s, clk, ce, runner, st := newScheduler(t, true, 10*time.Second, 0)
	s.Start()
	defer s.Stop()

	clk.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return ce.calls.Load() >= 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, time.Second, time.Millisecond)

	cycles, err := st.CycleRecent(context.Background(), model.Imperium, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, cycles)
}

func TestSchedulerSkipsWhenResourceGateClosed(t *testing.T) {
	s, clk, ce, _, _ := newScheduler(t, false, 10*time.Second, 0)
	s.Start()
	defer s.Stop()

	clk.Advance(2 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), ce.calls.Load())
}

func TestSchedulerNotDueYetDoesNothing(t *testing.T) {
	s, clk, ce, _, _ := newScheduler(t, true, time.Hour, time.Hour)
	s.Start()
	defer s.Stop()

	clk.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), ce.calls.Load())
}

func TestSchedulerManualTriggerBypassesCadence(t *testing.T) {
	s, _, ce, _, _ := newScheduler(t, true, time.Hour, time.Hour)
	s.Start()
	defer s.Stop()

	ok := s.Trigger(model.Imperium, custody.TriggerOptions{})
	require.True(t, ok)
	require.Eventually(t, func() bool { return ce.calls.Load() >= 1 }, time.Second, time.Millisecond)
}

func TestSchedulerTriggerUnknownKindReturnsFalse(t *testing.T) {
	s, _, _, _, _ := newScheduler(t, true, time.Hour, time.Hour)
	s.Start()
	defer s.Stop()

	ok := s.Trigger(model.Guardian, custody.TriggerOptions{})
	assert.False(t, ok)
}
