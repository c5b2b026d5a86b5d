package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
	"github.com/aion-systems/aion-core/pkg/store/memstore"
)

func TestMetricsGetCreatesDefaultRow(t *testing.T) {
	s := memstore.New()
	m, err := s.MetricsGet(context.Background(), model.Imperium)
	require.NoError(t, err)
	assert.Equal(t, model.Imperium, m.Kind)
	assert.Equal(t, 1, m.Level)
	assert.Equal(t, int64(0), m.XP)
}

func TestMetricsUpdateIsCumulative(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	_, err := s.MetricsUpdate(ctx, model.Guardian, store.MetricsDelta{XPDelta: 10, TotalCyclesDelta: 1})
	require.NoError(t, err)
	m, err := s.MetricsUpdate(ctx, model.Guardian, store.MetricsDelta{XPDelta: 5, TotalCyclesDelta: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(15), m.XP)
	assert.Equal(t, int64(2), m.TotalCycles)
}

func TestScenarioInsertRejectsDuplicateFingerprint(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	sc := model.Scenario{ID: "s1", AgentKind: model.Sandbox, Fingerprint: "fp-1", CreatedAt: time.Now()}

	require.NoError(t, s.ScenarioInsert(ctx, sc))
	sc2 := sc
	sc2.ID = "s2"
	err := s.ScenarioInsert(ctx, sc2)
	assert.ErrorIs(t, err, store.ErrDuplicateFingerprint)
}

func TestProposalTransitionEnforcesStateMachine(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	p := model.Proposal{ID: "p1", Status: model.ProposalPending}
	require.NoError(t, s.ProposalInsert(ctx, p))

	_, err := s.ProposalTransition(ctx, "p1", model.ProposalPending, model.ProposalApproved, "alice", time.Now(), "")
	require.NoError(t, err)

	_, err = s.ProposalTransition(ctx, "p1", model.ProposalPending, model.ProposalApproved, "alice", time.Now(), "")
	assert.ErrorIs(t, err, store.ErrInvalidStateTransition)

	_, err = s.ProposalTransition(ctx, "p1", model.ProposalApproved, model.ProposalExecuted, "alice", time.Now(), "ok")
	require.NoError(t, err)

	_, err = s.ProposalTransition(ctx, "p1", model.ProposalApproved, model.ProposalExecuted, "alice", time.Now(), "ok")
	assert.ErrorIs(t, err, store.ErrAlreadyExecuted)
}

func TestScenarioRecentFingerprintsWindow(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.ScenarioInsert(ctx, model.Scenario{
			ID: string(rune('a' + i)), AgentKind: model.Conquest, Fingerprint: string(rune('a' + i)), CreatedAt: time.Now(),
		}))
	}
	fps, err := s.ScenarioRecentFingerprints(ctx, model.Conquest, 3)
	require.NoError(t, err)
	assert.Len(t, fps, 3)
}
