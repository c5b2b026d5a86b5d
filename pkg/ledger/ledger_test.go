package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/ledger"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store/memstore"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

func newLedger(t *testing.T, clk time.Time) (*ledger.Ledger, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	cfg := config.NewManager(config.Defaults())
	return ledger.New(st, cfg, fakeClock{t: clk}), st
}

func TestPrecheckDeniesRequestTooLarge(t *testing.T) {
	l, _ := newLedger(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	d, err := l.Precheck(context.Background(), model.Imperium, model.Primary, 1_000_000)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ledger.ReasonRequestTooLarge, d.Reason)
}

func TestPrecheckDeniesMonthlyExhausted(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, now)
	ctx := context.Background()

	cap := config.Defaults().Providers[model.Primary].MonthlyCap
	require.NoError(t, l.Record(ctx, model.TokenLedgerEntry{
		ID: "e1", AgentKind: model.Imperium, Provider: model.Primary,
		Month: "2026-07", TokensIn: cap, TokensOut: 0, ModelID: "m", Kind: model.TokenKindChat, OK: true, At: now,
	}))

	d, err := l.Precheck(ctx, model.Imperium, model.Primary, 10)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ledger.ReasonMonthlyExhausted, d.Reason)
}

func TestPrecheckDeniesFallbackThresholdBeforeHardCap(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, now)
	ctx := context.Background()

	cap := config.Defaults().Providers[model.Primary].MonthlyCap
	require.NoError(t, l.Record(ctx, model.TokenLedgerEntry{
		ID: "e1", AgentKind: model.Guardian, Provider: model.Primary,
		Month: "2026-07", TokensIn: int64(float64(cap) * 0.96), OK: true,
		ModelID: "m", Kind: model.TokenKindChat, At: now,
	}))

	d, err := l.Precheck(ctx, model.Guardian, model.Primary, 10)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ledger.ReasonFallbackThreshold, d.Reason)

	// Secondary is unaffected by Primary's fallback threshold.
	d2, err := l.Precheck(ctx, model.Guardian, model.Secondary, 10)
	require.NoError(t, err)
	assert.True(t, d2.Allowed)
}

func TestPrecheckAllowsWithinCaps(t *testing.T) {
	l, _ := newLedger(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	d, err := l.Precheck(context.Background(), model.Guardian, model.Primary, 500)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestUsagePctReflectsRecordedSpend(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, now)
	ctx := context.Background()

	cap := config.Defaults().Providers[model.Secondary].MonthlyCap
	require.NoError(t, l.Record(ctx, model.TokenLedgerEntry{
		ID: "e1", AgentKind: model.Sandbox, Provider: model.Secondary,
		Month: "2026-07", TokensIn: cap / 2, ModelID: "m", Kind: model.TokenKindChat, OK: true, At: now,
	}))

	pct, err := l.UsagePct(ctx, model.Sandbox, model.Secondary, "2026-07")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pct, 0.01)
}

func TestRecordDefaultsMonthFromClock(t *testing.T) {
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	l, st := newLedger(t, now)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, model.TokenLedgerEntry{
		ID: "e1", AgentKind: model.Conquest, Provider: model.Primary, ModelID: "m", Kind: model.TokenKindChat, OK: true,
	}))

	usage, err := st.TokenAggregate(ctx, model.Conquest, model.Primary, "2026-07")
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.RequestCount)
}
