// Package ledger implements the Token Ledger (spec §4.3): bounding monthly
// spend per (agent, provider) against configured caps, and providing the
// precondition check the LLM Gateway depends on before making a call.
//
// Grounded on the teacher's thin-service-over-Store shape (pkg/services),
// generalized here to wrap pkg/store's token.* operations directly since the
// ent-backed service layer itself was dropped (see DESIGN.md).
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

// DenyReason classifies why precheck denied a request (spec §4.3).
type DenyReason string

const (
	ReasonRequestTooLarge   DenyReason = "request_too_large"
	ReasonMonthlyExhausted  DenyReason = "monthly_exhausted"
	ReasonFallbackThreshold DenyReason = "fallback_threshold"
)

// Decision is the precheck verdict.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenyReason) Decision { return Decision{Allowed: false, Reason: reason} }

// Clock abstracts "now" so the current month can be controlled in tests,
// per pkg/clock.
type Clock interface {
	Now() time.Time
}

// Ledger is the Token Ledger component (C3).
type Ledger struct {
	store store.Store
	cfg   *config.Manager
	clock Clock
}

// New constructs a Ledger over st, reading caps from cfg and using clk for
// the current-month key.
func New(st store.Store, cfg *config.Manager, clk Clock) *Ledger {
	return &Ledger{store: st, cfg: cfg, clock: clk}
}

func currentMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Precheck evaluates whether a call of estTokens for (agent, provider) would
// stay within configured caps. It never mutates state — record() does that.
//
// For Primary specifically, it also enforces the soft `token.fallback_
// threshold` (spec §6.3, default 0.95): once Primary's current-month usage
// fraction reaches that threshold — checked after the hard monthly-cap test,
// so a provider that is truly over cap is still reported as
// ReasonMonthlyExhausted rather than ReasonFallbackThreshold — Precheck
// denies with ReasonFallbackThreshold, so the Gateway's Primary→Secondary
// fallback (spec §4.4 step 4) engages before Primary is actually exhausted.
func (l *Ledger) Precheck(ctx context.Context, agent model.AgentKind, provider model.Provider, estTokens int64) (Decision, error) {
	pc, ok := l.cfg.Get().Providers[provider]
	if !ok {
		return deny(ReasonMonthlyExhausted), fmt.Errorf("ledger: unknown provider %q", provider)
	}

	if estTokens > pc.PerRequestCap {
		return deny(ReasonRequestTooLarge), nil
	}

	month := currentMonth(l.clock.Now())
	usage, err := l.store.TokenAggregate(ctx, agent, provider, month)
	if err != nil {
		return Decision{}, fmt.Errorf("ledger: aggregate: %w", err)
	}

	if usage.TokensTotal+estTokens > pc.MonthlyCap {
		return deny(ReasonMonthlyExhausted), nil
	}

	if provider == model.Primary && pc.MonthlyCap > 0 {
		threshold := l.cfg.Get().FallbackThresholdPct
		if threshold > 0 && float64(usage.TokensTotal)/float64(pc.MonthlyCap) >= threshold {
			return deny(ReasonFallbackThreshold), nil
		}
	}

	return allow(), nil
}

// Record appends a ledger entry for a completed (successful or failed) call.
// Monthly rollover is lazy: the entry is simply keyed by the current month;
// aggregates for a prior month stop growing on their own once the wall clock
// advances (spec §4.3 — "no in-memory timer required").
func (l *Ledger) Record(ctx context.Context, entry model.TokenLedgerEntry) error {
	if entry.Month == "" {
		entry.Month = currentMonth(l.clock.Now())
	}
	if entry.At.IsZero() {
		entry.At = l.clock.Now()
	}
	if err := l.store.TokenAppend(ctx, entry); err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

// UsagePct returns the fraction (0..1) of provider's monthly cap consumed by
// agent in the given month, used by the HTTP/WS surface's token.pressure
// event (spec §6.2: emitted when usage_pct ≥ 0.8).
func (l *Ledger) UsagePct(ctx context.Context, agent model.AgentKind, provider model.Provider, month string) (float64, error) {
	pc, ok := l.cfg.Get().Providers[provider]
	if !ok || pc.MonthlyCap <= 0 {
		return 0, fmt.Errorf("ledger: unknown provider %q", provider)
	}
	usage, err := l.store.TokenAggregate(ctx, agent, provider, month)
	if err != nil {
		return 0, fmt.Errorf("ledger: aggregate: %w", err)
	}
	return float64(usage.TokensTotal) / float64(pc.MonthlyCap), nil
}

// ResetAdmin archives every ledger entry outside the current month (spec
// §6.1 POST /tokens/reset, admin-only — enforced by the HTTP surface's auth
// middleware, not by the ledger itself). Archiving is process-wide, not
// per-agent, matching Store's monthly-rollover contract (spec §4.3).
func (l *Ledger) ResetAdmin(ctx context.Context) error {
	if err := l.store.TokenArchiveMonth(ctx, currentMonth(l.clock.Now())); err != nil {
		return fmt.Errorf("ledger: archive: %w", err)
	}
	return nil
}
