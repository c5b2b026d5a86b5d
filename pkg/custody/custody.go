// Package custody implements the Custody Engine (C8): the orchestrator that
// runs one end-to-end test cycle per tick — choose (category, complexity),
// generate a Scenario, get a Response, score it, and atomically update
// AgentMetrics — per spec §4.8.
//
// Grounded on the teacher's transactional claim-and-commit shape in
// `pkg/queue/worker.go` (`claimNextSession` / `updateSessionTerminalStatus`):
// there, a worker claims one row, processes it, and commits a single
// terminal-status update that either lands or doesn't; here, a cycle reads
// AgentMetrics, derives a single MetricsDelta, and commits it through one
// Store.MetricsUpdate call, so a crash mid-cycle never leaves a partial
// metrics mutation (spec §8 invariant 7).
package custody

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

// recentWindow is N in "last-N average score" (complexity adjustment) and in
// the level-up eligibility rule (spec §4.8); both read the same last-5
// window, so one constant serves both.
const recentWindow = 5

// Clock abstracts "now" for cycle timestamps.
type Clock interface {
	Now() time.Time
}

// Generator is the Test Generator capability the Custody Engine drives.
type Generator interface {
	Generate(ctx context.Context, agent model.AgentKind, category model.Category, complexity model.Complexity) (model.Scenario, error)
}

// Runner is the Agent Runner capability the Custody Engine drives to answer
// a custody Scenario.
type Runner interface {
	RespondToScenario(ctx context.Context, scenario model.Scenario) (model.Response, error)
}

// Scorer is the Scorer capability the Custody Engine drives.
type Scorer interface {
	Score(ctx context.Context, scenario model.Scenario, response model.Response) (model.Score, error)
}

// allowedCategories is the fixed per-kind subject-matter set (spec §4.8 point 1).
var allowedCategories = map[model.AgentKind][]model.Category{
	model.Imperium: {model.CategoryKnowledge, model.CategoryCodeQuality, model.CategorySelfImprovement},
	model.Guardian: {model.CategorySecurity, model.CategoryCodeQuality, model.CategoryPerformance},
	model.Sandbox:  {model.CategoryInnovation, model.CategoryExperiment, model.CategoryCrossAI},
	model.Conquest: {model.CategoryPerformance, model.CategoryInnovation, model.CategoryCodeQuality},
}

// baseXPByComplexity is the XP award for a fully-scored (overall=100) pass at
// each tier; xpGain scales this by overall/100 and is zero on failure (spec
// §4.8 point 5 combined with seed scenario S1's "xp_delta > 0 iff passed").
var baseXPByComplexity = map[model.Complexity]int64{
	model.Basic:        10,
	model.Intermediate: 20,
	model.Advanced:      35,
	model.Expert:        55,
	model.Master:        80,
	model.Legendary:    120,
}

// TriggerOptions overrides the Custody Engine's own (category, complexity)
// selection, per spec §6.1 `POST /custody/test` body `{kind, category?,
// complexity?}`. A manual trigger still goes through every other step
// (generate, respond, score, update) unchanged.
type TriggerOptions struct {
	Category   *model.Category
	Complexity *model.Complexity
	// CycleID, if set, is used as the resulting CycleRecord's ID instead of a
	// freshly minted one. The HTTP/WS Surface mints this upfront so a
	// POST /agents/{kind}/trigger or /custody/test request can hand the
	// caller a cycle_id synchronously even though the cycle itself runs on
	// the Scheduler's worker goroutine (spec §6.1).
	CycleID *string
}

// ScoreSink is an optional observer notified of every Score a cycle
// commits, for the Learning Loop to subscribe to (spec §4.10: "Subscribes
// to Score events"). Nil-safe: Engine nil-checks before calling, the same
// pattern as the Scheduler's EventSink.
type ScoreSink interface {
	PublishScore(ctx context.Context, kind model.AgentKind, category model.Category, response model.Response, score model.Score)
}

// Engine is the Custody Engine (C8).
type Engine struct {
	store     store.Store
	runners   map[model.AgentKind]Runner
	generator Generator
	scorer    Scorer
	cfg       *config.Manager
	clock     Clock
	sink      ScoreSink // nil until SetScoreSink is called
	log       *slog.Logger

	mu              sync.Mutex
	recentCategories map[model.AgentKind][]model.Category // last 2, most-recent last; in-process only
	inFlight         map[model.AgentKind]bool              // per-kind serialization (spec §8 invariant 2)
}

// SetScoreSink wires an optional Score observer, following the Scheduler's
// SetEventSink pattern. Must be called before the first RunCycle to avoid a
// startup race.
func (e *Engine) SetScoreSink(sink ScoreSink) {
	e.sink = sink
}

// New constructs a Custody Engine. runners should have an entry for every
// kind the Scheduler will ever drive; RunCycle fails cleanly for a kind with
// no registered runner rather than panicking.
func New(st store.Store, runners map[model.AgentKind]Runner, generator Generator, scorer Scorer, cfg *config.Manager, clk Clock) *Engine {
	return &Engine{
		store:            st,
		runners:          runners,
		generator:        generator,
		scorer:           scorer,
		cfg:              cfg,
		clock:            clk,
		log:              slog.Default().With("component", "custody"),
		recentCategories: make(map[model.AgentKind][]model.Category),
		inFlight:         make(map[model.AgentKind]bool),
	}
}

// RunCycle executes one complete custody test cycle for kind (spec §4.8
// points 1-6). Only one cycle per kind may be in flight at a time (spec §8
// invariant 2); a concurrent call for the same kind fails fast rather than
// queuing, leaving scheduling policy to the caller (the Scheduler already
// serializes per-kind runs, so this is a second line of defense).
func (e *Engine) RunCycle(ctx context.Context, kind model.AgentKind, opts TriggerOptions) (model.CycleRecord, error) {
	if !e.tryAcquire(kind) {
		return model.CycleRecord{}, apperr.New(apperr.KindConflict, fmt.Sprintf("custody: cycle already in flight for %s", kind))
	}
	defer e.release(kind)

	runner, ok := e.runners[kind]
	if !ok {
		return model.CycleRecord{}, apperr.New(apperr.KindInternal, fmt.Sprintf("custody: no runner registered for %s", kind))
	}

	started := e.clock.Now()
	cycleID := uuid.NewString()
	if opts.CycleID != nil && *opts.CycleID != "" {
		cycleID = *opts.CycleID
	}
	cycle := model.CycleRecord{ID: cycleID, AgentKind: kind, StartedAt: started}
	log := e.log.With("agent_kind", kind, "cycle_id", cycleID)
	log.Info("cycle started")

	metrics, err := e.store.MetricsGet(ctx, kind)
	if err != nil {
		return e.finishError(ctx, cycle, fmt.Errorf("custody: metrics get: %w", err))
	}

	category, err := e.chooseCategory(ctx, kind, opts)
	if err != nil {
		return e.finishError(ctx, cycle, err)
	}
	complexity := e.chooseComplexity(ctx, kind, metrics.Level, category, opts)

	scenario, genErr := e.generateWithRetry(ctx, kind, category, complexity)
	if genErr != nil {
		cycle.Outcome = model.OutcomeError
		cycle.Notes = genErr.Error()
		cycle.EndedAt = e.clock.Now()
		log.Error("cycle failed", "error", genErr)
		_ = e.store.CycleInsert(ctx, cycle)
		return cycle, genErr
	}
	e.recordCategory(kind, category)
	cycle.ScenarioID = scenario.ID

	response, err := runner.RespondToScenario(ctx, scenario)
	if err != nil {
		outcome := model.OutcomeError
		if apperr.KindOf(err) == apperr.KindTokensExhausted {
			outcome = model.OutcomeSkippedTokens
		}
		cycle.Outcome = outcome
		cycle.Notes = err.Error()
		cycle.EndedAt = e.clock.Now()
		log.Error("cycle failed", "error", err, "outcome", outcome)
		_ = e.store.CycleInsert(ctx, cycle)
		return cycle, err
	}

	score, err := e.scorer.Score(ctx, scenario, response)
	if err != nil {
		return e.finishError(ctx, cycle, fmt.Errorf("custody: score: %w", err))
	}

	if err := e.store.ResponseInsert(ctx, response); err != nil {
		return e.finishError(ctx, cycle, fmt.Errorf("custody: persist response: %w", err))
	}
	if err := e.store.ScoreInsert(ctx, score); err != nil {
		return e.finishError(ctx, cycle, fmt.Errorf("custody: persist score: %w", err))
	}

	xpDelta := xpGain(complexity, score.Overall, score.Passed)
	updated, err := e.applyMetrics(ctx, kind, metrics, xpDelta, score, started)
	if err != nil {
		return e.finishError(ctx, cycle, fmt.Errorf("custody: update metrics: %w", err))
	}
	if e.sink != nil {
		e.sink.PublishScore(ctx, kind, category, response, score)
	}

	cycle.Outcome = model.OutcomeOK
	cycle.XPDelta = xpDelta
	cycle.EndedAt = e.clock.Now()
	cycle.Notes = fmt.Sprintf("category=%s complexity=%s overall=%.1f passed=%t level=%d", category, complexity, score.Overall, score.Passed, updated.Level)
	log.Info("cycle ended", "outcome", cycle.Outcome, "overall", score.Overall, "passed", score.Passed, "xp_delta", xpDelta, "level", updated.Level)
	if err := e.store.CycleInsert(ctx, cycle); err != nil {
		return cycle, fmt.Errorf("custody: persist cycle record: %w", err)
	}
	return cycle, nil
}

func (e *Engine) finishError(ctx context.Context, cycle model.CycleRecord, cause error) (model.CycleRecord, error) {
	cycle.Outcome = model.OutcomeError
	cycle.Notes = cause.Error()
	cycle.EndedAt = e.clock.Now()
	e.log.With("agent_kind", cycle.AgentKind, "cycle_id", cycle.ID).Error("cycle failed", "error", cause)
	_ = e.store.CycleInsert(ctx, cycle)
	return cycle, cause
}

func (e *Engine) generateWithRetry(ctx context.Context, kind model.AgentKind, category model.Category, complexity model.Complexity) (model.Scenario, error) {
	scenario, err := e.generator.Generate(ctx, kind, category, complexity)
	if err == nil {
		return scenario, nil
	}
	scenario, err = e.generator.Generate(ctx, kind, category, complexity)
	if err != nil {
		return model.Scenario{}, fmt.Errorf("custody: generator failed twice: %w", err)
	}
	return scenario, nil
}

// applyMetrics derives the single MetricsDelta for this cycle and commits it
// in one Store call (spec §4.8 point 5).
func (e *Engine) applyMetrics(ctx context.Context, kind model.AgentKind, before model.AgentMetrics, xpDelta int64, score model.Score, startedAt time.Time) (model.AgentMetrics, error) {
	cfg := e.cfg.Get()
	newXP := before.XP + xpDelta
	newLevel := levelForXP(newXP)

	passedVal := 0.0
	if score.Passed {
		passedVal = 100.0
	}
	newSuccessRate := ewma(before.SuccessRate, passedVal, cfg.Learning.AlphaSuccess)

	newLearningScore := ewma(before.LearningScore, score.Overall, cfg.Learning.AlphaLearning)
	if newLearningScore < before.LearningScore-1 {
		newLearningScore = before.LearningScore - 1
	}

	now := e.clock.Now()
	delta := store.MetricsDelta{
		XPDelta:          xpDelta,
		LevelSet:         &newLevel,
		LearningScoreSet: &newLearningScore,
		SuccessRateSet:   &newSuccessRate,
		TotalCyclesDelta: 1,
		LastCycleAt:      &now,
	}
	return e.store.MetricsUpdate(ctx, kind, delta)
}

// chooseCategory implements the diversity filter (spec §4.8 point 1): not in
// the agent's last 2 categories unless all others are too. Recent-category
// history is kept in process memory only — it is an operational heuristic,
// not a durability invariant, so it resets (degrading gracefully to "no
// exclusion") across a restart.
func (e *Engine) chooseCategory(_ context.Context, kind model.AgentKind, opts TriggerOptions) (model.Category, error) {
	if opts.Category != nil {
		return *opts.Category, nil
	}
	allowed, ok := allowedCategories[kind]
	if !ok || len(allowed) == 0 {
		return "", apperr.New(apperr.KindInternal, fmt.Sprintf("custody: no allowed categories for %s", kind))
	}

	e.mu.Lock()
	recent := append([]model.Category(nil), e.recentCategories[kind]...)
	e.mu.Unlock()

	var candidates []model.Category
	for _, c := range allowed {
		if !containsCategory(recent, c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		candidates = allowed
	}
	return candidates[0], nil
}

func (e *Engine) recordCategory(kind model.AgentKind, category model.Category) {
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := append(e.recentCategories[kind], category)
	if len(hist) > 2 {
		hist = hist[len(hist)-2:]
	}
	e.recentCategories[kind] = hist
}

func containsCategory(list []model.Category, c model.Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

// chooseComplexity implements spec §4.8 point 1's complexity rule: base(level)
// adjusted by the last-N average score relative to the chosen category's
// pass threshold.
func (e *Engine) chooseComplexity(ctx context.Context, kind model.AgentKind, level int, category model.Category, opts TriggerOptions) model.Complexity {
	if opts.Complexity != nil {
		return *opts.Complexity
	}
	base := baseComplexityForLevel(level)

	recent, err := e.store.ScoreRecent(ctx, kind, recentWindow)
	if err != nil || len(recent) == 0 {
		return base
	}
	var sum float64
	for _, s := range recent {
		sum += s.Overall
	}
	avg := sum / float64(len(recent))

	threshold := e.cfg.Get().PassThresholdFor(category)
	switch {
	case avg >= 0.8*threshold:
		return base.Raise()
	case avg <= 0.4*threshold:
		return base.Lower()
	default:
		return base
	}
}

// baseComplexityForLevel maps an agent's level to its baseline tier before
// the last-N-average adjustment (spec §4.8 point 1). Level 1's baseline is
// Intermediate, matching seed scenario S1 exactly; Basic is reached only via
// a downward adjustment, never as a baseline.
func baseComplexityForLevel(level int) model.Complexity {
	switch {
	case level <= 1:
		return model.Intermediate
	case level <= 3:
		return model.Advanced
	case level <= 6:
		return model.Expert
	case level <= 10:
		return model.Master
	default:
		return model.Legendary
	}
}

// xpGain is spec §4.8 point 5's xp_gain(complexity, overall): zero on
// failure, otherwise the tier's base XP scaled by overall/100 (at least 1 on
// a pass, so a bare-minimum pass still advances xp).
func xpGain(complexity model.Complexity, overall float64, passed bool) int64 {
	if !passed {
		return 0
	}
	base := baseXPByComplexity[complexity]
	gain := int64(float64(base) * overall / 100.0)
	if gain < 1 {
		gain = 1
	}
	return gain
}

// levelThreshold is the cumulative XP required to reach level (triangular:
// level n requires 50*n*(n-1) total XP), giving a smoothly increasing climb
// with no magic per-level table to maintain.
func levelThreshold(level int) int64 {
	n := int64(level - 1)
	return 50 * n * (n + 1)
}

// levelForXP derives level from total XP by a monotonic table (spec §4.8
// point 5), scanning upward from 1 until the next threshold isn't met.
func levelForXP(xp int64) int {
	level := 1
	for levelThreshold(level+1) <= xp {
		level++
	}
	return level
}

// ewma applies one exponentially-weighted-moving-average step.
func ewma(prev, sample, alpha float64) float64 {
	return prev*(1-alpha) + sample*alpha
}

func (e *Engine) tryAcquire(kind model.AgentKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[kind] {
		return false
	}
	e.inFlight[kind] = true
	return true
}

func (e *Engine) release(kind model.AgentKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, kind)
}

// LevelUpPermitted implements the level-up eligibility rule (spec §4.8):
// ≥80% pass in the last 5 tests AND ≤2 consecutive failures.
func (e *Engine) LevelUpPermitted(ctx context.Context, kind model.AgentKind) (bool, error) {
	recent, err := e.store.ScoreRecent(ctx, kind, recentWindow)
	if err != nil {
		return false, fmt.Errorf("custody: level-up eligibility: %w", err)
	}
	if len(recent) == 0 {
		return false, nil
	}
	passCount := 0
	for _, s := range recent {
		if s.Passed {
			passCount++
		}
	}
	passRate := float64(passCount) / float64(len(recent))
	return passRate >= 0.8 && consecutiveFailures(recent) <= 2, nil
}

// ProposalPermitted implements the Guardian proposal eligibility rule (spec
// §4.8): ≥1 pass AND ≤3 consecutive failures AND a test within the last 24h.
func (e *Engine) ProposalPermitted(ctx context.Context, kind model.AgentKind) (bool, error) {
	const lookback = 20
	recent, err := e.store.ScoreRecent(ctx, kind, lookback)
	if err != nil {
		return false, fmt.Errorf("custody: proposal eligibility: %w", err)
	}
	if len(recent) == 0 {
		return false, nil
	}
	hasPass := false
	for _, s := range recent {
		if s.Passed {
			hasPass = true
			break
		}
	}
	if !hasPass || consecutiveFailures(recent) > 3 {
		return false, nil
	}
	if e.clock.Now().Sub(recent[0].CreatedAt) > 24*time.Hour {
		return false, nil
	}
	return true, nil
}

// consecutiveFailures counts failing scores from the most recent (index 0)
// backward until the first pass.
func consecutiveFailures(recent []model.Score) int {
	count := 0
	for _, s := range recent {
		if s.Passed {
			break
		}
		count++
	}
	return count
}
