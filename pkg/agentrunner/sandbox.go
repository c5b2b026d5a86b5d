package agentrunner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/model"
)

// ScenarioGenerator is the subset of the Test Generator (C6) a self-scoring
// domain task uses to obtain criteria weights for its own category, so its
// plan is judged by the same rubric a custody test would use.
type ScenarioGenerator interface {
	Generate(ctx context.Context, agent model.AgentKind, category model.Category, complexity model.Complexity) (model.Scenario, error)
}

// ResponseScorer is the subset of the Scorer (C7) a self-scoring domain task
// uses.
type ResponseScorer interface {
	Score(ctx context.Context, scenario model.Scenario, response model.Response) (model.Score, error)
}

// ResultRecorder persists a domain task's self-generated Response/Score pair.
// Domain tasks never touch AgentMetrics directly (spec §8 invariant 6: only
// the Custody Engine writes AgentMetrics) — they only append immutable
// Response/Score rows.
type ResultRecorder interface {
	ResponseInsert(ctx context.Context, r model.Response) error
	ScoreInsert(ctx context.Context, s model.Score) error
}

// Sandbox is the experimentation Agent Runner.
type Sandbox struct {
	BaseRunner
	generator ScenarioGenerator
	scorer    ResponseScorer
	recorder  ResultRecorder
}

// NewSandbox constructs the Sandbox runner.
func NewSandbox(gw Gateway, clk Clock, generator ScenarioGenerator, scorer ResponseScorer, recorder ResultRecorder) *Sandbox {
	return &Sandbox{BaseRunner: NewBaseRunner(model.Sandbox, gw, clk), generator: generator, scorer: scorer, recorder: recorder}
}

// DomainTask designs an experiment and self-scores its novelty (spec §4.11:
// "Sandbox: design an experiment (abstract: returns a structured plan),
// score its novelty via the Scorer with category=Innovation.").
func (s *Sandbox) DomainTask(ctx context.Context) (DomainTaskResult, error) {
	scenario, err := s.generator.Generate(ctx, model.Sandbox, model.CategoryInnovation, model.Intermediate)
	if err != nil {
		return DomainTaskResult{}, fmt.Errorf("sandbox: generate experiment scenario: %w", err)
	}

	prompt := "Design a structured experiment plan: hypothesis, method, metric, and expected novelty. " + scenario.Prompt
	plan, err := s.callDomainPrompt(ctx, prompt)
	if err != nil {
		return DomainTaskResult{}, err
	}

	response := model.Response{
		ID:         uuid.NewString(),
		ScenarioID: scenario.ID,
		AgentKind:  model.Sandbox,
		Text:       plan,
		CreatedAt:  s.clock.Now(),
	}
	score, err := s.scorer.Score(ctx, scenario, response)
	if err != nil {
		return DomainTaskResult{}, fmt.Errorf("sandbox: score experiment plan: %w", err)
	}

	if err := s.recorder.ResponseInsert(ctx, response); err != nil {
		return DomainTaskResult{}, fmt.Errorf("sandbox: persist response: %w", err)
	}
	if err := s.recorder.ScoreInsert(ctx, score); err != nil {
		return DomainTaskResult{}, fmt.Errorf("sandbox: persist score: %w", err)
	}

	return DomainTaskResult{Notes: fmt.Sprintf("experiment plan scored %.1f (novelty overall)", score.Overall)}, nil
}
