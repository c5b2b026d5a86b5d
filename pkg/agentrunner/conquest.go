package agentrunner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/model"
)

// Conquest is the performance/optimization Agent Runner.
type Conquest struct {
	BaseRunner
	generator ScenarioGenerator
	scorer    ResponseScorer
	recorder  ResultRecorder
}

// NewConquest constructs the Conquest runner.
func NewConquest(gw Gateway, clk Clock, generator ScenarioGenerator, scorer ResponseScorer, recorder ResultRecorder) *Conquest {
	return &Conquest{BaseRunner: NewBaseRunner(model.Conquest, gw, clk), generator: generator, scorer: scorer, recorder: recorder}
}

// DomainTask produces an optimization candidate and self-scores it for
// performance (spec §4.11: "Conquest: produce an optimization candidate
// (abstract: returns a patch-set description), scored with
// category=Performance.").
func (c *Conquest) DomainTask(ctx context.Context) (DomainTaskResult, error) {
	scenario, err := c.generator.Generate(ctx, model.Conquest, model.CategoryPerformance, model.Intermediate)
	if err != nil {
		return DomainTaskResult{}, fmt.Errorf("conquest: generate optimization scenario: %w", err)
	}

	prompt := "Produce an optimization candidate: describe the patch-set, the bottleneck it targets, and the expected quantified improvement. " + scenario.Prompt
	candidate, err := c.callDomainPrompt(ctx, prompt)
	if err != nil {
		return DomainTaskResult{}, err
	}

	response := model.Response{
		ID:         uuid.NewString(),
		ScenarioID: scenario.ID,
		AgentKind:  model.Conquest,
		Text:       candidate,
		CreatedAt:  c.clock.Now(),
	}
	score, err := c.scorer.Score(ctx, scenario, response)
	if err != nil {
		return DomainTaskResult{}, fmt.Errorf("conquest: score optimization candidate: %w", err)
	}

	if err := c.recorder.ResponseInsert(ctx, response); err != nil {
		return DomainTaskResult{}, fmt.Errorf("conquest: persist response: %w", err)
	}
	if err := c.recorder.ScoreInsert(ctx, score); err != nil {
		return DomainTaskResult{}, fmt.Errorf("conquest: persist score: %w", err)
	}

	return DomainTaskResult{Notes: fmt.Sprintf("optimization candidate scored %.1f (performance overall)", score.Overall)}, nil
}
