package scorer_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/scorer"
)

func newScorer() *scorer.Scorer {
	return scorer.New(config.NewManager(config.Defaults()))
}

func scenario(category model.Category) model.Scenario {
	return model.Scenario{
		ID:        "scn-1",
		Category:  category,
		Complexity: model.Intermediate,
		CriteriaWeights: map[string]float64{
			"correctness":     35,
			"maintainability": 35,
			"completeness":    30,
		},
	}
}

func TestScoreBoundedAndDeterministic(t *testing.T) {
	s := newScorer()
	sc := scenario(model.CategoryCodeQuality)
	resp := model.Response{ID: "resp-1", ScenarioID: sc.ID, Text: "Because the interface decouples modules, we validate edge cases and handle errors consistently, testing each responsibility in isolation. First the module boundary; then the test harness; finally the error handling.", CreatedAt: time.Now()}

	first, err := s.Score(context.Background(), sc, resp)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first.Overall, 0.0)
	assert.LessOrEqual(t, first.Overall, 100.0)

	second, err := s.Score(context.Background(), sc, resp)
	require.NoError(t, err)
	assert.Equal(t, first.Overall, second.Overall, "scoring the same response twice must be deterministic")
	assert.Equal(t, first.CriterionBreakdown, second.CriterionBreakdown)
}

func TestScorePassFailThreshold(t *testing.T) {
	s := newScorer()
	sc := scenario(model.CategoryCodeQuality)

	weak := model.Response{ID: "resp-weak", ScenarioID: sc.ID, Text: "idk", CreatedAt: time.Now()}
	weakScore, err := s.Score(context.Background(), sc, weak)
	require.NoError(t, err)
	assert.False(t, weakScore.Passed)

	strong := model.Response{ID: "resp-strong", ScenarioID: sc.ID, Text: "Because the interface decouples modules, we validate every edge case and handle errors consistently. We test each responsibility in isolation, separating concerns across modules so maintainability stays high. First the module boundary; then the test harness; finally the error handling and validation of invariants and consistency across all interfaces, decoupled and modular.", CreatedAt: time.Now()}
	strongScore, err := s.Score(context.Background(), sc, strong)
	require.NoError(t, err)
	assert.True(t, strongScore.Passed)
}

// TestScoreRealismVarianceAcrossResponses encodes spec §4.7's realism
// requirement: across 50 synthetic responses of varied quality, the
// overall-score standard deviation must exceed 5 points.
func TestScoreRealismVarianceAcrossResponses(t *testing.T) {
	s := newScorer()
	sc := scenario(model.CategoryCodeQuality)

	var scores []float64
	for i := 0; i < 50; i++ {
		text := syntheticResponse(i)
		resp := model.Response{ID: fmt.Sprintf("resp-%d", i), ScenarioID: sc.ID, Text: text, CreatedAt: time.Now()}
		sco, err := s.Score(context.Background(), sc, resp)
		require.NoError(t, err)
		scores = append(scores, sco.Overall)
	}

	mean := 0.0
	for _, v := range scores {
		mean += v
	}
	mean /= float64(len(scores))

	var variance float64
	for _, v := range scores {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(scores))
	stdev := math.Sqrt(variance)

	assert.Greater(t, stdev, 5.0, "overall score stdev across varied-quality responses must exceed 5 points")
}

// syntheticResponse builds responses of deliberately varied quality: a
// mostly-empty reply, a keyword-sparse ramble, and a dense well-structured
// answer, cycling so the batch spans the full quality range.
func syntheticResponse(i int) string {
	switch i % 5 {
	case 0:
		return "not sure"
	case 1:
		return "This is a response about the system that talks about things in general terms without much depth or specific technical grounding at all really."
	case 2:
		return "Because the module boundary matters, we validate edge cases and handle errors. First we decouple responsibilities, then we test."
	case 3:
		return "Because the interface decouples modules, we validate every edge case and handle errors consistently, testing each responsibility in isolation. First the module boundary; then the test harness; finally the error handling. We separate concerns and keep interfaces modular and testable across the whole system."
	default:
		return "Because the interface decouples modules into separately testable units, we validate every edge case, handle every error path, and keep each module's responsibility single and well isolated. First we define the module boundary; then we build the test harness; then we wire error handling and invariant validation; finally we confirm consistency end to end. This keeps maintainability high and correctness provable, decoupled, modular, and thoroughly tested across every interface and responsibility."
	}
}
