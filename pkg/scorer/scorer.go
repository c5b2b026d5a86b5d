// Package scorer implements the Scorer (spec §4.7): evaluates an agent
// Response against the Scenario it answers, producing a deterministic
// (except for one clamped stochastic criterion) score in [0,100] plus a
// per-criterion breakdown, pass/fail, and strengths/weaknesses.
//
// Grounded on original_source/.../guardian_ai_service.py's mix of rule-based
// health checks and LLM-judged scoring, and on the teacher's `SessionScore`
// ent schema shape (total_score, score_analysis) — generalized here into a
// criteria-table-driven detector set since the ent-backed storage layer
// itself was dropped (see DESIGN.md).
package scorer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/model"
)

// maxStochasticShare bounds how much of overall may come from stochastic
// criteria (spec §4.7: "clamps stochastic contribution to ≤ 20% of overall").
const maxStochasticShare = 0.20

// Scorer is the Scorer component (C7).
type Scorer struct {
	cfg *config.Manager
}

// New constructs a Scorer reading pass thresholds from cfg.
func New(cfg *config.Manager) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score implements the Scorer's contract (spec §4.7).
func (s *Scorer) Score(_ context.Context, scenario model.Scenario, response model.Response) (model.Score, error) {
	if len(scenario.CriteriaWeights) == 0 {
		return model.Score{}, fmt.Errorf("scorer: scenario %s has no criteria weights", scenario.ID)
	}

	rawWeightSum := 0.0
	for _, w := range scenario.CriteriaWeights {
		rawWeightSum += w
	}

	rng := rngFor(response.ID)

	breakdown := make(map[string]float64, len(scenario.CriteriaWeights))
	var overall float64
	for name, weight := range scenario.CriteriaWeights {
		det, ok := detectors[name]
		if !ok {
			return model.Score{}, fmt.Errorf("scorer: no detector registered for criterion %q", name)
		}

		effWeight := weight
		if stochasticCriteria[name] {
			cap := maxStochasticShare * rawWeightSum
			if effWeight > cap {
				effWeight = cap
			}
			breakdown[name] = det(response.Text, rng)
		} else {
			breakdown[name] = det(response.Text, nil)
		}
		overall += breakdown[name] * effWeight
	}
	overall = clamp(overall/100, 0, 100)

	threshold := s.cfg.Get().PassThresholdFor(scenario.Category)
	passed := overall >= threshold

	strengths, weaknesses := strengthsAndWeaknesses(breakdown)

	return model.Score{
		ResponseID:         response.ID,
		Overall:            overall,
		Passed:             passed,
		CriterionBreakdown: breakdown,
		FeedbackText:       feedbackText(overall, threshold, strengths, weaknesses),
		Strengths:          strengths,
		Weaknesses:         weaknesses,
		CreatedAt:          response.CreatedAt,
	}, nil
}

// rngFor seeds a PRNG from the response ID so the stochastic criterion is
// deterministic for a given (scenario, response) pair — repeated scoring of
// the same response never changes its verdict — while still varying across
// responses (spec §4.7: "deterministic given (scenario, response) except
// where an LLM-assisted criterion is explicitly marked stochastic").
func rngFor(responseID string) *rand.Rand {
	sum := sha256.Sum256([]byte(responseID))
	var seed1, seed2 uint64
	for i := 0; i < 8; i++ {
		seed1 = seed1<<8 | uint64(sum[i])
		seed2 = seed2<<8 | uint64(sum[i+8])
	}
	return rand.New(rand.NewPCG(seed1, seed2))
}

// strengthsAndWeaknesses derives strengths/weaknesses from per-criterion
// sub-scores above/below ±1σ from the mean (spec §4.7).
func strengthsAndWeaknesses(breakdown map[string]float64) ([]string, []string) {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Strings(names)

	n := float64(len(names))
	if n == 0 {
		return nil, nil
	}
	var mean float64
	for _, v := range breakdown {
		mean += v
	}
	mean /= n

	var variance float64
	for _, v := range breakdown {
		d := v - mean
		variance += d * d
	}
	variance /= n
	sigma := sqrt(variance)

	var strengths, weaknesses []string
	for _, name := range names {
		v := breakdown[name]
		switch {
		case v >= mean+sigma:
			strengths = append(strengths, name)
		case v <= mean-sigma:
			weaknesses = append(weaknesses, name)
		}
	}
	return strengths, weaknesses
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	// Newton's method; criterion counts are tiny (<20) so a handful of
	// iterations is exact to float64 precision.
	x := v
	for i := 0; i < 32; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

func feedbackText(overall, threshold float64, strengths, weaknesses []string) string {
	verdict := "failed"
	if overall >= threshold {
		verdict = "passed"
	}
	msg := fmt.Sprintf("Scored %.1f/100 (threshold %.0f) — %s.", overall, threshold, verdict)
	if len(strengths) > 0 {
		msg += fmt.Sprintf(" Strong on: %v.", strengths)
	}
	if len(weaknesses) > 0 {
		msg += fmt.Sprintf(" Weak on: %v.", weaknesses)
	}
	return msg
}
