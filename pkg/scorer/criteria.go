package scorer

import (
	"math/rand/v2"
	"regexp"
	"strings"
)

// detector evaluates one criterion against a response's text, returning a
// sub-score in [0,100]. rng is non-nil only for the stochastic "novelty"
// detector (spec §4.7's "LLM-assisted... explicitly marked stochastic").
type detector func(text string, rng *rand.Rand) float64

// stochasticCriteria lists the criterion names whose detector draws on rng.
// The Scorer clamps their combined contribution to ≤20% of overall (spec
// §4.7, §9 decision 2), grounded on guardian_ai_service.py's LLM-judged
// scoring mixed with rule-based health checks.
var stochasticCriteria = map[string]bool{
	"novelty": true,
}

// detectors maps every criterion name used by pkg/testgen's base weight
// tables to a concrete rule. Keyword/structure heuristics substitute for the
// "LLM-assisted grading" the spec leaves unspecified (§9 decision 2):
// responses are scored on whether they actually address the dimension a
// criterion names, not merely on length.
var detectors = map[string]detector{
	"accuracy":           keywordDensity([]string{"because", "therefore", "specifically", "in practice", "trade-off", "tradeoff"}),
	"clarity":            structureScore,
	"completeness":       coverageScore([]string{"first", "second", "then", "finally", "also", "additionally"}),
	"correctness":        keywordDensity([]string{"invariant", "edge case", "error", "handle", "validate", "consistency"}),
	"maintainability":    keywordDensity([]string{"interface", "module", "decouple", "test", "responsibility", "separation"}),
	"threat_coverage":    keywordDensity([]string{"authenticat", "authoriz", "encrypt", "injection", "least privilege", "rate limit"}),
	"quantification":     quantificationScore,
	"novelty":            noveltyScore,
	"feasibility":        keywordDensity([]string{"cost", "risk", "migration", "rollout", "constraint", "limitation"}),
	"automation":         keywordDensity([]string{"automat", "pipeline", "rollback", "alert", "self-heal", "remediat"}),
	"protocol_soundness":  keywordDensity([]string{"conflict", "ordering", "idempotent", "handshake", "contract", "timeout"}),
	"falsifiability":      keywordDensity([]string{"hypothesis", "baseline", "control group", "metric", "significance", "null"}),
	"rigor":                structureScore,
}

var wordRe = regexp.MustCompile(`[A-Za-z']+`)

// keywordDensity scores a response by how many of the given marker phrases
// it contains, saturating once at least a third of them appear. Case
// insensitive; matches substrings deliberately (e.g. "authorize" matches
// "authoriz").
func keywordDensity(markers []string) detector {
	return func(text string, _ *rand.Rand) float64 {
		lower := strings.ToLower(text)
		hits := 0
		for _, m := range markers {
			if strings.Contains(lower, m) {
				hits++
			}
		}
		target := (len(markers) + 2) / 3
		if target < 1 {
			target = 1
		}
		score := float64(hits) / float64(target) * 100
		if score > 100 {
			score = 100
		}
		return score
	}
}

// structureScore rewards responses organized with multiple sentences and
// paragraph-like breaks over an unstructured wall of text, as a proxy for
// clarity/rigor.
func structureScore(text string, _ *rand.Rand) float64 {
	sentences := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	lines := strings.Count(strings.TrimSpace(text), "\n") + 1
	words := len(wordRe.FindAllString(text, -1))
	if words == 0 {
		return 0
	}
	avgSentenceLen := float64(words) / float64(max(sentences, 1))
	// Penalize both run-on prose (very long average sentence) and
	// telegraphic one-word "sentences".
	lengthScore := 100 - clamp(abs(avgSentenceLen-18)*2.5, 0, 100)
	structureBonus := clamp(float64(lines)*5, 0, 30)
	return clamp(lengthScore*0.8+structureBonus, 0, 100)
}

// coverageScore rewards responses that enumerate multiple steps/points,
// approximating "completeness" for multi-part scenarios.
func coverageScore(markers []string) detector {
	kd := keywordDensity(markers)
	return func(text string, rng *rand.Rand) float64 {
		words := len(wordRe.FindAllString(text, -1))
		lengthScore := clamp(float64(words)/3, 0, 100)
		return clamp(kd(text, rng)*0.6+lengthScore*0.4, 0, 100)
	}
}

// quantificationScore rewards responses that cite concrete numbers, the
// signature of a performance answer that actually quantifies its claims.
func quantificationScore(text string, _ *rand.Rand) float64 {
	digitRuns := regexp.MustCompile(`\d[\d,.]*\s*(ms|s|%|x|req|qps|rps|mb|gb)?`).FindAllString(text, -1)
	score := float64(len(digitRuns)) * 15
	return clamp(score, 0, 100)
}

// noveltyScore is the one stochastic criterion the spec allows (§4.7):
// rewards unconventional-language markers deterministically, then perturbs
// the result by a bounded random draw. The caller (Scorer.Score) is
// responsible for clamping this criterion's overall contribution to ≤20%.
func noveltyScore(text string, rng *rand.Rand) float64 {
	base := keywordDensity([]string{"novel", "unconventional", "never", "instead of", "unlike", "breaks from"})(text, rng)
	if rng == nil {
		return base
	}
	jitter := (rng.Float64() - 0.5) * 20 // +/- 10 points
	return clamp(base+jitter, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
