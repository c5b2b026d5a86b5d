// Package testgen implements the Test Generator (spec §4.6): given an agent
// kind, category, and complexity, produce a Scenario whose prompt and
// criteria weights are reproducibly derived yet non-repeating across a
// sliding window of recent generations.
//
// Grounded on original_source/ai-backend-python/autonomous_test_generator.py
// and .../app/services/dynamic_test_generator.py's template-family +
// closed-catalog-of-slots shape; reproduced here in Go idiom rather than
// translated line-for-line.
package testgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

const maxReseedAttempts = 8

// Clock abstracts "now", which seeds the PRNG alongside (agent, category,
// complexity) per spec §4.6 step 1.
type Clock interface {
	Now() time.Time
}

// Generator is the Test Generator component (C6).
type Generator struct {
	store store.Store
	clock Clock
}

// New constructs a Generator.
func New(st store.Store, clk Clock) *Generator {
	return &Generator{store: st, clock: clk}
}

// Generate implements the Test Generator's contract (spec §4.6).
func (g *Generator) Generate(ctx context.Context, agent model.AgentKind, category model.Category, complexity model.Complexity) (model.Scenario, error) {
	catalog, ok := catalogs[category]
	if !ok {
		return model.Scenario{}, apperr.New(apperr.KindValidation, fmt.Sprintf("testgen: unknown category %q", category))
	}

	now := g.clock.Now()
	recent, err := g.store.ScenarioRecentFingerprints(ctx, agent, 200)
	if err != nil {
		return model.Scenario{}, fmt.Errorf("testgen: recent fingerprints: %w", err)
	}
	seen := make(map[string]bool, len(recent))
	for _, fp := range recent {
		seen[fp] = true
	}

	weights := scaledWeights(category, complexity)

	var prompt, fingerprint string
	for attempt := 0; attempt < maxReseedAttempts; attempt++ {
		seed := seedFor(agent, category, complexity, now, attempt)
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

		prompt = assemble(catalog, category, complexity, rng)
		fingerprint = fingerprintOf(prompt, weights)
		if !seen[fingerprint] {
			break
		}
		prompt, fingerprint = "", ""
	}

	if fingerprint == "" {
		// All 8 reseeds collided: mutate one slot deterministically (spec
		// §4.6 step 6) by walking the role catalog until unique.
		prompt, fingerprint = mutateUntilUnique(catalog, category, complexity, seedFor(agent, category, complexity, now, 0), seen)
	}

	sc := model.Scenario{
		ID:              uuid.NewString(),
		AgentKind:       agent,
		Category:        category,
		Complexity:      complexity,
		Prompt:          prompt,
		CriteriaWeights: weights,
		TimeLimitS:      int(complexity.TimeLimit().Seconds()),
		CreatedAt:       now,
		Fingerprint:     fingerprint,
	}
	if err := g.store.ScenarioInsert(ctx, sc); err != nil {
		return model.Scenario{}, fmt.Errorf("testgen: insert: %w", err)
	}
	return sc, nil
}

func scaledWeights(category model.Category, complexity model.Complexity) map[string]float64 {
	base := baseCriteriaWeights[category]
	mult := complexityMultiplier[complexity]
	out := make(map[string]float64, len(base))
	for k, v := range base {
		out[k] = v * mult
	}
	return out
}

func assemble(catalog slotCatalog, category model.Category, complexity model.Complexity, rng *rand.Rand) string {
	stem := catalog.Stems[rng.IntN(len(catalog.Stems))]
	if complexity == model.Legendary {
		if s, ok := legendaryStems[category]; ok {
			stem = s
		}
	}
	project := catalog.Projects[rng.IntN(len(catalog.Projects))]
	role := catalog.Roles[rng.IntN(len(catalog.Roles))]

	body := fmt.Sprintf(stem, project)
	return fmt.Sprintf("You are %s. %s. Complexity tier: %s.", role, body, complexity)
}

// mutateUntilUnique walks the role catalog deterministically (spec §4.6
// step 6: "mutate one slot deterministically... until unique").
func mutateUntilUnique(catalog slotCatalog, category model.Category, complexity model.Complexity, seed uint64, seen map[string]bool) (string, string) {
	rng := rand.New(rand.NewPCG(seed, seed))
	stem := catalog.Stems[0]
	if complexity == model.Legendary {
		if s, ok := legendaryStems[category]; ok {
			stem = s
		}
	}
	project := catalog.Projects[rng.IntN(len(catalog.Projects))]
	weights := scaledWeights(category, complexity)

	for i := 0; i < len(catalog.Roles); i++ {
		role := catalog.Roles[i%len(catalog.Roles)]
		prompt := fmt.Sprintf("You are %s. %s. Complexity tier: %s.", role, fmt.Sprintf(stem, project), complexity)
		fp := fingerprintOf(prompt, weights)
		if !seen[fp] {
			return prompt, fp
		}
	}
	// Catalog exhausted: every role already collides, which a run of
	// generations at the same clock instant reaches once its reseeds and
	// roles are used up — append a disambiguating suffix as a last resort.
	prompt := fmt.Sprintf("You are %s. %s. Complexity tier: %s. (variant %d)", catalog.Roles[0], fmt.Sprintf(stem, project), complexity, len(seen))
	return prompt, fingerprintOf(prompt, weights)
}

func seedFor(agent model.AgentKind, category model.Category, complexity model.Complexity, wallTime time.Time, attempt int) uint64 {
	h := sha256.New()
	h.Write([]byte(string(agent)))
	h.Write([]byte(string(category)))
	h.Write([]byte(string(complexity)))
	fmt.Fprintf(h, "%d", wallTime.UnixNano())
	fmt.Fprintf(h, "%d", attempt)
	sum := h.Sum(nil)
	var seed uint64
	for i := 0; i < 8; i++ {
		seed = seed<<8 | uint64(sum[i])
	}
	return seed
}

// fingerprintOf implements spec §4.6 step 5: hash(prompt || sorted(criteria_weights)).
func fingerprintOf(prompt string, weights map[string]float64) string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(prompt)
	for _, k := range keys {
		fmt.Fprintf(&sb, "|%s=%.4f", k, weights[k])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
