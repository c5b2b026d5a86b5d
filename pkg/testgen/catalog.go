package testgen

import "github.com/aion-systems/aion-core/pkg/model"

// slotCatalog holds the closed content catalog for one category's template
// family: a set of scenario stems, roles, and projects to assemble into a
// prompt (spec §4.6 steps 1-3). Content is grounded on (adapted from, not
// copied verbatim from) the scenario categories in
// original_source/ai-backend-python/autonomous_test_generator.py —
// "architecture"→CodeQuality, "security"→Security, "performance"→
// Performance, "ai_ml"→Innovation, "devops"→SelfImprovement,
// "collaboration"→CrossAI — plus two families (Knowledge, Experiment) the
// original didn't carry, built in the same style.
type slotCatalog struct {
	Stems    []string
	Roles    []string
	Projects []string
}

var catalogs = map[model.Category]slotCatalog{
	model.CategoryKnowledge: {
		Stems: []string{
			"Summarize the tradeoffs between %s and explain when each applies",
			"Explain how %s works under the hood and where it breaks down at scale",
			"Compare %s against its nearest alternatives and justify a recommendation",
		},
		Roles:    []string{"a principal engineer", "a platform architect", "a staff SRE"},
		Projects: []string{"event-driven systems", "distributed consensus protocols", "schema evolution strategies", "cache invalidation strategies"},
	},
	model.CategoryCodeQuality: {
		Stems: []string{
			"Design a microservices architecture for %s and identify its weakest seams",
			"Architect a multi-tenant platform for %s with isolated data and shared infrastructure",
			"Review and refactor a tangled module implementing %s for maintainability",
		},
		Roles:    []string{"a tech lead", "a code reviewer", "an architecture reviewer"},
		Projects: []string{"a real-time trading platform", "a multi-region e-commerce backend", "an IoT device management system", "a serverless mobile backend"},
	},
	model.CategorySecurity: {
		Stems: []string{
			"Implement a zero-trust security model for %s with continuous monitoring",
			"Design a secure API gateway for %s with rate limiting and token management",
			"Audit %s for common injection and privilege-escalation vectors",
		},
		Roles:    []string{"a security engineer", "an application security reviewer", "a threat modeler"},
		Projects: []string{"a payment processing system", "a container orchestration platform", "an authentication service", "an IoT device fleet"},
	},
	model.CategoryPerformance: {
		Stems: []string{
			"Optimize %s for 10M+ concurrent users with a caching strategy",
			"Design a scalable data layer for %s with read replicas and pooling",
			"Profile and eliminate the dominant bottleneck in %s",
		},
		Roles:    []string{"a performance engineer", "a capacity planner", "a database tuner"},
		Projects: []string{"a high-traffic web application", "a real-time analytics pipeline", "a video streaming platform", "a gaming backend"},
	},
	model.CategoryInnovation: {
		Stems: []string{
			"Propose a novel architecture for %s that no current vendor offers",
			"Design an AI-assisted workflow for %s with measurable novelty",
			"Invent an unconventional approach to %s and justify its tradeoffs",
		},
		Roles:    []string{"an R&D lead", "an innovation strategist", "a prototyping engineer"},
		Projects: []string{"a recommendation engine", "a fraud detection system", "a content moderation pipeline", "a hyperparameter search platform"},
	},
	model.CategorySelfImprovement: {
		Stems: []string{
			"Design a CI/CD pipeline for %s with automated rollback",
			"Build a monitoring and alerting strategy for %s",
			"Propose a self-healing remediation plan for %s",
		},
		Roles:    []string{"a DevOps engineer", "an SRE", "a release engineer"},
		Projects: []string{"a Kubernetes-based deployment", "a configuration management system", "a disaster-recovery process", "a vulnerability scanning pipeline"},
	},
	model.CategoryCrossAI: {
		Stems: []string{
			"Design a real-time collaborative workflow for %s across two independent agents",
			"Propose a conflict-resolution protocol for %s shared between agents",
			"Architect a hand-off contract for %s between cooperating agents",
		},
		Roles:    []string{"a collaboration-protocol designer", "a distributed-systems architect", "an integration engineer"},
		Projects: []string{"a shared document editor", "a multi-agent task queue", "a joint incident response", "a shared knowledge base"},
	},
	model.CategoryExperiment: {
		Stems: []string{
			"Design a controlled experiment to validate %s, including a falsifiable hypothesis",
			"Propose an A/B test for %s and define its success metric",
			"Specify a benchmark protocol for %s with a stated baseline",
		},
		Roles:    []string{"an experimentalist", "a research engineer", "a benchmark author"},
		Projects: []string{"a new caching policy", "a ranking model change", "a retry backoff strategy", "a sharding scheme"},
	},
}

// legendaryStems replaces the normal family for Complexity=Legendary, per
// §9's resolved open question that Legendary gets its own distinct prompt
// family rather than reusing Master's template scaled up.
var legendaryStems = map[model.Category]string{
	model.CategoryKnowledge:       "In one response, reconcile three conflicting authorities on %s and produce a definitive, citeable synthesis",
	model.CategoryCodeQuality:     "Design, from first principles, an architecture for %s that must survive a 100x traffic shock without a rewrite",
	model.CategorySecurity:        "Design a security model for %s that remains sound even if any single trust anchor is compromised",
	model.CategoryPerformance:     "Redesign %s to cut p99 latency by 10x without increasing cost",
	model.CategoryInnovation:      "Invent a fundamentally new approach to %s that existing literature does not already describe",
	model.CategorySelfImprovement: "Design a fully autonomous remediation system for %s requiring zero human intervention",
	model.CategoryCrossAI:         "Design a protocol letting two agents jointly solve %s with no shared memory",
	model.CategoryExperiment:      "Design a multi-stage experiment program for %s robust to adversarial manipulation of its own metrics",
}

// baseCriteriaWeights gives each category's criterion weights (sum to 100)
// before complexity scaling (spec §4.6 step 4).
var baseCriteriaWeights = map[model.Category]map[string]float64{
	model.CategoryKnowledge:       {"accuracy": 40, "clarity": 30, "completeness": 30},
	model.CategoryCodeQuality:     {"correctness": 35, "maintainability": 35, "completeness": 30},
	model.CategorySecurity:       {"threat_coverage": 45, "correctness": 30, "clarity": 25},
	model.CategoryPerformance:    {"quantification": 40, "correctness": 35, "completeness": 25},
	model.CategoryInnovation:     {"novelty": 45, "feasibility": 35, "clarity": 20},
	model.CategorySelfImprovement: {"automation": 40, "correctness": 35, "completeness": 25},
	model.CategoryCrossAI:        {"protocol_soundness": 40, "clarity": 30, "feasibility": 30},
	model.CategoryExperiment:     {"falsifiability": 40, "rigor": 35, "clarity": 25},
}

// complexityMultiplier scales criteria weights by tier (spec §4.6 step 4:
// "scaled by complexity multiplier"). Harder tiers push weights above the
// Intermediate baseline's sum-to-100, which raises the bar a response must
// clear under the Scorer's Σ(sub_score×weight)/100 formula; pkg/scorer
// clips the result to [0,100] regardless.
var complexityMultiplier = map[model.Complexity]float64{
	model.Basic:        0.85,
	model.Intermediate: 1.0,
	model.Advanced:     1.1,
	model.Expert:       1.2,
	model.Master:        1.3,
	model.Legendary:     1.5,
}
