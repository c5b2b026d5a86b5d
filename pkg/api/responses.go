package api

import (
	"time"

	"github.com/aion-systems/aion-core/pkg/model"
)

// agentStatusView is one entry of GET /agents/status (spec §6.1).
type agentStatusView struct {
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	Level         int        `json:"level"`
	XP            int64      `json:"xp"`
	LearningScore float64    `json:"learning_score"`
	SuccessRate   float64    `json:"success_rate"`
	LastCycleAt   *time.Time `json:"last_cycle_at,omitempty"`
}

type agentsStatusResponse struct {
	Agents []agentStatusView `json:"agents"`
}

// proposalView is the JSON shape of a model.Proposal in API responses.
type proposalView struct {
	ID              string                  `json:"id"`
	Kind            string                  `json:"kind"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	Actions         []model.ProposalAction  `json:"actions"`
	Risk            string                  `json:"risk"`
	Status          string                  `json:"status"`
	CreatedAt       time.Time               `json:"created_at"`
	DecidedAt       *time.Time              `json:"decided_at,omitempty"`
	DecidedBy       string                  `json:"decided_by,omitempty"`
	ExecutionResult string                  `json:"execution_result,omitempty"`
}

func newProposalView(p model.Proposal) proposalView {
	return proposalView{
		ID:              p.ID,
		Kind:            p.Kind,
		Title:           p.Title,
		Description:     p.Description,
		Actions:         p.Actions,
		Risk:            string(p.Risk),
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
		DecidedAt:       p.DecidedAt,
		DecidedBy:       p.DecidedBy,
		ExecutionResult: p.ExecutionResult,
	}
}

// tokenUsageResponse is the JSON shape of GET /tokens/usage.
type tokenUsageResponse struct {
	AgentKind    string  `json:"agent_kind"`
	Provider     string  `json:"provider"`
	Month        string  `json:"month"`
	TokensTotal  int64   `json:"tokens_total"`
	RequestCount int64   `json:"request_count"`
	UsagePct     float64 `json:"usage_pct"`
}

// knowledgePatternView is the JSON shape of a model.KnowledgePattern.
type knowledgePatternView struct {
	ID            string         `json:"id"`
	OwnerKind     string         `json:"owner_kind"`
	Label         string         `json:"label"`
	Features      map[string]any `json:"features"`
	Effectiveness float64        `json:"effectiveness"`
	CreatedAt     time.Time      `json:"created_at"`
}

func newKnowledgePatternView(p model.KnowledgePattern) knowledgePatternView {
	return knowledgePatternView{
		ID:            p.ID,
		OwnerKind:     string(p.OwnerKind),
		Label:         string(p.Label),
		Features:      p.Features,
		Effectiveness: p.Effectiveness,
		CreatedAt:     p.CreatedAt,
	}
}

// sourceView is the JSON shape of GET /sources.
type sourceView struct {
	URL     string `json:"url"`
	Trusted bool   `json:"trusted"`
}

// custodyAnalyticsResponse is the JSON shape of GET /custody/analytics.
type custodyAnalyticsResponse struct {
	AgentKind           string         `json:"agent_kind"`
	PassRate            float64        `json:"pass_rate"`
	RecentScores        []float64      `json:"recent_scores"`
	CategoryDistribution map[string]int `json:"category_distribution"`
}
