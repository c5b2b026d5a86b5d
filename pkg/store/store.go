// Package store defines the durable persistence contract for the
// orchestration core (spec §4.2). It specifies schema and invariants, not
// storage implementation — concrete implementations live in the pgstore
// (Postgres, via pgx) and memstore (in-process, for tests and local
// development) sub-packages,
// following the spec's explicit non-goal of "providing a general ORM".
package store

import (
	"context"
	"time"

	"github.com/aion-systems/aion-core/pkg/model"
)

// MetricsDelta describes a read-modify-write adjustment to an AgentMetrics
// row. Fields left at their zero value leave the corresponding column
// unchanged except where noted; Store implementations apply a delta
// atomically per kind (spec §4.2: "metrics.update is linearizable per kind").
type MetricsDelta struct {
	XPDelta            int64
	LevelSet           *int
	PrestigeDelta      int
	LearningScoreSet   *float64
	SuccessRateSet     *float64
	TotalCyclesDelta   int64
	LastCycleAt        *time.Time
	StatusSet          *model.AgentStatus
}

// Store groups the transactional operations the spec requires, organized by
// aggregate (spec §4.2). Every method is safe for concurrent use across
// agents; per-kind linearizability is guaranteed only where the spec
// requires it (MetricsUpdate, ProposalTransition).
type Store interface {
	// Metrics

	// MetricsGet returns the AgentMetrics row for kind, creating a default
	// row on first use (spec §3: "created on first use of a kind").
	MetricsGet(ctx context.Context, kind model.AgentKind) (model.AgentMetrics, error)
	// MetricsUpdate atomically applies delta to kind's row and returns the
	// resulting row.
	MetricsUpdate(ctx context.Context, kind model.AgentKind, delta MetricsDelta) (model.AgentMetrics, error)
	// MetricsResetAdmin explicitly resets level/xp/learning_score — the only
	// sanctioned path by which those fields may decrease (spec §3 invariant).
	MetricsResetAdmin(ctx context.Context, kind model.AgentKind) (model.AgentMetrics, error)

	// Token ledger

	TokenAppend(ctx context.Context, entry model.TokenLedgerEntry) error
	TokenAggregate(ctx context.Context, kind model.AgentKind, provider model.Provider, month string) (model.TokenUsage, error)
	// TokenArchiveMonth moves all entries for months other than keepMonth
	// into an archive partition view (spec §4.3: monthly rollover).
	TokenArchiveMonth(ctx context.Context, keepMonth string) error

	// Scenarios

	// ScenarioInsert persists a scenario. ErrDuplicateFingerprint is returned
	// if the (agent_kind, fingerprint) pair already exists within the
	// non-repetition window (spec testable property 8).
	ScenarioInsert(ctx context.Context, s model.Scenario) error
	ScenarioRecentFingerprints(ctx context.Context, kind model.AgentKind, n int) ([]string, error)

	// Responses & scores

	ResponseInsert(ctx context.Context, r model.Response) error
	ScoreInsert(ctx context.Context, s model.Score) error
	ScoreRecent(ctx context.Context, kind model.AgentKind, limit int) ([]model.Score, error)

	// Knowledge

	KnowledgeInsert(ctx context.Context, p model.KnowledgePattern) error
	KnowledgeQuery(ctx context.Context, owner *model.AgentKind, label *model.PatternLabel, limit int) ([]model.KnowledgePattern, error)

	// Proposals

	ProposalInsert(ctx context.Context, p model.Proposal) error
	ProposalGet(ctx context.Context, id string) (model.Proposal, error)
	// ProposalTransition moves a proposal from `from` to `to`, recording
	// decidedBy and the clock's current time. Fails with
	// ErrInvalidStateTransition if the proposal is not currently in state
	// `from`, or with ErrAlreadyExecuted when an approved→executed transition
	// finds the proposal already executed (spec §4.2, §8 invariant 5).
	ProposalTransition(ctx context.Context, id string, from, to model.ProposalStatus, decidedBy string, at time.Time, executionResult string) (model.Proposal, error)
	ProposalList(ctx context.Context, status *model.ProposalStatus) ([]model.Proposal, error)

	// Cycles

	CycleInsert(ctx context.Context, c model.CycleRecord) error
	CycleRecent(ctx context.Context, kind model.AgentKind, limit int) ([]model.CycleRecord, error)

	// Sources (Source Registry persistence — spec §4.5)

	SourceAdd(ctx context.Context, url string, trusted bool) error
	SourceRemove(ctx context.Context, url string) error
	SourceList(ctx context.Context) ([]SourceRecord, error)

	// Close releases any underlying resources (connection pools, etc).
	Close() error
}

// SourceRecord is the persisted representation of a registered Source.
type SourceRecord struct {
	URL     string
	Trusted bool
}
