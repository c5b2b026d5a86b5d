// Package memstore is an in-process Store implementation used by unit tests
// and the Clock/PRNG-fake test harness (spec §9's "Monkey-patched test data"
// redesign note: "an in-memory Store backend used only by tests"). Outside
// tests, cmd/aion constructs one only when AION_STORE=memory is set for
// local development.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

// Store is an in-memory implementation of store.Store. All state is held in
// plain maps guarded by a single mutex — simplicity over throughput, since
// it serves deterministic tests and local development, not production load.
type Store struct {
	mu sync.Mutex

	metrics map[model.AgentKind]model.AgentMetrics

	ledger map[string][]model.TokenLedgerEntry // keyed by agent_kind|provider|month

	scenarios    []model.Scenario
	fingerprints map[model.AgentKind][]string // insertion order, most-recent last

	responses []model.Response
	scores    []model.Score

	knowledge []model.KnowledgePattern

	proposals map[string]model.Proposal

	cycles []model.CycleRecord

	sources map[string]bool // url -> trusted
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		metrics:      make(map[model.AgentKind]model.AgentMetrics),
		ledger:       make(map[string][]model.TokenLedgerEntry),
		fingerprints: make(map[model.AgentKind][]string),
		proposals:    make(map[string]model.Proposal),
		sources:      make(map[string]bool),
	}
}

func ledgerKey(kind model.AgentKind, provider model.Provider, month string) string {
	return string(kind) + "|" + string(provider) + "|" + month
}

func (s *Store) MetricsGet(ctx context.Context, kind model.AgentKind) (model.AgentMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsGetLocked(kind), nil
}

func (s *Store) metricsGetLocked(kind model.AgentKind) model.AgentMetrics {
	m, ok := s.metrics[kind]
	if !ok {
		m = model.AgentMetrics{
			Kind:   kind,
			Level:  1,
			Status: model.StatusIdle,
		}
		s.metrics[kind] = m
	}
	return m
}

func (s *Store) MetricsUpdate(ctx context.Context, kind model.AgentKind, delta store.MetricsDelta) (model.AgentMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.metricsGetLocked(kind)
	m.XP += delta.XPDelta
	if delta.LevelSet != nil {
		m.Level = *delta.LevelSet
	}
	m.Prestige += delta.PrestigeDelta
	if delta.LearningScoreSet != nil {
		m.LearningScore = *delta.LearningScoreSet
	}
	if delta.SuccessRateSet != nil {
		m.SuccessRate = *delta.SuccessRateSet
	}
	m.TotalCycles += delta.TotalCyclesDelta
	if delta.LastCycleAt != nil {
		m.LastCycleAt = delta.LastCycleAt
	}
	if delta.StatusSet != nil {
		m.Status = *delta.StatusSet
	}
	m.UpdatedAt = time.Now().UTC()
	s.metrics[kind] = m
	return m, nil
}

func (s *Store) MetricsResetAdmin(ctx context.Context, kind model.AgentKind) (model.AgentMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := model.AgentMetrics{Kind: kind, Level: 1, Status: model.StatusIdle, UpdatedAt: time.Now().UTC()}
	s.metrics[kind] = m
	return m, nil
}

func (s *Store) TokenAppend(ctx context.Context, entry model.TokenLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	key := ledgerKey(entry.AgentKind, entry.Provider, entry.Month)
	s.ledger[key] = append(s.ledger[key], entry)
	return nil
}

func (s *Store) TokenAggregate(ctx context.Context, kind model.AgentKind, provider model.Provider, month string) (model.TokenUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.ledger[ledgerKey(kind, provider, month)]
	var usage model.TokenUsage
	usage.AgentKind = kind
	usage.Provider = provider
	usage.Month = month
	for _, e := range entries {
		if !e.OK {
			continue
		}
		usage.TokensTotal += e.TokensIn + e.TokensOut
		usage.RequestCount++
	}
	return usage, nil
}

func (s *Store) TokenArchiveMonth(ctx context.Context, keepMonth string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entries := range s.ledger {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.Month == keepMonth {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(s.ledger, key)
		} else {
			s.ledger[key] = kept
		}
	}
	return nil
}

func (s *Store) ScenarioInsert(ctx context.Context, sc model.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fp := range s.fingerprints[sc.AgentKind] {
		if fp == sc.Fingerprint {
			return store.ErrDuplicateFingerprint
		}
	}
	s.scenarios = append(s.scenarios, sc)
	s.fingerprints[sc.AgentKind] = append(s.fingerprints[sc.AgentKind], sc.Fingerprint)
	return nil
}

func (s *Store) ScenarioRecentFingerprints(ctx context.Context, kind model.AgentKind, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.fingerprints[kind]
	if len(all) <= n {
		out := make([]string, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]string, n)
	copy(out, all[len(all)-n:])
	return out, nil
}

func (s *Store) ResponseInsert(ctx context.Context, r model.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *Store) ScoreInsert(ctx context.Context, sc model.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, sc)
	return nil
}

func (s *Store) ScoreRecent(ctx context.Context, kind model.AgentKind, limit int) ([]model.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	respByID := make(map[string]model.Response, len(s.responses))
	for _, r := range s.responses {
		respByID[r.ID] = r
	}

	var matched []model.Score
	for i := len(s.scores) - 1; i >= 0 && len(matched) < limit; i-- {
		sc := s.scores[i]
		if r, ok := respByID[sc.ResponseID]; ok && r.AgentKind == kind {
			matched = append(matched, sc)
		}
	}
	return matched, nil
}

func (s *Store) KnowledgeInsert(ctx context.Context, p model.KnowledgePattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.knowledge = append(s.knowledge, p)
	return nil
}

func (s *Store) KnowledgeQuery(ctx context.Context, owner *model.AgentKind, label *model.PatternLabel, limit int) ([]model.KnowledgePattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.KnowledgePattern
	for _, p := range s.knowledge {
		if owner != nil && p.OwnerKind != *owner {
			continue
		}
		if label != nil && p.Label != *label {
			continue
		}
		matched = append(matched, p)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Effectiveness != matched[j].Effectiveness {
			return matched[i].Effectiveness > matched[j].Effectiveness
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) ProposalInsert(ctx context.Context, p model.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.proposals[p.ID] = p
	return nil
}

func (s *Store) ProposalGet(ctx context.Context, id string) (model.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return model.Proposal{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ProposalTransition(ctx context.Context, id string, from, to model.ProposalStatus, decidedBy string, at time.Time, executionResult string) (model.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return model.Proposal{}, store.ErrNotFound
	}
	if p.Status != from {
		if from == model.ProposalApproved && to == model.ProposalExecuted && p.Status == model.ProposalExecuted {
			return model.Proposal{}, store.ErrAlreadyExecuted
		}
		return model.Proposal{}, store.ErrInvalidStateTransition
	}
	p.Status = to
	p.DecidedAt = &at
	p.DecidedBy = decidedBy
	if executionResult != "" {
		p.ExecutionResult = executionResult
	}
	s.proposals[id] = p
	return p, nil
}

func (s *Store) ProposalList(ctx context.Context, status *model.ProposalStatus) ([]model.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Proposal
	for _, p := range s.proposals {
		if status != nil && p.Status != *status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CycleInsert(ctx context.Context, c model.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.cycles = append(s.cycles, c)
	return nil
}

func (s *Store) CycleRecent(ctx context.Context, kind model.AgentKind, limit int) ([]model.CycleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []model.CycleRecord
	for i := len(s.cycles) - 1; i >= 0 && len(matched) < limit; i-- {
		if s.cycles[i].AgentKind == kind {
			matched = append(matched, s.cycles[i])
		}
	}
	return matched, nil
}

func (s *Store) SourceAdd(ctx context.Context, url string, trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[url] = trusted
	return nil
}

func (s *Store) SourceRemove(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, url)
	return nil
}

func (s *Store) SourceList(ctx context.Context) ([]store.SourceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.SourceRecord, 0, len(s.sources))
	for url, trusted := range s.sources {
		out = append(out, store.SourceRecord{URL: url, Trusted: trusted})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
