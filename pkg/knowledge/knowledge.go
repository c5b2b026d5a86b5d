// Package knowledge implements the Knowledge Store (spec §4.9): an
// append-only set of labeled patterns per agent, queryable for cross-agent
// transfer. Grounded on the teacher's thin-service-over-Store shape, the
// same pattern pkg/ledger generalizes from (see DESIGN.md) — there is no
// third-party concern here beyond the Store it wraps.
package knowledge

import (
	"context"
	"fmt"

	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

// Store is the Knowledge Store component (C9).
type Store struct {
	store store.Store
}

// New constructs a Store over st.
func New(st store.Store) *Store {
	return &Store{store: st}
}

// Insert appends a pattern (spec §4.9 "append-only").
func (s *Store) Insert(ctx context.Context, p model.KnowledgePattern) error {
	if err := s.store.KnowledgeInsert(ctx, p); err != nil {
		return fmt.Errorf("knowledge: insert: %w", err)
	}
	return nil
}

// Query returns patterns ordered by effectiveness desc, created_at desc
// (spec §4.9), optionally filtered by owner and/or label.
func (s *Store) Query(ctx context.Context, owner *model.AgentKind, label *model.PatternLabel, limit int) ([]model.KnowledgePattern, error) {
	patterns, err := s.store.KnowledgeQuery(ctx, owner, label, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query: %w", err)
	}
	return patterns, nil
}
