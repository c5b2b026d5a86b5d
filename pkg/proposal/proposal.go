// Package proposal implements the Proposal Manager (C13): the lifecycle
// state machine for Guardian-initiated privileged actions requiring human
// approval (spec §4.13).
//
// Grounded on the teacher's status-transition discipline for AlertSession/
// Stage (ent enum fields transitioned only through guarded Store calls —
// here Store.ProposalTransition, which rejects an invalid `from` with
// apperr.ErrInvalidStateTransition per spec §4.2/§8 invariant 5) and on its
// `pkg/slack.Service` nil-safe notifier pattern for the optional approval
// notification side channel.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

// Clock abstracts "now" for stamping CreatedAt/DecidedAt.
type Clock interface {
	Now() time.Time
}

// ApprovalNotifier is an optional side channel informing humans a Proposal
// awaits decision (spec §9 glossary: "never authoritative — the HTTP API
// remains the only way to actually approve/reject"). Nil-safe, following
// pkg/slack.Service: every implementation's methods must tolerate being
// called freely; Manager itself nil-checks before calling.
type ApprovalNotifier interface {
	NotifyProposalCreated(ctx context.Context, p model.Proposal)
}

// ApprovedActionExecutor is the external collaborator contract (spec §6.5)
// that actually performs a Proposal's declared actions. No free-form shell:
// every action must be named in the executor's own allow-list.
type ApprovedActionExecutor interface {
	Execute(ctx context.Context, actions []model.ProposalAction) (ExecutionOutcome, error)
}

// ExecutionOutcome is the ApprovedActionExecutor's per-action result set.
type ExecutionOutcome struct {
	PerActionResult []string
}

// Manager is the Proposal Manager component (C13).
type Manager struct {
	store    store.Store
	executor ApprovedActionExecutor
	notifier ApprovalNotifier // may be nil
	clock    Clock
}

// New constructs a Manager. notifier may be nil (no side-channel
// notifications sent), matching pkg/slack.Service's nil-safety.
func New(st store.Store, executor ApprovedActionExecutor, notifier ApprovalNotifier, clk Clock) *Manager {
	return &Manager{store: st, executor: executor, notifier: notifier, clock: clk}
}

// Create raises a new pending Proposal (spec §4.13 lifecycle: "created by
// Guardian Runner"). Implements agentrunner.ProposalCreator.
func (m *Manager) Create(ctx context.Context, title, description string, actions []model.ProposalAction, risk model.RiskLevel) (model.Proposal, error) {
	p := model.Proposal{
		ID:          uuid.NewString(),
		Kind:        "system_healing",
		Title:       title,
		Description: description,
		Actions:     actions,
		Risk:        risk,
		Status:      model.ProposalPending,
		CreatedAt:   m.clock.Now(),
	}
	if err := m.store.ProposalInsert(ctx, p); err != nil {
		return model.Proposal{}, fmt.Errorf("proposal: insert: %w", err)
	}
	if m.notifier != nil {
		m.notifier.NotifyProposalCreated(ctx, p)
	}
	return p, nil
}

// Get returns a single Proposal by ID.
func (m *Manager) Get(ctx context.Context, id string) (model.Proposal, error) {
	p, err := m.store.ProposalGet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Proposal{}, apperr.Wrap(apperr.KindNotFound, "proposal: not found", err)
		}
		return model.Proposal{}, fmt.Errorf("proposal: get: %w", err)
	}
	return p, nil
}

// List returns proposals, optionally filtered by status (spec §6.1
// `GET /proposals?status=`).
func (m *Manager) List(ctx context.Context, status *model.ProposalStatus) ([]model.Proposal, error) {
	out, err := m.store.ProposalList(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("proposal: list: %w", err)
	}
	return out, nil
}

// Approve transitions a pending Proposal to approved (spec §4.13: "Only
// pending may transition to approved or rejected.").
func (m *Manager) Approve(ctx context.Context, id, approver string) (model.Proposal, error) {
	return m.transition(ctx, id, model.ProposalPending, model.ProposalApproved, approver, "")
}

// Reject transitions a pending Proposal to rejected.
func (m *Manager) Reject(ctx context.Context, id, approver, reason string) (model.Proposal, error) {
	return m.transition(ctx, id, model.ProposalPending, model.ProposalRejected, approver, reason)
}

// Execute dispatches an approved Proposal's actions through the
// ApprovedActionExecutor and transitions to executed or failed (spec §4.13:
// "Only approved may transition to executed or failed... at-most-once: a
// second execute call on executed fails with AlreadyExecuted.").
func (m *Manager) Execute(ctx context.Context, id string) (model.Proposal, error) {
	p, err := m.store.ProposalGet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Proposal{}, apperr.Wrap(apperr.KindNotFound, "proposal: not found", err)
		}
		return model.Proposal{}, fmt.Errorf("proposal: get: %w", err)
	}
	if p.Status == model.ProposalExecuted {
		return model.Proposal{}, apperr.ErrAlreadyExecuted
	}
	if p.Status != model.ProposalApproved {
		return model.Proposal{}, apperr.Wrap(apperr.KindInvalidStateTransition, fmt.Sprintf("proposal: cannot execute from status %q", p.Status), store.ErrInvalidStateTransition)
	}

	outcome, execErr := m.executor.Execute(ctx, p.Actions)

	to := model.ProposalExecuted
	resultText := joinResults(outcome.PerActionResult)
	if execErr != nil {
		to = model.ProposalFailed
		resultText = execErr.Error()
	}

	updated, err := m.store.ProposalTransition(ctx, id, model.ProposalApproved, to, "", m.clock.Now(), resultText)
	if err != nil {
		return model.Proposal{}, mapTransitionErr(err)
	}
	if execErr != nil {
		return updated, fmt.Errorf("proposal: execution failed: %w", execErr)
	}
	return updated, nil
}

func (m *Manager) transition(ctx context.Context, id string, from, to model.ProposalStatus, decidedBy, reason string) (model.Proposal, error) {
	result := reason
	updated, err := m.store.ProposalTransition(ctx, id, from, to, decidedBy, m.clock.Now(), result)
	if err != nil {
		return model.Proposal{}, mapTransitionErr(err)
	}
	return updated, nil
}

func mapTransitionErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, "proposal: not found", err)
	}
	if errors.Is(err, store.ErrAlreadyExecuted) {
		return apperr.ErrAlreadyExecuted
	}
	if errors.Is(err, store.ErrInvalidStateTransition) {
		return apperr.Wrap(apperr.KindInvalidStateTransition, "proposal: invalid state transition", err)
	}
	return fmt.Errorf("proposal: transition: %w", err)
}

func joinResults(results []string) string {
	out := ""
	for i, r := range results {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}
