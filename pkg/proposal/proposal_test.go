package proposal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/proposal"
	"github.com/aion-systems/aion-core/pkg/store/memstore"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

type fakeExecutor struct {
	outcome proposal.ExecutionOutcome
	err     error
	calls   [][]model.ProposalAction
}

func (f *fakeExecutor) Execute(_ context.Context, actions []model.ProposalAction) (proposal.ExecutionOutcome, error) {
	f.calls = append(f.calls, actions)
	return f.outcome, f.err
}

type fakeNotifier struct {
	notified []model.Proposal
}

func (f *fakeNotifier) NotifyProposalCreated(_ context.Context, p model.Proposal) {
	f.notified = append(f.notified, p)
}

func newManager(executor proposal.ApprovedActionExecutor, notifier proposal.ApprovalNotifier) *proposal.Manager {
	return proposal.New(memstore.New(), executor, notifier, fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
}

func TestCreateNotifiesWhenNotifierPresent(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newManager(&fakeExecutor{}, notifier)

	p, err := m.Create(context.Background(), "system_healing: disk_full", "disk at 95%", []model.ProposalAction{{Name: "rotate_logs"}}, model.RiskMedium)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalPending, p.Status)
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, p.ID, notifier.notified[0].ID)
}

func TestCreateToleratesNilNotifier(t *testing.T) {
	m := newManager(&fakeExecutor{}, nil)

	_, err := m.Create(context.Background(), "t", "d", nil, model.RiskLow)
	require.NoError(t, err)
}

func TestApproveThenRejectFails(t *testing.T) {
	m := newManager(&fakeExecutor{}, nil)
	p, err := m.Create(context.Background(), "t", "d", nil, model.RiskLow)
	require.NoError(t, err)

	approved, err := m.Approve(context.Background(), p.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalApproved, approved.Status)
	assert.Equal(t, "alice", approved.DecidedBy)

	_, err = m.Reject(context.Background(), p.ID, "bob", "too late")
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindInvalidStateTransition, appErr.Kind)
}

func TestExecuteRunsExecutorAndTransitionsToExecuted(t *testing.T) {
	executor := &fakeExecutor{outcome: proposal.ExecutionOutcome{PerActionResult: []string{"rotated 3 files"}}}
	m := newManager(executor, nil)
	p, err := m.Create(context.Background(), "t", "d", []model.ProposalAction{{Name: "rotate_logs"}}, model.RiskLow)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), p.ID, "alice")
	require.NoError(t, err)

	executed, err := m.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalExecuted, executed.Status)
	assert.Contains(t, executed.ExecutionResult, "rotated 3 files")
	require.Len(t, executor.calls, 1)
}

func TestExecuteOnExecutorFailureTransitionsToFailed(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("permission denied")}
	m := newManager(executor, nil)
	p, err := m.Create(context.Background(), "t", "d", []model.ProposalAction{{Name: "rotate_logs"}}, model.RiskLow)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), p.ID, "alice")
	require.NoError(t, err)

	failed, err := m.Execute(context.Background(), p.ID)
	require.Error(t, err)
	assert.Equal(t, model.ProposalFailed, failed.Status)
	assert.Contains(t, failed.ExecutionResult, "permission denied")
}

func TestExecuteTwiceReturnsAlreadyExecuted(t *testing.T) {
	executor := &fakeExecutor{}
	m := newManager(executor, nil)
	p, err := m.Create(context.Background(), "t", "d", nil, model.RiskLow)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), p.ID, "alice")
	require.NoError(t, err)

	_, err = m.Execute(context.Background(), p.ID)
	require.NoError(t, err)

	_, err = m.Execute(context.Background(), p.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExecuted)
}

func TestExecuteWithoutApprovalFails(t *testing.T) {
	m := newManager(&fakeExecutor{}, nil)
	p, err := m.Create(context.Background(), "t", "d", nil, model.RiskLow)
	require.NoError(t, err)

	_, err = m.Execute(context.Background(), p.ID)
	require.Error(t, err)
}

func TestGetUnknownProposalReturnsNotFound(t *testing.T) {
	m := newManager(&fakeExecutor{}, nil)
	_, err := m.Get(context.Background(), "missing")
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}

func TestListFiltersByStatus(t *testing.T) {
	m := newManager(&fakeExecutor{}, nil)
	p1, err := m.Create(context.Background(), "t1", "d1", nil, model.RiskLow)
	require.NoError(t, err)
	_, err = m.Create(context.Background(), "t2", "d2", nil, model.RiskLow)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), p1.ID, "alice")
	require.NoError(t, err)

	pending := model.ProposalPending
	list, err := m.List(context.Background(), &pending)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
