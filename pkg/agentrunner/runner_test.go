package agentrunner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aion-systems/aion-core/pkg/agentrunner"
	"github.com/aion-systems/aion-core/pkg/gateway"
	"github.com/aion-systems/aion-core/pkg/llmprovider"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/sources"
)

type fakeGateway struct {
	text string
	err  error
}

func (f *fakeGateway) Call(_ context.Context, _ model.AgentKind, _ string, _ []llmprovider.Message, _ int) (gateway.Result, error) {
	if f.err != nil {
		return gateway.Result{}, f.err
	}
	return gateway.Result{Text: f.text, TokensIn: 10, TokensOut: 20, Provider: model.Primary}, nil
}

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

func TestBaseRunnerRespondToScenario(t *testing.T) {
	gw := &fakeGateway{text: "the answer"}
	r := agentrunner.NewBaseRunner(model.Imperium, gw, fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

	resp, err := r.RespondToScenario(context.Background(), model.Scenario{ID: "scn-1", Prompt: "explain X"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, "scn-1", resp.ScenarioID)
	assert.Equal(t, model.Imperium, resp.AgentKind)
	assert.NotEmpty(t, resp.ID)
}

type fakeSnapshotter struct{ snapshot string }

func (f fakeSnapshotter) Snapshot(context.Context) (string, error) { return f.snapshot, nil }

func TestImperiumDomainTaskWritesFindings(t *testing.T) {
	gw := &fakeGateway{text: "1. tighten error handling 2. extract interface 3. add tests"}
	imp := agentrunner.NewImperium(gw, fakeClock{t: time.Now()}, fakeSnapshotter{snapshot: "package main\nfunc main(){}"})

	res, err := imp.DomainTask(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Notes, "code review findings")
	assert.Nil(t, res.Proposal)
}

type fakeProbe struct {
	report agentrunner.HealthReport
	err    error
}

func (f fakeProbe) Check(context.Context) (agentrunner.HealthReport, error) { return f.report, f.err }

type fakeProposalCreator struct {
	created model.Proposal
}

func (f *fakeProposalCreator) Create(_ context.Context, title, description string, actions []model.ProposalAction, risk model.RiskLevel) (model.Proposal, error) {
	f.created = model.Proposal{ID: "prop-1", Title: title, Description: description, Actions: actions, Risk: risk, Status: model.ProposalPending}
	return f.created, nil
}

func TestGuardianDomainTaskNoIssues(t *testing.T) {
	gw := &fakeGateway{}
	creator := &fakeProposalCreator{}
	g := agentrunner.NewGuardian(gw, fakeClock{t: time.Now()}, fakeProbe{}, creator, nil)

	res, err := g.DomainTask(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Proposal)
	assert.Empty(t, creator.created.ID)
}

func TestGuardianDomainTaskCreatesProposalOnIssues(t *testing.T) {
	gw := &fakeGateway{}
	report := agentrunner.HealthReport{
		Issues:          []string{"disk_full"},
		ProposedActions: []model.ProposalAction{{Name: "rotate_logs"}},
		Risk:            model.RiskMedium,
	}
	creator := &fakeProposalCreator{}
	g := agentrunner.NewGuardian(gw, fakeClock{t: time.Now()}, fakeProbe{report: report}, creator, nil)

	res, err := g.DomainTask(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Proposal)
	assert.Equal(t, "prop-1", res.Proposal.ID)
	assert.Equal(t, model.RiskMedium, creator.created.Risk)
}

type fakeFetcher struct{ docs []sources.Document }

func (f fakeFetcher) FetchAll(context.Context, string, time.Duration) []sources.Document { return f.docs }

func TestGuardianDomainTaskFoldsSourceMaterialIntoProposal(t *testing.T) {
	gw := &fakeGateway{}
	report := agentrunner.HealthReport{
		Issues:          []string{"disk_full"},
		ProposedActions: []model.ProposalAction{{Name: "rotate_logs"}},
		Risk:            model.RiskMedium,
	}
	creator := &fakeProposalCreator{}
	fetcher := fakeFetcher{docs: []sources.Document{{Title: "disk-space-runbook.md", URL: "https://github.com/acme/runbooks/disk-space-runbook.md"}}}
	g := agentrunner.NewGuardian(gw, fakeClock{t: time.Now()}, fakeProbe{report: report}, creator, fetcher)

	res, err := g.DomainTask(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Proposal)
	assert.Contains(t, creator.created.Description, "disk-space-runbook.md")
}

type fakeGenerator struct{ scenario model.Scenario }

func (f fakeGenerator) Generate(context.Context, model.AgentKind, model.Category, model.Complexity) (model.Scenario, error) {
	return f.scenario, nil
}

type fakeScorer struct{ score model.Score }

func (f fakeScorer) Score(context.Context, model.Scenario, model.Response) (model.Score, error) {
	return f.score, nil
}

type fakeRecorder struct {
	responses []model.Response
	scores    []model.Score
}

func (f *fakeRecorder) ResponseInsert(_ context.Context, r model.Response) error {
	f.responses = append(f.responses, r)
	return nil
}

func (f *fakeRecorder) ScoreInsert(_ context.Context, s model.Score) error {
	f.scores = append(f.scores, s)
	return nil
}

func TestSandboxDomainTaskSelfScoresAndRecords(t *testing.T) {
	gw := &fakeGateway{text: "a novel experiment plan"}
	generator := fakeGenerator{scenario: model.Scenario{ID: "scn-innov", Category: model.CategoryInnovation, Prompt: "design something new"}}
	scorer := fakeScorer{score: model.Score{Overall: 77, Passed: true}}
	recorder := &fakeRecorder{}

	sb := agentrunner.NewSandbox(gw, fakeClock{t: time.Now()}, generator, scorer, recorder)
	res, err := sb.DomainTask(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Notes, "77.0")
	require.Len(t, recorder.responses, 1)
	require.Len(t, recorder.scores, 1)
	assert.Equal(t, "scn-innov", recorder.responses[0].ScenarioID)
}

func TestConquestDomainTaskSelfScoresAndRecords(t *testing.T) {
	gw := &fakeGateway{text: "an optimization candidate"}
	generator := fakeGenerator{scenario: model.Scenario{ID: "scn-perf", Category: model.CategoryPerformance, Prompt: "optimize something"}}
	scorer := fakeScorer{score: model.Score{Overall: 81, Passed: true}}
	recorder := &fakeRecorder{}

	cq := agentrunner.NewConquest(gw, fakeClock{t: time.Now()}, generator, scorer, recorder)
	res, err := cq.DomainTask(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Notes, "81.0")
	require.Len(t, recorder.responses, 1)
	require.Len(t, recorder.scores, 1)
}
