package agentrunner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/sources"
)

// sourceFetchTimeout bounds how long Guardian waits on the Source Registry
// before giving up and proceeding on the health probe's findings alone.
const sourceFetchTimeout = 10 * time.Second

// HealthReport is the health probe's verdict (spec §4.11: "abstract
// interface: returns {issues:[], proposed_actions:[], risk}").
type HealthReport struct {
	Issues          []string
	ProposedActions []model.ProposalAction
	Risk            model.RiskLevel
}

// HealthProbe is Guardian's abstract self-healing check (spec §4.11,
// external collaborator alongside the ApprovedActionExecutor in §6.5 that
// eventually dispatches whatever actions a resulting Proposal declares).
type HealthProbe interface {
	Check(ctx context.Context) (HealthReport, error)
}

// ProposalCreator is the subset of the Proposal Manager (C13) Guardian needs
// to raise a privileged-action proposal (spec §4.13: "created by Guardian
// Runner").
type ProposalCreator interface {
	Create(ctx context.Context, title, description string, actions []model.ProposalAction, risk model.RiskLevel) (model.Proposal, error)
}

// SourceFetcher is the subset of the Source Registry (C5) Guardian uses to
// pull supporting material — remediation runbooks, incident playbooks —
// before writing up a healing proposal (spec §4.5/§4.11: "Agent Runners
// request a fetch through a Source.fetch capability").
type SourceFetcher interface {
	FetchAll(ctx context.Context, query string, timeout time.Duration) []sources.Document
}

// Guardian is the security/self-healing Agent Runner.
type Guardian struct {
	BaseRunner
	probe     HealthProbe
	proposals ProposalCreator
	fetcher   SourceFetcher
}

// NewGuardian constructs the Guardian runner. fetcher may be nil, in which
// case Guardian falls back to writing proposals from the health probe's
// report alone (spec §4.5 sources are optional supporting material, not a
// hard dependency of the healing cycle).
func NewGuardian(gw Gateway, clk Clock, probe HealthProbe, proposals ProposalCreator, fetcher SourceFetcher) *Guardian {
	return &Guardian{BaseRunner: NewBaseRunner(model.Guardian, gw, clk), probe: probe, proposals: proposals, fetcher: fetcher}
}

// DomainTask runs the health probe and, if it surfaces issues, creates a
// Proposal (spec §4.11: "run the health probe... If issues, create a
// Proposal with the listed actions."). Idempotent: running the probe twice
// with no state change simply creates two independent proposals for human
// review, exactly as a second poll of a still-broken system would.
func (g *Guardian) DomainTask(ctx context.Context) (DomainTaskResult, error) {
	report, err := g.probe.Check(ctx)
	if err != nil {
		return DomainTaskResult{}, fmt.Errorf("guardian: health probe: %w", err)
	}

	if len(report.Issues) == 0 {
		return DomainTaskResult{Notes: "health probe: no issues found"}, nil
	}

	title := fmt.Sprintf("system_healing: %s", strings.Join(report.Issues, ", "))
	description := fmt.Sprintf("Health probe surfaced %d issue(s): %s", len(report.Issues), strings.Join(report.Issues, "; "))

	if g.fetcher != nil {
		docs := g.fetcher.FetchAll(ctx, strings.Join(report.Issues, " "), sourceFetchTimeout)
		if len(docs) > 0 {
			refs := make([]string, 0, len(docs))
			for _, d := range docs {
				refs = append(refs, fmt.Sprintf("%s (%s)", d.Title, d.URL))
			}
			description += fmt.Sprintf("\n\nRelated source material:\n- %s", strings.Join(refs, "\n- "))
		}
	}

	prop, err := g.proposals.Create(ctx, title, description, report.ProposedActions, report.Risk)
	if err != nil {
		return DomainTaskResult{}, fmt.Errorf("guardian: create proposal: %w", err)
	}

	return DomainTaskResult{
		Notes:    fmt.Sprintf("health probe surfaced %d issue(s); proposal %s created (risk=%s)", len(report.Issues), prop.ID, prop.Risk),
		Proposal: &prop,
	}, nil
}
