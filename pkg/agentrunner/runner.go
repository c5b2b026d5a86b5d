// Package agentrunner implements the Agent Runner (spec §4.11): one
// concrete worker per agent kind that (1) answers custody Scenarios through
// the LLM Gateway and (2) performs its kind's domain task on its own
// cadence. Grounded on the teacher's `pkg/agent` strategy-pattern split
// (BaseAgent delegates to a Controller) — here BaseRunner supplies the
// shared "answer a scenario" behavior and each concrete Runner supplies its
// own DomainTask, the same shape as tarsy's per-agent-type Controller.
package agentrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/gateway"
	"github.com/aion-systems/aion-core/pkg/llmprovider"
	"github.com/aion-systems/aion-core/pkg/model"
)

// Clock abstracts "now" for stamping Response timestamps.
type Clock interface {
	Now() time.Time
}

// Gateway is the subset of the LLM Gateway (C4) a Runner needs.
type Gateway interface {
	Call(ctx context.Context, agent model.AgentKind, purpose string, messages []llmprovider.Message, maxOutTokens int) (gateway.Result, error)
}

// Purpose values passed to the Gateway, per spec §4.4's "purpose" parameter.
const (
	PurposeTestResponse = "test_response"
	PurposeDomainTask   = "domain_task"
)

// DefaultMaxOutTokens bounds the Gateway call a Runner makes when answering
// a custody Scenario; generous enough for Legendary-tier prompts without
// inviting runaway spend.
const DefaultMaxOutTokens = 1200

// DomainTaskResult is what a kind's own-cadence domain task produced (spec
// §4.11 point 2). Notes is always populated (persisted onto the cycle's
// CycleRecord); Proposal is set only by Guardian when its health probe
// surfaces issues.
type DomainTaskResult struct {
	Notes    string
	Proposal *model.Proposal
}

// Runner is the Agent Runner capability the Scheduler and Custody Engine
// depend on (spec §9: "Define a single AgentRunner capability per agent;
// the Scheduler holds a map kind → AgentRunner populated at startup. No
// runtime reflection.").
type Runner interface {
	Kind() model.AgentKind
	// RespondToScenario answers a custody Scenario through the LLM Gateway
	// (spec §4.11 point 1).
	RespondToScenario(ctx context.Context, scenario model.Scenario) (model.Response, error)
	// DomainTask performs the kind's own-cadence domain work (spec §4.11
	// point 2). Must be idempotent on retry and release every acquired
	// resource on all exit paths (spec §4.11 point 3).
	DomainTask(ctx context.Context) (DomainTaskResult, error)
}

// BaseRunner implements RespondToScenario once for every concrete Runner,
// the same way tarsy's BaseAgent implements Execute once and delegates
// iteration strategy to a Controller.
type BaseRunner struct {
	kind    model.AgentKind
	gateway Gateway
	clock   Clock
}

// NewBaseRunner constructs the shared scenario-answering behavior for kind.
func NewBaseRunner(kind model.AgentKind, gw Gateway, clk Clock) BaseRunner {
	return BaseRunner{kind: kind, gateway: gw, clock: clk}
}

// Kind returns the agent kind this runner answers for.
func (r BaseRunner) Kind() model.AgentKind { return r.kind }

// RespondToScenario implements spec §4.11 point 1 exactly: call
// LLMGateway.call(self.kind, Purpose.TestResponse, prompt, max_out).
func (r BaseRunner) RespondToScenario(ctx context.Context, scenario model.Scenario) (model.Response, error) {
	started := r.clock.Now()
	messages := []llmprovider.Message{{Role: "user", Content: scenario.Prompt}}

	res, err := r.gateway.Call(ctx, r.kind, PurposeTestResponse, messages, DefaultMaxOutTokens)
	if err != nil {
		return model.Response{}, fmt.Errorf("agentrunner: %s: respond to scenario %s: %w", r.kind, scenario.ID, err)
	}

	ended := r.clock.Now()
	return model.Response{
		ID:         uuid.NewString(),
		ScenarioID: scenario.ID,
		AgentKind:  r.kind,
		Text:       res.Text,
		DurationMS: ended.Sub(started).Milliseconds(),
		CreatedAt:  ended,
	}, nil
}

// callDomainPrompt is a small helper every concrete Runner's DomainTask uses
// to get LLM-generated material for its task (a review, a probe
// explanation, an experiment plan, an optimization candidate) without
// duplicating the Gateway-call boilerplate.
func (r BaseRunner) callDomainPrompt(ctx context.Context, prompt string) (string, error) {
	messages := []llmprovider.Message{{Role: "user", Content: prompt}}
	res, err := r.gateway.Call(ctx, r.kind, PurposeDomainTask, messages, DefaultMaxOutTokens)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindTokensExhausted {
			return "", err
		}
		return "", fmt.Errorf("agentrunner: %s: domain prompt: %w", r.kind, err)
	}
	return res.Text, nil
}
