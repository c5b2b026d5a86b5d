package collaborators

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/proposal"
)

// ActionFunc performs one named, approved action. Params are opaque
// key/value pairs carried on the model.ProposalAction; an ActionFunc must
// never build a shell command out of them (spec §6.5).
type ActionFunc func(ctx context.Context, params map[string]string) (string, error)

// AllowListExecutor implements proposal.ApprovedActionExecutor by dispatching
// to a fixed, named set of ActionFuncs. Any action name outside the allow
// list is refused rather than attempted. Deliberately stdlib-only and
// hand-rolled: "named action dispatch behind an allow-list, no shell
// interpolation" is a safety property this spec requires directly, not a
// concern any example repo's third-party dependency addresses.
type AllowListExecutor struct {
	actions map[string]ActionFunc
	log     *slog.Logger
}

// NewAllowListExecutor constructs an executor with the default action set:
// restart_service and clear_cache, the actions HostHealthProbe proposes,
// plus scale_resource_gate, which HostHealthProbe does not propose.
// Production deployments wire these to
// real orchestration calls (a k8s rollout restart, an object-store prune, an
// autoscaler nudge); here each records what it was asked to do.
func NewAllowListExecutor() *AllowListExecutor {
	e := &AllowListExecutor{actions: make(map[string]ActionFunc), log: slog.Default().With("component", "action-executor")}
	e.Register("restart_service", e.restartService)
	e.Register("clear_cache", e.clearCache)
	e.Register("scale_resource_gate", e.scaleResourceGate)
	return e
}

// Register adds name to the allow-list. Intended for wiring additional
// environment-specific actions at startup, not for per-request registration.
func (e *AllowListExecutor) Register(name string, fn ActionFunc) {
	e.actions[name] = fn
}

// Execute implements proposal.ApprovedActionExecutor. It runs every action
// in order and keeps going on a per-action failure, since later actions in
// the same Proposal are typically independent remediations (spec §4.13: the
// Manager records whichever actions succeeded alongside whichever failed).
func (e *AllowListExecutor) Execute(ctx context.Context, actions []model.ProposalAction) (proposal.ExecutionOutcome, error) {
	results := make([]string, 0, len(actions))
	var firstErr error

	for _, a := range actions {
		fn, ok := e.actions[a.Name]
		if !ok {
			results = append(results, fmt.Sprintf("%s: refused (not in allow-list)", a.Name))
			if firstErr == nil {
				firstErr = fmt.Errorf("action %q is not in the allow-list", a.Name)
			}
			continue
		}

		out, err := fn(ctx, a.Params)
		if err != nil {
			results = append(results, fmt.Sprintf("%s: failed: %v", a.Name, err))
			e.log.Error("action failed", "action", a.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, fmt.Sprintf("%s: %s", a.Name, out))
	}

	return proposal.ExecutionOutcome{PerActionResult: results}, firstErr
}

func (e *AllowListExecutor) restartService(_ context.Context, params map[string]string) (string, error) {
	e.log.Warn("restart_service requested", "reason", params["reason"])
	return "restart signal recorded", nil
}

func (e *AllowListExecutor) clearCache(_ context.Context, params map[string]string) (string, error) {
	e.log.Warn("clear_cache requested", "path", params["path"])
	return "cache clear recorded", nil
}

func (e *AllowListExecutor) scaleResourceGate(_ context.Context, params map[string]string) (string, error) {
	e.log.Warn("scale_resource_gate requested", "params", params)
	return "resource gate scale recorded", nil
}
