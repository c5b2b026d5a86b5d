package agentrunner

import (
	"context"
	"fmt"

	"github.com/aion-systems/aion-core/pkg/model"
)

// CodebaseSnapshotter supplies the codebase material Imperium reviews on its
// own cadence (spec §4.11: "a supplied codebase snapshot" — external,
// abstract; production wiring may point this at a git checkout, a tarball
// fetched from object storage, or a Source Registry entry).
type CodebaseSnapshotter interface {
	Snapshot(ctx context.Context) (string, error)
}

// Imperium is the architect/tester Agent Runner.
type Imperium struct {
	BaseRunner
	snapshotter CodebaseSnapshotter
}

// NewImperium constructs the Imperium runner.
func NewImperium(gw Gateway, clk Clock, snapshotter CodebaseSnapshotter) *Imperium {
	return &Imperium{BaseRunner: NewBaseRunner(model.Imperium, gw, clk), snapshotter: snapshotter}
}

// DomainTask generates a code-review scenario against the supplied codebase
// snapshot and returns the findings as cycle notes (spec §4.11: "Imperium:
// generate + enqueue a code-review scenario against a supplied codebase
// snapshot; write findings as a CycleRecord note."). Idempotent: a retry
// re-snapshots and re-reviews rather than mutating any prior state.
func (i *Imperium) DomainTask(ctx context.Context) (DomainTaskResult, error) {
	snapshot, err := i.snapshotter.Snapshot(ctx)
	if err != nil {
		return DomainTaskResult{}, fmt.Errorf("imperium: snapshot: %w", err)
	}

	prompt := fmt.Sprintf(
		"Perform a code review of the following codebase snapshot. Identify "+
			"the three most impactful issues, ranked by severity, with a one-line "+
			"fix recommendation for each.\n\n%s", snapshot)

	findings, err := i.callDomainPrompt(ctx, prompt)
	if err != nil {
		return DomainTaskResult{}, err
	}

	return DomainTaskResult{Notes: "code review findings: " + findings}, nil
}
