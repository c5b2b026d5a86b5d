// Package collaborators holds the default implementations of the external,
// abstract collaborator interfaces the Agent Runners depend on (spec §6.5):
// Guardian's HealthProbe, Imperium's CodebaseSnapshotter, and the Proposal
// Manager's ApprovedActionExecutor. None of these are part of the core
// orchestration loop; they are the pluggable edges production deployments
// are expected to swap for environment-specific probes, snapshot sources,
// and action dispatchers.
package collaborators

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/aion-systems/aion-core/pkg/agentrunner"
	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/model"
)

// HostHealthProbe implements agentrunner.HealthProbe by sampling the same
// CPU/memory signal the Scheduler's resource gate uses (pkg/scheduler.
// SystemGate), plus disk usage on CodebaseRoot, and comparing each against
// ResourceGateConfig's thresholds. A probe surfacing "the host is already
// over its own scheduling gate" is the simplest genuine self-healing signal
// available without a real infrastructure API to query.
type HostHealthProbe struct {
	cfg  *config.Manager
	path string
}

// NewHostHealthProbe constructs a probe that checks disk usage at path (the
// Imperium codebase root is a reasonable default: it is guaranteed present).
func NewHostHealthProbe(cfg *config.Manager, path string) *HostHealthProbe {
	return &HostHealthProbe{cfg: cfg, path: path}
}

// Check samples host resource usage and reports an issue for each metric
// that has breached its configured ceiling, proposing restart_service for a
// CPU or memory breach and clear_cache for a disk breach.
func (p *HostHealthProbe) Check(ctx context.Context) (agentrunner.HealthReport, error) {
	gate := p.cfg.Get().ResourceGate

	cpuPct, err := sampleCPU(ctx)
	if err != nil {
		return agentrunner.HealthReport{}, fmt.Errorf("health probe: sample cpu: %w", err)
	}
	memPct, err := sampleMem(ctx)
	if err != nil {
		return agentrunner.HealthReport{}, fmt.Errorf("health probe: sample mem: %w", err)
	}
	diskPct, err := sampleDisk(ctx, p.path)
	if err != nil {
		return agentrunner.HealthReport{}, fmt.Errorf("health probe: sample disk: %w", err)
	}

	var issues []string
	var actions []model.ProposalAction
	risk := model.RiskLow

	if cpuPct > gate.CPUMaxPct {
		issues = append(issues, fmt.Sprintf("cpu usage %.1f%% exceeds %.1f%%", cpuPct, gate.CPUMaxPct))
		actions = append(actions, model.ProposalAction{Name: "restart_service", Params: map[string]string{"reason": "cpu"}})
		risk = model.RiskMedium
	}
	if memPct > gate.MemMaxPct {
		issues = append(issues, fmt.Sprintf("memory usage %.1f%% exceeds %.1f%%", memPct, gate.MemMaxPct))
		actions = append(actions, model.ProposalAction{Name: "restart_service", Params: map[string]string{"reason": "memory"}})
		risk = model.RiskMedium
	}
	if diskPct > gate.DiskMaxPct {
		issues = append(issues, fmt.Sprintf("disk usage %.1f%% exceeds %.1f%%", diskPct, gate.DiskMaxPct))
		actions = append(actions, model.ProposalAction{Name: "clear_cache", Params: map[string]string{"path": p.path}})
		risk = model.RiskHigh
	}

	return agentrunner.HealthReport{Issues: issues, ProposedActions: actions, Risk: risk}, nil
}

func sampleCPU(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, nil
	}
	return pcts[0], nil
}

func sampleMem(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func sampleDisk(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}
