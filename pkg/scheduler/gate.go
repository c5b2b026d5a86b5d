package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/aion-systems/aion-core/pkg/config"
)

// Gate reports whether the scheduler currently has enough host headroom to
// start another custody cycle.
type Gate interface {
	Allow(ctx context.Context) (bool, error)
}

// gateClock is the minimal time dependency Gate needs to throttle sampling.
type gateClock interface {
	Now() time.Time
}

// SystemGate samples host CPU/memory via gopsutil, caching the verdict for
// ResourceGateConfig.PollInterval so a frequent poll loop doesn't hammer
// /proc on every tick.
type SystemGate struct {
	cfg   *config.Manager
	clock gateClock

	mu         sync.Mutex
	sampledAt  time.Time
	lastAllow  bool
}

// NewSystemGate constructs a gopsutil-backed Gate.
func NewSystemGate(cfg *config.Manager, clk gateClock) *SystemGate {
	return &SystemGate{cfg: cfg, clock: clk}
}

// Allow reports whether the resource gate currently permits a tick. The
// boundary is inclusive: usage exactly at the configured max still passes.
func (g *SystemGate) Allow(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cfg := g.cfg.Get().ResourceGate
	now := g.clock.Now()
	if !g.sampledAt.IsZero() && now.Sub(g.sampledAt) < cfg.PollInterval {
		return g.lastAllow, nil
	}

	cpuPct, err := sampleCPU(ctx)
	if err != nil {
		return false, fmt.Errorf("scheduler: sample cpu: %w", err)
	}
	memPct, err := sampleMem(ctx)
	if err != nil {
		return false, fmt.Errorf("scheduler: sample mem: %w", err)
	}

	g.lastAllow = cpuPct <= cfg.CPUMaxPct && memPct <= cfg.MemMaxPct
	g.sampledAt = now
	return g.lastAllow, nil
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
