// Package config is the single structured configuration object for the
// orchestration core, assembled once at process init and passed explicitly
// through component constructors — following the teacher's "single Config
// struct" idiom (pkg/config/config.go) generalized away from the teacher's
// dynamic agent/chain/MCP-server registries (not needed here: agent kinds
// are a closed set, spec §3) toward the options enumerated in spec §6.3.
package config

import (
	"sync"
	"time"

	"github.com/aion-systems/aion-core/pkg/model"
)

// ProviderConfig holds the LLM Gateway / Token Ledger settings for one
// provider (Primary or Secondary).
type ProviderConfig struct {
	MonthlyCap     int64
	PerRequestCap  int64
	RateLimitPerMin int
	RateLimitPerDay int
}

// CadenceConfig holds the Scheduler's interval and stagger offset for one
// agent kind (spec §4.12, §6.3).
type CadenceConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
}

// ResourceGateConfig holds the Scheduler's CPU/memory thresholds (spec §5).
type ResourceGateConfig struct {
	CPUMaxPct    float64
	MemMaxPct    float64
	DiskMaxPct   float64
	PollInterval time.Duration
}

// LearningConfig holds the EWMA smoothing factors the Custody Engine applies
// to AgentMetrics (spec §4.8) and the Learning Loop's Cross-AI transfer job
// settings (spec §4.10).
type LearningConfig struct {
	AlphaLearning float64
	AlphaSuccess  float64

	// TransferInterval is how often the Cross-AI transfer job runs.
	TransferInterval time.Duration
	// TransferTopK is k in "top-k patterns by effectiveness".
	TransferTopK int
	// TransferDecay is the effectiveness multiplier applied to a pattern
	// copied into another agent's ownership (spec §4.10: "× 0.8 decay").
	TransferDecay float64
}

// HTTPConfig holds the HTTP/WS Surface's bind address and bearer token.
type HTTPConfig struct {
	Addr        string
	BearerToken string
}

// DBConfig holds Postgres connection parameters. Kept independent of
// pkg/store/pgstore to avoid a config → store import cycle; cmd/aion
// translates this into a pgstore.Config at wiring time.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// Config is the umbrella configuration object, covering every option listed
// in spec §6.3. Mutable fields (Token, RateLimit via Providers; Cadence;
// ResourceGate; Custody pass thresholds) may be updated at runtime through
// Manager.Update under a lock; immutable fields (HTTP, DB) require a process
// restart, mirroring the teacher's "dotted globals → single Config"
// redesign note.
type Config struct {
	HTTP HTTPConfig
	DB   DBConfig

	Providers map[model.Provider]ProviderConfig
	// FallbackThresholdPct is the Primary usage fraction (0..1) at which the
	// LLM Gateway prefers Secondary (spec §6.3 token.fallback_threshold).
	FallbackThresholdPct float64

	Cadence map[model.AgentKind]CadenceConfig

	ResourceGate ResourceGateConfig

	// PassThreshold overrides τ(category); spec §4.7 gives the defaults.
	PassThreshold map[model.Category]float64

	// RecentFingerprintsN is the Test Generator's non-repetition window N
	// (spec §4.6, default 200).
	RecentFingerprintsN int

	Learning LearningConfig

	// AffinityMatrix[source][target] is the Cross-AI transfer weight (spec
	// §4.10); absent pairs are not eligible for transfer.
	AffinityMatrix map[model.AgentKind]map[model.AgentKind]float64

	// LLM transport timeouts (spec §5).
	LLMTimeout    time.Duration
	SourceTimeout time.Duration
	StoreTimeout  time.Duration
	ProposalExecTimeout time.Duration

	// CodebaseRoot is the directory Imperium's codebase snapshotter walks on
	// its own cadence (spec §4.11: "a supplied codebase snapshot").
	CodebaseRoot string
}

// Defaults returns the zero-value-safe development configuration. Per the
// spec's open question on token caps (§9), these numeric defaults are an
// internal development convenience only — not inferred from, or meant to
// match, any value in the original source — so that a zero-value Config is
// usable in tests without a YAML file.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "aion", Database: "aion",
			SSLMode: "disable", MaxConns: 10,
		},
		Providers: map[model.Provider]ProviderConfig{
			model.Primary: {
				MonthlyCap: 140_000, PerRequestCap: 8_000,
				RateLimitPerMin: 42, RateLimitPerDay: 3400,
			},
			model.Secondary: {
				MonthlyCap: 40_000, PerRequestCap: 8_000,
				RateLimitPerMin: 20, RateLimitPerDay: 1500,
			},
		},
		FallbackThresholdPct: 0.95,
		Cadence: map[model.AgentKind]CadenceConfig{
			model.Imperium: {Interval: 90 * time.Minute, InitialDelay: 0},
			model.Sandbox:  {Interval: 120 * time.Minute, InitialDelay: 30 * time.Minute},
			model.Guardian: {Interval: 300 * time.Minute, InitialDelay: 60 * time.Minute},
			model.Conquest: {Interval: 180 * time.Minute, InitialDelay: 45 * time.Minute},
		},
		ResourceGate: ResourceGateConfig{
			CPUMaxPct: 80, MemMaxPct: 85, DiskMaxPct: 90, PollInterval: 1 * time.Minute,
		},
		PassThreshold: map[model.Category]float64{
			model.CategoryKnowledge:       60,
			model.CategoryCodeQuality:     65,
			model.CategorySecurity:        70,
			model.CategoryPerformance:     65,
			model.CategoryInnovation:      60,
			model.CategorySelfImprovement: 65,
			model.CategoryCrossAI:         65,
			model.CategoryExperiment:      70,
		},
		RecentFingerprintsN: 200,
		Learning: LearningConfig{
			AlphaLearning:    0.1,
			AlphaSuccess:     0.2,
			TransferInterval: 6 * time.Hour,
			TransferTopK:     3,
			TransferDecay:    0.8,
		},
		AffinityMatrix:      defaultAffinityMatrix(),
		LLMTimeout:          30 * time.Second,
		SourceTimeout:       10 * time.Second,
		StoreTimeout:        5 * time.Second,
		ProposalExecTimeout: 120 * time.Second,
		CodebaseRoot:        ".",
	}
}

// defaultAffinityMatrix is symmetric and excludes self-transfer, per spec §4.10.
func defaultAffinityMatrix() map[model.AgentKind]map[model.AgentKind]float64 {
	m := make(map[model.AgentKind]map[model.AgentKind]float64, len(model.AllAgentKinds))
	for _, src := range model.AllAgentKinds {
		m[src] = make(map[model.AgentKind]float64, len(model.AllAgentKinds)-1)
		for _, dst := range model.AllAgentKinds {
			if src == dst {
				continue
			}
			m[src][dst] = 1.0
		}
	}
	return m
}

// PassThresholdFor returns τ(category), falling back to the spec's default
// table if the config map has no override.
func (c *Config) PassThresholdFor(cat model.Category) float64 {
	if v, ok := c.PassThreshold[cat]; ok {
		return v
	}
	return Defaults().PassThreshold[cat]
}

// Manager guards a Config behind a lock so that Update can replace it
// concurrently with readers, following the teacher's "structured Config +
// lock" redesign note (spec §9). The HTTP surface has no route that calls
// Update.
type Manager struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewManager wraps cfg for concurrent access.
func NewManager(cfg *Config) *Manager {
	return &Manager{cfg: cfg}
}

// Get returns the current configuration. The returned pointer must be
// treated as read-only by the caller; mutation happens only via Update.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Update atomically replaces the current configuration. Validation of the
// incoming config is the caller's responsibility.
func (m *Manager) Update(fn func(cfg *Config)) *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.cfg
	fn(&cp)
	m.cfg = &cp
	return m.cfg
}
