package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/aion-systems/aion-core/pkg/model"
)

// EnvFile is the environment variable naming the YAML config path, mirroring
// the teacher's Initialize() lookup convention.
const EnvFile = "AION_CONFIG_FILE"

// fileProviderConfig mirrors spec §6.3's token.{provider}.* and
// ratelimit.{provider}.* keys for one provider.
type fileProviderConfig struct {
	MonthlyCap      *int64 `yaml:"monthly_cap"`
	PerRequestCap   *int64 `yaml:"per_request_cap"`
	RateLimitPerMin *int   `yaml:"ratelimit_per_minute"`
	RateLimitPerDay *int   `yaml:"ratelimit_per_day"`
}

// fileCadenceConfig mirrors spec §6.3's cadence.{agent}_minutes and
// cadence.{agent}_initial_delay_minutes keys for one agent.
type fileCadenceConfig struct {
	Minutes             *int `yaml:"minutes"`
	InitialDelayMinutes *int `yaml:"initial_delay_minutes"`
}

// fileConfig is the on-disk YAML shape. Every scalar field is a pointer (and
// every table a map) so that an absent key leaves the corresponding
// Defaults() value untouched by applyFileConfig.
type fileConfig struct {
	HTTP struct {
		Addr        *string `yaml:"addr"`
		BearerToken *string `yaml:"bearer_token"`
	} `yaml:"http"`

	DB struct {
		Host     *string `yaml:"host"`
		Port     *int    `yaml:"port"`
		User     *string `yaml:"user"`
		Password *string `yaml:"password"`
		Database *string `yaml:"database"`
		SSLMode  *string `yaml:"sslmode"`
		MaxConns *int32  `yaml:"max_conns"`
	} `yaml:"db"`

	Token struct {
		Primary           fileProviderConfig `yaml:"primary"`
		Secondary         fileProviderConfig `yaml:"secondary"`
		FallbackThreshold *float64           `yaml:"fallback_threshold"`
	} `yaml:"token"`

	Cadence map[string]fileCadenceConfig `yaml:"cadence"`

	Resource struct {
		CPUMaxPct           *float64 `yaml:"cpu_max_pct"`
		MemMaxPct           *float64 `yaml:"mem_max_pct"`
		PollIntervalMinutes *int     `yaml:"poll_interval_minutes"`
	} `yaml:"resource"`

	Custody struct {
		PassThreshold       map[string]float64 `yaml:"pass_threshold"`
		RecentFingerprintsN *int                `yaml:"recent_fingerprints_n"`
	} `yaml:"custody"`

	Learning struct {
		EWMA struct {
			AlphaLearning *float64 `yaml:"alpha_learning"`
			AlphaSuccess  *float64 `yaml:"alpha_success"`
		} `yaml:"ewma"`
	} `yaml:"learning"`

	Transfer struct {
		AffinityMatrix map[string]map[string]float64 `yaml:"affinity_matrix"`
	} `yaml:"transfer"`
}

// Load reads the YAML file at path (env-expanding ${VAR} references via
// ExpandEnv), merges it onto Defaults(), and returns the resulting Config.
// Grounded on the teacher's Initialize() → load() flow (pkg/config/loader.go):
// read bytes, expand env, unmarshal, then applyFileConfig overlays the keys
// that are present onto the built-in baseline.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(ExpandEnv(raw), &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := Defaults()
	applyFileConfig(cfg, &fc)
	return cfg, nil
}

// Initialize resolves the config file path from AION_CONFIG_FILE and loads
// it; if the env var is unset it returns Defaults() unchanged, so the
// process can run with the built-in development configuration.
func Initialize() (*Config, error) {
	path := os.Getenv(EnvFile)
	if path == "" {
		return Defaults(), nil
	}
	return Load(path)
}

// applyFileConfig overlays non-nil fields of fc onto cfg in place.
func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.HTTP.Addr != nil {
		cfg.HTTP.Addr = *fc.HTTP.Addr
	}
	if fc.HTTP.BearerToken != nil {
		cfg.HTTP.BearerToken = *fc.HTTP.BearerToken
	}

	if fc.DB.Host != nil {
		cfg.DB.Host = *fc.DB.Host
	}
	if fc.DB.Port != nil {
		cfg.DB.Port = *fc.DB.Port
	}
	if fc.DB.User != nil {
		cfg.DB.User = *fc.DB.User
	}
	if fc.DB.Password != nil {
		cfg.DB.Password = *fc.DB.Password
	}
	if fc.DB.Database != nil {
		cfg.DB.Database = *fc.DB.Database
	}
	if fc.DB.SSLMode != nil {
		cfg.DB.SSLMode = *fc.DB.SSLMode
	}
	if fc.DB.MaxConns != nil {
		cfg.DB.MaxConns = *fc.DB.MaxConns
	}

	applyProvider(cfg, model.Primary, fc.Token.Primary)
	applyProvider(cfg, model.Secondary, fc.Token.Secondary)
	if fc.Token.FallbackThreshold != nil {
		cfg.FallbackThresholdPct = *fc.Token.FallbackThreshold
	}

	for agent, c := range fc.Cadence {
		kind := model.AgentKind(agent)
		cc := cfg.Cadence[kind]
		if c.Minutes != nil {
			cc.Interval = minutesToDuration(*c.Minutes)
		}
		if c.InitialDelayMinutes != nil {
			cc.InitialDelay = minutesToDuration(*c.InitialDelayMinutes)
		}
		cfg.Cadence[kind] = cc
	}

	if fc.Resource.CPUMaxPct != nil {
		cfg.ResourceGate.CPUMaxPct = *fc.Resource.CPUMaxPct
	}
	if fc.Resource.MemMaxPct != nil {
		cfg.ResourceGate.MemMaxPct = *fc.Resource.MemMaxPct
	}
	if fc.Resource.PollIntervalMinutes != nil {
		cfg.ResourceGate.PollInterval = minutesToDuration(*fc.Resource.PollIntervalMinutes)
	}

	for cat, v := range fc.Custody.PassThreshold {
		cfg.PassThreshold[model.Category(cat)] = v
	}
	if fc.Custody.RecentFingerprintsN != nil {
		cfg.RecentFingerprintsN = *fc.Custody.RecentFingerprintsN
	}

	if fc.Learning.EWMA.AlphaLearning != nil {
		cfg.Learning.AlphaLearning = *fc.Learning.EWMA.AlphaLearning
	}
	if fc.Learning.EWMA.AlphaSuccess != nil {
		cfg.Learning.AlphaSuccess = *fc.Learning.EWMA.AlphaSuccess
	}

	for src, row := range fc.Transfer.AffinityMatrix {
		srcKind := model.AgentKind(src)
		if cfg.AffinityMatrix[srcKind] == nil {
			cfg.AffinityMatrix[srcKind] = map[model.AgentKind]float64{}
		}
		for dst, w := range row {
			cfg.AffinityMatrix[srcKind][model.AgentKind(dst)] = w
		}
	}
}

func applyProvider(cfg *Config, p model.Provider, fp fileProviderConfig) {
	pc := cfg.Providers[p]
	if fp.MonthlyCap != nil {
		pc.MonthlyCap = *fp.MonthlyCap
	}
	if fp.PerRequestCap != nil {
		pc.PerRequestCap = *fp.PerRequestCap
	}
	if fp.RateLimitPerMin != nil {
		pc.RateLimitPerMin = *fp.RateLimitPerMin
	}
	if fp.RateLimitPerDay != nil {
		pc.RateLimitPerDay = *fp.RateLimitPerDay
	}
	cfg.Providers[p] = pc
}

func minutesToDuration(m int) time.Duration {
	return time.Duration(m) * time.Minute
}

// mergeDefaults fills the zero-valued fields of a partially-specified Config
// with built-in values via mergo, following the teacher's built-in/user merge
// pattern (pkg/config/merge.go). It is unexported and has no caller in this
// module.
func mergeDefaults(dst *Config) error {
	return mergo.Merge(dst, Defaults())
}
