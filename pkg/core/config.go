package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Config — central configuration for a NeuralRAG store instance.
//
// The configuration is resolved through a four-level hierarchy where each
// layer overrides values set by the layer beneath it:
//
//	Priority (highest → lowest):
//	  1. Programmatic overrides (e.g. CLI flags applied after loading)
//	  2. Environment variables (NEURALRAG_* prefix)
//	  3. YAML configuration file
//	  4. Built-in defaults
//
// All duration fields accept standard Go duration strings when supplied
// through the YAML file or environment variables (e.g. "30s", "5m", "1h").
// ---------------------------------------------------------------------------

// StorageConfig groups persistence-related settings.
type StorageConfig struct {
	// DataPath is the project root under which .neuralrag/brain.db lives.
	DataPath string `yaml:"dataPath"`

	// WALEnabled controls SQLite's write-ahead log journal mode.
	WALEnabled bool `yaml:"walEnabled"`

	// FsyncPolicy controls persistence fsync behavior: always | interval | off.
	FsyncPolicy string `yaml:"fsyncPolicy"`

	// StartupRepair runs an integrity check on open and logs (never fails)
	// on a mismatch.
	StartupRepair bool `yaml:"startupRepair"`
}

// RetrievalConfig groups spreading-activation defaults (spec.md §4.4).
type RetrievalConfig struct {
	MaxNeurons    int     `yaml:"maxNeurons"`
	EntryCount    int     `yaml:"entryCount"`
	DecayFactor   float64 `yaml:"decayFactor"`
	MinActivation float64 `yaml:"minActivation"`

	// SimilarityFloor is optional (spec.md §9 Open Question); nil means
	// "no floor" is applied to vector-index entries.
	SimilarityFloor *float64 `yaml:"similarityFloor,omitempty"`
}

// LearnerConfig groups Hebbian learning background-job intervals.
type LearnerConfig struct {
	DecayInterval time.Duration `yaml:"decayInterval"`
	DecayDaysOld  int           `yaml:"decayDaysOld"`
	DecayDelta    float64       `yaml:"decayDelta"`

	PruneInterval time.Duration `yaml:"pruneInterval"`
	PruneFloor    float64       `yaml:"pruneFloor"`
}

// Config is the root configuration object for a NeuralRAG store.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Learner   LearnerConfig   `yaml:"learner"`
}

// DefaultConfig returns a Config populated with the spec's documented
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataPath:      ".",
			WALEnabled:    true,
			FsyncPolicy:   "interval",
			StartupRepair: true,
		},
		Retrieval: RetrievalConfig{
			MaxNeurons:    15,
			EntryCount:    3,
			DecayFactor:   0.7,
			MinActivation: 0.1,
		},
		Learner: LearnerConfig{
			DecayInterval: 1 * time.Hour,
			DecayDaysOld:  7,
			DecayDelta:    0.05,
			PruneInterval: 6 * time.Hour,
			PruneFloor:    0,
		},
	}
}

// ConfigFromFile reads a YAML configuration file and merges it on top of
// the built-in defaults. Fields absent from the file retain their defaults.
func ConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// ConfigFromEnv applies environment variable overrides to the given
// Config. If cfg is nil a new default Config is created first.
//
// Environment variable mapping (all optional, prefix NEURALRAG_):
//
//	NEURALRAG_DATA_PATH          → Storage.DataPath
//	NEURALRAG_WAL_ENABLED        → Storage.WALEnabled    ("true"/"false")
//	NEURALRAG_FSYNC_POLICY       → Storage.FsyncPolicy   (always|interval|off)
//	NEURALRAG_STARTUP_REPAIR     → Storage.StartupRepair ("true"/"false")
//	NEURALRAG_MAX_NEURONS        → Retrieval.MaxNeurons
//	NEURALRAG_ENTRY_COUNT        → Retrieval.EntryCount
//	NEURALRAG_DECAY_FACTOR       → Retrieval.DecayFactor
//	NEURALRAG_MIN_ACTIVATION     → Retrieval.MinActivation
//	NEURALRAG_LEARNER_DECAY_INTERVAL → Learner.DecayInterval (duration string)
//	NEURALRAG_LEARNER_DECAY_DAYS_OLD → Learner.DecayDaysOld
//	NEURALRAG_LEARNER_DECAY_DELTA    → Learner.DecayDelta
//	NEURALRAG_LEARNER_PRUNE_INTERVAL → Learner.PruneInterval (duration string)
//	NEURALRAG_LEARNER_PRUNE_FLOOR    → Learner.PruneFloor
func ConfigFromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	setEnvStr("NEURALRAG_DATA_PATH", &cfg.Storage.DataPath)
	setEnvBool("NEURALRAG_WAL_ENABLED", &cfg.Storage.WALEnabled)
	setEnvStr("NEURALRAG_FSYNC_POLICY", &cfg.Storage.FsyncPolicy)
	setEnvBool("NEURALRAG_STARTUP_REPAIR", &cfg.Storage.StartupRepair)

	setEnvInt("NEURALRAG_MAX_NEURONS", &cfg.Retrieval.MaxNeurons)
	setEnvInt("NEURALRAG_ENTRY_COUNT", &cfg.Retrieval.EntryCount)
	setEnvFloat("NEURALRAG_DECAY_FACTOR", &cfg.Retrieval.DecayFactor)
	setEnvFloat("NEURALRAG_MIN_ACTIVATION", &cfg.Retrieval.MinActivation)

	setEnvDuration("NEURALRAG_LEARNER_DECAY_INTERVAL", &cfg.Learner.DecayInterval)
	setEnvInt("NEURALRAG_LEARNER_DECAY_DAYS_OLD", &cfg.Learner.DecayDaysOld)
	setEnvFloat("NEURALRAG_LEARNER_DECAY_DELTA", &cfg.Learner.DecayDelta)
	setEnvDuration("NEURALRAG_LEARNER_PRUNE_INTERVAL", &cfg.Learner.PruneInterval)
	setEnvFloat("NEURALRAG_LEARNER_PRUNE_FLOOR", &cfg.Learner.PruneFloor)

	return cfg
}

// LoadConfig implements the full configuration hierarchy: defaults, then
// (optionally) a YAML file, then environment variables. The caller may
// then apply programmatic overrides via ApplyCLIOverrides.
func LoadConfig(configPath string) (*Config, error) {
	var cfg *Config

	if configPath != "" {
		var err error
		cfg, err = ConfigFromFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}

	cfg = ConfigFromEnv(cfg)
	return cfg, nil
}

// Validate performs structural validation of the entire configuration.
func (c *Config) Validate() error {
	if c.Storage.DataPath == "" {
		return fmt.Errorf("storage.dataPath must not be empty")
	}
	policy := strings.ToLower(strings.TrimSpace(c.Storage.FsyncPolicy))
	if policy != "always" && policy != "interval" && policy != "off" {
		return fmt.Errorf("storage.fsyncPolicy must be one of always|interval|off")
	}
	c.Storage.FsyncPolicy = policy

	if c.Retrieval.MaxNeurons < 1 {
		return fmt.Errorf("retrieval.maxNeurons must be >= 1, got %d", c.Retrieval.MaxNeurons)
	}
	if c.Retrieval.EntryCount < 1 {
		return fmt.Errorf("retrieval.entryCount must be >= 1, got %d", c.Retrieval.EntryCount)
	}
	if c.Retrieval.DecayFactor <= 0 || c.Retrieval.DecayFactor >= 1 {
		return fmt.Errorf("retrieval.decayFactor must be in (0,1), got %f", c.Retrieval.DecayFactor)
	}
	if c.Retrieval.MinActivation < 0 || c.Retrieval.MinActivation >= 1 {
		return fmt.Errorf("retrieval.minActivation must be in [0,1), got %f", c.Retrieval.MinActivation)
	}
	if c.Retrieval.SimilarityFloor != nil {
		f := *c.Retrieval.SimilarityFloor
		if f < -1 || f > 1 {
			return fmt.Errorf("retrieval.similarityFloor must be in [-1,1], got %f", f)
		}
	}

	if c.Learner.DecayInterval <= 0 {
		return fmt.Errorf("learner.decayInterval must be > 0")
	}
	if c.Learner.PruneInterval <= 0 {
		return fmt.Errorf("learner.pruneInterval must be > 0")
	}
	if c.Learner.DecayDelta < 0 || c.Learner.DecayDelta > 1 {
		return fmt.Errorf("learner.decayDelta must be in [0,1], got %f", c.Learner.DecayDelta)
	}
	if c.Learner.PruneFloor < 0 || c.Learner.PruneFloor > 1 {
		return fmt.Errorf("learner.pruneFloor must be in [0,1], got %f", c.Learner.PruneFloor)
	}

	if c.Learner.DecayInterval < 5*time.Second {
		log.Printf("⚠ WARNING: learner.decayInterval=%v is very aggressive — this will increase CPU usage", c.Learner.DecayInterval)
	}

	return nil
}

// ---------------------------------------------------------------------------
// CLI flag overrides — final layer of the configuration hierarchy.
// ---------------------------------------------------------------------------

// CLIOverrides carries optional values set via command-line flags.
// Pointer fields are nil when the flag was not explicitly provided,
// allowing the caller to distinguish "not set" from the zero value.
type CLIOverrides struct {
	DataPath      *string
	WALEnabled    *bool
	FsyncPolicy   *string
	DecayInterval *time.Duration
	PruneInterval *time.Duration
}

// ApplyCLIOverrides patches the Config with any explicitly-set CLI flags.
func (c *Config) ApplyCLIOverrides(o *CLIOverrides) {
	if o == nil {
		return
	}
	if o.DataPath != nil {
		c.Storage.DataPath = *o.DataPath
	}
	if o.WALEnabled != nil {
		c.Storage.WALEnabled = *o.WALEnabled
	}
	if o.FsyncPolicy != nil {
		c.Storage.FsyncPolicy = *o.FsyncPolicy
	}
	if o.DecayInterval != nil {
		c.Learner.DecayInterval = *o.DecayInterval
	}
	if o.PruneInterval != nil {
		c.Learner.PruneInterval = *o.PruneInterval
	}
}

// ---------------------------------------------------------------------------
// Lifecycle helpers
// ---------------------------------------------------------------------------

// WaitForShutdown blocks until an OS interrupt or termination signal is
// received, then cancels the provided context to initiate graceful
// shutdown.
func WaitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("[neuralragd] received signal %v, initiating shutdown...", sig)
		cancel()
	case <-ctx.Done():
	}
}

// ---------------------------------------------------------------------------
// Environment variable helpers
// ---------------------------------------------------------------------------

func setEnvStr(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setEnvBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func setEnvInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setEnvFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func setEnvDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
