// Package config loads the environment-driven knobs enumerated in
// spec.md §6: upstream credentials, per-mode model sets, stage timeouts,
// and the registry/transport lifecycle defaults. YAML is the on-disk
// format, mirroring the teacher's executor config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelSet configures the participants and chairman for one mode.
type ModelSet struct {
	Participants []string `yaml:"participants"`
	Chairman     string   `yaml:"chairman"`
}

// Config is the full set of environment knobs the council subsystem needs.
type Config struct {
	UpstreamBaseURL   string `yaml:"upstreamBaseUrl"`
	UpstreamAPIKeyEnv string `yaml:"upstreamApiKeyEnv,omitempty"`
	upstreamAPIKey    string

	Modes       map[string]ModelSet `yaml:"modes"`
	DefaultMode string              `yaml:"defaultMode"`

	Stage1TimeoutSec int `yaml:"stage1TimeoutSec"`
	Stage2TimeoutSec int `yaml:"stage2TimeoutSec"`
	Stage3TimeoutSec int `yaml:"stage3TimeoutSec"`

	ParticipantMaxTokens int `yaml:"participantMaxTokens"`
	ChairmanMaxTokens    int `yaml:"chairmanMaxTokens"`
	RecentMessagesWindow int `yaml:"recentMessagesWindow"`

	MaxSessionsPerUser int `yaml:"maxSessionsPerUser"`
	MaxConcurrent      int `yaml:"maxConcurrentProcessing"`

	GracePeriodSec    int `yaml:"gracePeriodSec"`
	StaleThresholdSec int `yaml:"staleThresholdSec"`
	SweepIntervalSec  int `yaml:"sweepIntervalSec"`
	HeartbeatSec      int `yaml:"heartbeatSec"`
	TitleTimeoutSec   int `yaml:"titleTimeoutSec"`

	DBPath string `yaml:"dbPath,omitempty"`

	MaxContentLen int `yaml:"maxContentLen"`
}

// Load reads and parses a YAML config file at path, applies defaults for
// any zero-valued duration/limit field, and resolves the upstream API key
// from the environment variable it names (default COUNCIL_UPSTREAM_API_KEY).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.resolveAPIKey()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DefaultMode == "" {
		c.DefaultMode = "lite"
	}
	if c.Stage1TimeoutSec == 0 {
		c.Stage1TimeoutSec = 60
	}
	if c.Stage2TimeoutSec == 0 {
		c.Stage2TimeoutSec = 60
	}
	if c.Stage3TimeoutSec == 0 {
		c.Stage3TimeoutSec = 120
	}
	if c.ParticipantMaxTokens == 0 {
		c.ParticipantMaxTokens = 2048
	}
	if c.ChairmanMaxTokens == 0 {
		c.ChairmanMaxTokens = 4096
	}
	if c.RecentMessagesWindow == 0 {
		c.RecentMessagesWindow = 10
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 50
	}
	if c.GracePeriodSec == 0 {
		c.GracePeriodSec = 30
	}
	if c.StaleThresholdSec == 0 {
		c.StaleThresholdSec = 600
	}
	if c.SweepIntervalSec == 0 {
		c.SweepIntervalSec = 300
	}
	if c.HeartbeatSec == 0 {
		c.HeartbeatSec = 15
	}
	if c.TitleTimeoutSec == 0 {
		c.TitleTimeoutSec = 30
	}
	if c.MaxContentLen == 0 {
		c.MaxContentLen = 4000
	}
	if c.UpstreamAPIKeyEnv == "" {
		c.UpstreamAPIKeyEnv = "COUNCIL_UPSTREAM_API_KEY"
	}
}

func (c *Config) resolveAPIKey() {
	c.upstreamAPIKey = os.Getenv(c.UpstreamAPIKeyEnv)
}

// UpstreamAPIKey returns the resolved upstream credential. Empty means
// "unconfigured-upstream" per spec.md §6.
func (c *Config) UpstreamAPIKey() string { return c.upstreamAPIKey }

func (c *Config) Stage1Timeout() time.Duration { return time.Duration(c.Stage1TimeoutSec) * time.Second }
func (c *Config) Stage2Timeout() time.Duration { return time.Duration(c.Stage2TimeoutSec) * time.Second }
func (c *Config) Stage3Timeout() time.Duration { return time.Duration(c.Stage3TimeoutSec) * time.Second }
func (c *Config) GracePeriod() time.Duration   { return time.Duration(c.GracePeriodSec) * time.Second }
func (c *Config) StaleThreshold() time.Duration { return time.Duration(c.StaleThresholdSec) * time.Second }
func (c *Config) SweepInterval() time.Duration { return time.Duration(c.SweepIntervalSec) * time.Second }
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSec) * time.Second
}
func (c *Config) TitleTimeout() time.Duration { return time.Duration(c.TitleTimeoutSec) * time.Second }
