package game

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of a game. Zero-valued fields are filled in
// by Normalize so a partial YAML file is fine.
type Config struct {
	MaxRounds          int   `yaml:"max_rounds"`
	WinThreshold       int   `yaml:"win_threshold"`
	Seed               int64 `yaml:"seed"`
	NegotiationWordCap int   `yaml:"negotiation_word_cap"`

	RoundTimeoutSeconds        float64 `yaml:"round_timeout_seconds"`
	NegotiationDeadlockSeconds float64 `yaml:"negotiation_deadlock_seconds"`
	IdleCooldownBaseSeconds    float64 `yaml:"idle_cooldown_base_seconds"`
	IdleCooldownMaxSeconds     float64 `yaml:"idle_cooldown_max_seconds"`

	RequestTimeoutSeconds float64   `yaml:"request_timeout_seconds"`
	RequestRetries        int       `yaml:"request_retries"`
	RetryBackoffSeconds   []float64 `yaml:"retry_backoff_seconds"`

	VoteChangeCap        int `yaml:"vote_change_cap"`
	AutocorrectThreshold int `yaml:"autocorrect_threshold"`
	ManipulationCycles   int `yaml:"manipulation_cycles"`

	LogRoot string `yaml:"log_root"`
	IndexDB string `yaml:"index_db"`
}

func Defaults() Config {
	return Config{
		MaxRounds:                  10,
		WinThreshold:               15,
		Seed:                       42,
		NegotiationWordCap:         500,
		RoundTimeoutSeconds:        600,
		NegotiationDeadlockSeconds: 20,
		IdleCooldownBaseSeconds:    0.25,
		IdleCooldownMaxSeconds:     2.0,
		RequestTimeoutSeconds:      45,
		RequestRetries:             2,
		RetryBackoffSeconds:        []float64{1.0, 2.0},
		VoteChangeCap:              2,
		AutocorrectThreshold:       2,
		ManipulationCycles:         2,
		LogRoot:                    "logs",
		IndexDB:                    "",
	}
}

// LoadConfig reads a YAML config. An empty path yields defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("game config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("game config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	d := Defaults()
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.WinThreshold <= 0 {
		c.WinThreshold = d.WinThreshold
	}
	if c.NegotiationWordCap <= 0 {
		c.NegotiationWordCap = d.NegotiationWordCap
	}
	if c.RoundTimeoutSeconds <= 0 {
		c.RoundTimeoutSeconds = d.RoundTimeoutSeconds
	}
	if c.NegotiationDeadlockSeconds <= 0 {
		c.NegotiationDeadlockSeconds = d.NegotiationDeadlockSeconds
	}
	if c.IdleCooldownBaseSeconds <= 0 {
		c.IdleCooldownBaseSeconds = d.IdleCooldownBaseSeconds
	}
	if c.IdleCooldownMaxSeconds <= 0 {
		c.IdleCooldownMaxSeconds = d.IdleCooldownMaxSeconds
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = d.RequestTimeoutSeconds
	}
	if c.RequestRetries < 0 {
		c.RequestRetries = d.RequestRetries
	}
	if len(c.RetryBackoffSeconds) == 0 {
		c.RetryBackoffSeconds = append([]float64(nil), d.RetryBackoffSeconds...)
	}
	if c.VoteChangeCap <= 0 {
		c.VoteChangeCap = d.VoteChangeCap
	}
	if c.AutocorrectThreshold <= 0 {
		c.AutocorrectThreshold = d.AutocorrectThreshold
	}
	if c.ManipulationCycles <= 0 {
		c.ManipulationCycles = d.ManipulationCycles
	}
	if strings.TrimSpace(c.LogRoot) == "" {
		c.LogRoot = d.LogRoot
	}
}

func (c Config) Validate() error {
	if c.MaxRounds > 10 {
		// Two proposals leave the 20-card deck after ten rounds.
		return fmt.Errorf("max_rounds must be <= 10, got %d", c.MaxRounds)
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("max_rounds must be > 0")
	}
	if c.NegotiationWordCap <= 0 {
		return fmt.Errorf("negotiation_word_cap must be > 0")
	}
	if c.NegotiationDeadlockSeconds > c.RoundTimeoutSeconds {
		return fmt.Errorf("negotiation_deadlock_seconds must not exceed round_timeout_seconds")
	}
	for i, v := range c.RetryBackoffSeconds {
		if v < 0 {
			return fmt.Errorf("retry_backoff_seconds[%d] must be >= 0", i)
		}
	}
	return nil
}
