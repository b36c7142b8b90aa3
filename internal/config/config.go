package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all CampusPilot configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Autonomy policy
	Autonomy AutonomyConfig `yaml:"autonomy"`

	// Record-system client
	Records RecordsConfig `yaml:"records"`

	// NL fallback oracle
	Oracle OracleConfig `yaml:"oracle"`

	// Conversation state
	State StateConfig `yaml:"state"`

	// Audit log
	Audit AuditConfig `yaml:"audit"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// AutonomyConfig controls how willing the pipeline is to act without
// per-action confirmation.
type AutonomyConfig struct {
	Mode                string  `yaml:"mode"` // manual, assist, autonomous
	AssistThreshold     float64 `yaml:"assist_threshold"`
	AutonomousThreshold float64 `yaml:"autonomous_threshold"`
	MaxAutoRecipients   int     `yaml:"max_auto_recipients"`
	UndoWindow          string  `yaml:"undo_window"`
}

// RecordsConfig configures the school record-system client.
type RecordsConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// OracleConfig configures the NL fallback oracle.
type OracleConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`

	// ConfidenceCap bounds any oracle-derived confidence so oracle output
	// can reach CONFIRM/CLARIFY but never auto-executes in assist mode.
	ConfidenceCap float64 `yaml:"confidence_cap"`
}

// StateConfig configures the conversation state store.
type StateConfig struct {
	Backend      string `yaml:"backend"` // memory, sqlite
	DatabasePath string `yaml:"database_path"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	DatabasePath string `yaml:"database_path"`

	// RecordFailures controls whether failed action attempts are still
	// written to the audit log (with a null target id).
	RecordFailures bool `yaml:"record_failures"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "CampusPilot",
		Version: "0.4.0",

		Autonomy: AutonomyConfig{
			Mode:                "assist",
			AssistThreshold:     0.80,
			AutonomousThreshold: 0.60,
			MaxAutoRecipients:   3,
			UndoWindow:          "300s",
		},

		Records: RecordsConfig{
			BaseURL: "http://localhost:8090",
			Timeout: "10s",
		},

		Oracle: OracleConfig{
			Enabled:       true,
			Model:         "gemini-2.5-flash",
			Timeout:       "30s",
			ConfidenceCap: 0.60,
		},

		State: StateConfig{
			Backend:      "sqlite",
			DatabasePath: "data/campuspilot.db",
		},

		Audit: AuditConfig{
			DatabasePath:   "data/audit.db",
			RecordFailures: true,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Oracle.APIKey = key
	}
	if url := os.Getenv("CAMPUSPILOT_RECORDS_URL"); url != "" {
		c.Records.BaseURL = url
	}
	if path := os.Getenv("CAMPUSPILOT_DB"); path != "" {
		c.State.DatabasePath = path
	}
	if path := os.Getenv("CAMPUSPILOT_AUDIT_DB"); path != "" {
		c.Audit.DatabasePath = path
	}
	if mode := os.Getenv("CAMPUSPILOT_MODE"); mode != "" {
		c.Autonomy.Mode = mode
	}
}

// GetRecordsTimeout returns the record-system request timeout as a duration.
func (c *Config) GetRecordsTimeout() time.Duration {
	d, err := time.ParseDuration(c.Records.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetOracleTimeout returns the oracle request timeout as a duration.
func (c *Config) GetOracleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Oracle.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetUndoWindow returns the undo window as a duration.
func (c *Config) GetUndoWindow() time.Duration {
	d, err := time.ParseDuration(c.Autonomy.UndoWindow)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// ValidModes lists all supported autonomy modes.
var ValidModes = []string{"manual", "assist", "autonomous"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validMode := false
	for _, m := range ValidModes {
		if c.Autonomy.Mode == m {
			validMode = true
			break
		}
	}
	if !validMode {
		return fmt.Errorf("invalid autonomy mode: %s (valid: %v)", c.Autonomy.Mode, ValidModes)
	}

	if c.Autonomy.AssistThreshold < 0 || c.Autonomy.AssistThreshold > 1 {
		return fmt.Errorf("assist_threshold must be in [0,1], got %v", c.Autonomy.AssistThreshold)
	}
	if c.Autonomy.AutonomousThreshold < 0 || c.Autonomy.AutonomousThreshold > 1 {
		return fmt.Errorf("autonomous_threshold must be in [0,1], got %v", c.Autonomy.AutonomousThreshold)
	}
	if c.Autonomy.MaxAutoRecipients < 0 {
		return fmt.Errorf("max_auto_recipients must be >= 0, got %d", c.Autonomy.MaxAutoRecipients)
	}
	if c.Oracle.ConfidenceCap < 0 || c.Oracle.ConfidenceCap > 1 {
		return fmt.Errorf("oracle confidence_cap must be in [0,1], got %v", c.Oracle.ConfidenceCap)
	}

	return nil
}

// DefaultPath returns the default path to .campuspilot/config.yaml.
func DefaultPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".campuspilot", "config.yaml")
	}
	return filepath.Join(cwd, ".campuspilot", "config.yaml")
}
