// Package config resolves where toolwarden reads its files from and loads
// the interceptor settings. A broken config file never stops a filter:
// Load reports the problem and hands back defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/gzhole/toolwarden/internal/logger"
	"github.com/gzhole/toolwarden/internal/risk"
	"github.com/gzhole/toolwarden/internal/sanitize"
)

const (
	DefaultConfigDir  = ".toolwarden"
	DefaultPolicyFile = "tool-permissions.yaml"
	DefaultConfigFile = "interceptors.yaml"
	DefaultPacksDir   = "policies.d"

	DefaultAuditDir      = "/var/log/toolwarden/audit"
	FallbackAuditDirName = "toolwarden-audit"

	DefaultBlockThreshold = 5.0
)

// FailureMode says what a filter decides when it cannot evaluate its
// input.
type FailureMode string

const (
	FailOpen   FailureMode = "open"
	FailClosed FailureMode = "closed"
)

// Valid reports whether m is a known mode.
func (m FailureMode) Valid() bool { return m == FailOpen || m == FailClosed }

type Config struct {
	// Resolved paths; not read from the file.
	ConfigDir  string `yaml:"-"`
	ConfigPath string `yaml:"-"`
	PolicyPath string `yaml:"-"`
	PacksDir   string `yaml:"-"`

	LogLevel    string          `yaml:"log_level"`
	MetricsFile string          `yaml:"metrics_file"`
	Guard       GuardConfig     `yaml:"guard"`
	Access      AccessConfig    `yaml:"access"`
	Sanitizer   SanitizerConfig `yaml:"sanitizer"`
	Audit       AuditConfig     `yaml:"audit"`
}

type GuardConfig struct {
	BlockThreshold float64     `yaml:"block_threshold"`
	HighRiskTools  []string    `yaml:"high_risk_tools"`
	OnError        FailureMode `yaml:"on_error"`
}

type AccessConfig struct {
	// PolicyFile overrides <config dir>/tool-permissions.yaml.
	PolicyFile string      `yaml:"policy_file"`
	OnError    FailureMode `yaml:"on_error"`
}

type SanitizerConfig struct {
	RemoveSecrets   bool        `yaml:"remove_secrets"`
	RedactPII       bool        `yaml:"redact_pii"`
	MaxResponseSize int         `yaml:"max_response_size"`
	SecretPatterns  []string    `yaml:"secret_patterns"`
	PIIPatterns     []string    `yaml:"pii_patterns"`
	OnError         FailureMode `yaml:"on_error"`
}

type AuditConfig struct {
	Dir         string      `yaml:"dir"`
	AgentName   string      `yaml:"agent_name"`
	ManagerName string      `yaml:"manager_name"`
	Location    string      `yaml:"location"`
	Decoder     string      `yaml:"decoder"`
	OnError     FailureMode `yaml:"on_error"`
}

// Default returns the built-in settings rooted at configDir.
func Default(configDir string) *Config {
	cfg := &Config{
		LogLevel: "info",
		Guard: GuardConfig{
			BlockThreshold: DefaultBlockThreshold,
			HighRiskTools:  append([]string(nil), risk.DefaultHighRiskTools...),
			OnError:        FailOpen,
		},
		Access: AccessConfig{OnError: FailClosed},
		Sanitizer: SanitizerConfig{
			RemoveSecrets:   true,
			RedactPII:       true,
			MaxResponseSize: sanitize.DefaultMaxResponseSize,
			OnError:         FailClosed,
		},
		Audit: AuditConfig{Dir: DefaultAuditDir, OnError: FailOpen},
	}
	cfg.setPaths(configDir)
	return cfg
}

func (c *Config) setPaths(configDir string) {
	c.ConfigDir = configDir
	c.ConfigPath = filepath.Join(configDir, DefaultConfigFile)
	c.PolicyPath = filepath.Join(configDir, DefaultPolicyFile)
	c.PacksDir = filepath.Join(configDir, DefaultPacksDir)
}

// ResolveDir returns configDir, or ~/.toolwarden when it is empty.
func ResolveDir(configDir string) string {
	if configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDir
	}
	return filepath.Join(home, DefaultConfigDir)
}

// Load reads <configDir>/interceptors.yaml over the defaults. A missing
// file is not an error. A malformed or invalid file returns the defaults
// together with the error.
func Load(configDir string) (*Config, error) {
	dir := ResolveDir(configDir)
	cfg := Default(dir)

	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", cfg.ConfigPath, err)
	}

	loaded, err := Parse(data, dir)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", cfg.ConfigPath, err)
	}
	return loaded, nil
}

// Parse decodes a config document over the defaults and validates it.
func Parse(data []byte, configDir string) (*Config, error) {
	cfg := Default(configDir)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.setPaths(configDir)
	if cfg.Access.PolicyFile != "" {
		cfg.PolicyPath = cfg.Access.PolicyFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Guard.BlockThreshold <= 0 || c.Guard.BlockThreshold > risk.MaxScore {
		errs = append(errs, fmt.Errorf("guard.block_threshold must be in (0, %g], got %g", risk.MaxScore, c.Guard.BlockThreshold))
	}
	if c.Sanitizer.MaxResponseSize <= 0 {
		errs = append(errs, fmt.Errorf("sanitizer.max_response_size must be positive, got %d", c.Sanitizer.MaxResponseSize))
	}

	modes := map[string]FailureMode{
		"guard.on_error":     c.Guard.OnError,
		"access.on_error":    c.Access.OnError,
		"sanitizer.on_error": c.Sanitizer.OnError,
		"audit.on_error":     c.Audit.OnError,
	}
	for _, field := range []string{"guard.on_error", "access.on_error", "sanitizer.on_error", "audit.on_error"} {
		if m := modes[field]; !m.Valid() {
			errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", field, FailOpen, FailClosed, m))
		}
	}

	for _, expr := range append(append([]string(nil), c.Sanitizer.SecretPatterns...), c.Sanitizer.PIIPatterns...) {
		if _, err := regexp.Compile(expr); err != nil {
			errs = append(errs, fmt.Errorf("sanitizer pattern %q: %w", expr, err))
		}
	}

	return errors.Join(errs...)
}

// AuditDirs lists the audit directories to try, in order.
func (c *Config) AuditDirs() []string {
	dirs := []string{}
	if c.Audit.Dir != "" {
		dirs = append(dirs, c.Audit.Dir)
	}
	return append(dirs, filepath.Join(os.TempDir(), FallbackAuditDirName))
}

// SanitizeConfig converts the sanitizer section.
func (c *Config) SanitizeConfig() sanitize.Config {
	return sanitize.Config{
		RemoveSecrets:   c.Sanitizer.RemoveSecrets,
		RedactPII:       c.Sanitizer.RedactPII,
		MaxResponseSize: c.Sanitizer.MaxResponseSize,
	}
}
