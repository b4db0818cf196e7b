// Package config loads OBIBUF engine configuration from YAML.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/obinexus/obibuf/internal/protocol"
)

// Canonicalization holds the USCN context flags.
type Canonicalization struct {
	CaseFold           bool `yaml:"case_fold"`
	CollapseWhitespace bool `yaml:"collapse_whitespace"`
	NormalizeEncoding  bool `yaml:"normalize_encoding"`
	Bound              int  `yaml:"bound"`
}

// Pattern is one extra pattern registration beyond the built-in start state.
type Pattern struct {
	Type string `yaml:"type"`
	Rule string `yaml:"rule"`
}

// Config holds all engine and layer parameters.
type Config struct {
	ZeroTrust        bool             `yaml:"zero_trust"`
	Canonicalization Canonicalization `yaml:"canonicalization"`
	MaxStates        int              `yaml:"max_states"`
	MaxTransitions   int              `yaml:"max_transitions"`
	Patterns         []Pattern        `yaml:"patterns"`
	AuditLogPath     string           `yaml:"audit_log"`
	StorePath        string           `yaml:"store"`
}

// Default returns the built-in configuration: zero trust on, the full
// predefined pattern vocabulary registered, published table limits.
func Default() *Config {
	return &Config{
		ZeroTrust: true,
		Canonicalization: Canonicalization{
			CollapseWhitespace: true,
			NormalizeEncoding:  true,
			Bound:              protocol.DefaultBound,
		},
		MaxStates:      protocol.DefaultMaxStates,
		MaxTransitions: protocol.DefaultMaxTransitions,
		Patterns: []Pattern{
			{Type: string(protocol.PatternSecurityToken), Rule: protocol.RuleSecurityToken},
			{Type: string(protocol.PatternDataPayload), Rule: protocol.RulePayloadDelim},
			{Type: string(protocol.PatternSchemaReference), Rule: protocol.RuleSchemaRef},
			{Type: string(protocol.PatternAuditMarker), Rule: protocol.RuleAuditStamp},
		},
	}
}

// ResolveAuditLog returns the configured audit log path, defaulting to
// ~/.obibuf/audit.jsonl.
func (c *Config) ResolveAuditLog() string {
	if c.AuditLogPath != "" {
		return c.AuditLogPath
	}
	return homePath("audit.jsonl")
}

// ResolveStore returns the configured result store path, defaulting to
// ~/.obibuf/results.db.
func (c *Config) ResolveStore() string {
	if c.StorePath != "" {
		return c.StorePath
	}
	return homePath("results.db")
}

func homePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".obibuf", name)
	}
	return filepath.Join(home, ".obibuf", name)
}

// Load reads configuration from a YAML file. An empty path falls back to
// ~/.obibuf/config.yaml; a missing file returns defaults; invalid YAML
// returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash is Load plus the SHA-256 of the file bytes, for stamping
// audit entries with the configuration that produced them. The hash is
// empty when defaults were used.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Default(), "", nil
		}
		path = filepath.Join(home, ".obibuf", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), "", nil
		}
		return nil, "", fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, "", fmt.Errorf("config: %s: %w", path, err)
	}

	h := sha256.Sum256(data)
	return cfg, "sha256:" + hex.EncodeToString(h[:]), nil
}

func (c *Config) validate() error {
	if c.MaxStates < 1 {
		return fmt.Errorf("max_states must be at least 1")
	}
	if c.MaxTransitions < 0 {
		return fmt.Errorf("max_transitions must not be negative")
	}
	if c.Canonicalization.Bound < 2 {
		return fmt.Errorf("canonicalization bound must be at least 2")
	}
	for i, p := range c.Patterns {
		if p.Rule == "" {
			return fmt.Errorf("pattern %d: missing rule", i)
		}
	}
	return nil
}

// NewCanonContext builds a standalone canonicalization context with the
// configured flags and bound.
func (c *Config) NewCanonContext() *protocol.Context {
	ctx := protocol.NewContext()
	ctx.CaseFold = c.Canonicalization.CaseFold
	ctx.CollapseWhitespace = c.Canonicalization.CollapseWhitespace
	ctx.NormalizeEncoding = c.Canonicalization.NormalizeEncoding
	ctx.Bound = c.Canonicalization.Bound
	return ctx
}

// NewEngine builds a protocol engine from the configuration: context flags,
// limits, and every configured pattern registered in order.
func (c *Config) NewEngine() (*protocol.Engine, error) {
	ctx := c.NewCanonContext()

	e, err := protocol.New(c.ZeroTrust,
		protocol.WithContext(ctx),
		protocol.WithLimits(protocol.Limits{
			MaxStates:      c.MaxStates,
			MaxTransitions: c.MaxTransitions,
			Bound:          c.Canonicalization.Bound,
		}),
	)
	if err != nil {
		return nil, err
	}

	for _, p := range c.Patterns {
		if _, err := e.RegisterPattern(protocol.PatternType(p.Type), p.Rule); err != nil {
			return nil, fmt.Errorf("config: register pattern %q: %w", p.Rule, err)
		}
	}
	return e, nil
}
