package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obinexus/obibuf/internal/protocol"
)

func TestDefaultBuildsWorkingEngine(t *testing.T) {
	cfg := Default()
	e, err := cfg.NewEngine()
	if err != nil {
		t.Fatal(err)
	}

	// Start state plus the four predefined vocabulary patterns.
	if got := len(e.States()); got != 5 {
		t.Fatalf("state count = %d, want 5", got)
	}
	if !e.ZeroTrust() {
		t.Error("default config must enforce zero trust")
	}

	nodes, report, err := e.Process("OBI-PROTOCOL-1.0:PAYLOAD|12|")
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 || !report.Accepted {
		t.Errorf("default vocabulary scan: %d nodes, accepted=%v", len(nodes), report.Accepted)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, hash, err := LoadWithHash(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if hash != "" {
		t.Errorf("hash for defaults = %q, want empty", hash)
	}
	if !cfg.ZeroTrust || cfg.MaxStates != protocol.DefaultMaxStates {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
zero_trust: false
max_states: 32
canonicalization:
  case_fold: true
  collapse_whitespace: false
  normalize_encoding: true
  bound: 1024
patterns:
  - type: data_payload
    rule: 'payload\|[0-9]+\|'
audit_log: /var/log/obibuf/audit.jsonl
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, hash, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ZeroTrust {
		t.Error("zero_trust override lost")
	}
	if cfg.MaxStates != 32 || cfg.Canonicalization.Bound != 1024 {
		t.Errorf("limits not applied: %+v", cfg)
	}
	if !strings.HasPrefix(hash, "sha256:") {
		t.Errorf("hash = %q", hash)
	}
	if len(cfg.Patterns) != 1 || cfg.Patterns[0].Rule != `payload\|[0-9]+\|` {
		t.Errorf("patterns = %+v", cfg.Patterns)
	}
	if cfg.AuditLogPath != "/var/log/obibuf/audit.jsonl" {
		t.Errorf("audit_log = %q", cfg.AuditLogPath)
	}

	e, err := cfg.NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	if e.Limits().MaxStates != 32 {
		t.Errorf("engine limits = %+v", e.Limits())
	}
	if !e.Context().CaseFold || e.Context().CollapseWhitespace {
		t.Error("context flags not applied")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		body string
	}{
		{"garbage", "{{not yaml"},
		{"zero-states", "max_states: 0"},
		{"tiny-bound", "canonicalization:\n  bound: 1"},
		{"ruleless-pattern", "patterns:\n  - type: data_payload"},
	}
	for _, tc := range cases {
		path := filepath.Join(dir, tc.name+".yaml")
		if err := os.WriteFile(path, []byte(tc.body), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load succeeded, want error", tc.name)
		}
	}
}
