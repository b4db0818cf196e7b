// Package cli wires the obibuf commands: protocol canonicalization and
// validation, topology metrics, buffered sends, audit verification, the
// inbox daemon, and the MCP server.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/obinexus/obibuf/internal/audit"
	"github.com/obinexus/obibuf/internal/config"
	"github.com/obinexus/obibuf/internal/topology"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "obibuf",
	Short: "Zero-trust protocol buffer with canonical normalization",
	Long: "Canonicalizes messages before any validation decision, gates them\n" +
		"through a pattern vocabulary under zero-trust policy, and records\n" +
		"every decision in a hash-chained audit log.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.obibuf/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the shared --config flag.
func loadConfig() (*config.Config, string, error) {
	return config.LoadWithHash(configPath)
}

// newGateNode builds a gate node from the resolved configuration.
func newGateNode(id string) (*topology.Node, *config.Config, string, error) {
	cfg, hash, err := loadConfig()
	if err != nil {
		return nil, nil, "", err
	}
	engine, err := cfg.NewEngine()
	if err != nil {
		return nil, nil, "", err
	}
	return topology.NewNode(id, engine), cfg, hash, nil
}

// openAuditLog opens the audit log, preferring the flag value over the
// configured path.
func openAuditLog(flagPath string, cfg *config.Config) (*audit.Log, error) {
	path := flagPath
	if path == "" {
		path = cfg.ResolveAuditLog()
	}
	return audit.Open(path)
}
