// Package mcp exposes the protocol engine over the Model Context Protocol
// so agents can canonicalize, validate, and inspect messages through typed
// tools instead of shelling out to the CLI.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/obinexus/obibuf/internal/audit"
	"github.com/obinexus/obibuf/internal/config"
	"github.com/obinexus/obibuf/internal/protocol"
	"github.com/obinexus/obibuf/internal/topology"
)

// Config holds MCP server configuration.
type Config struct {
	ConfigPath   string
	AuditLogPath string
}

// Server wraps the MCP SDK server around a gate node. Validation calls are
// audited like any other gated traffic; pure canonicalization calls are not.
type Server struct {
	mcpServer  *mcpsdk.Server
	node       *topology.Node
	canon      *protocol.Context
	auditLog   *audit.Log
	configHash string
}

// New creates an MCP server with a configured engine and tools registered.
func New(cfg Config) (*Server, error) {
	conf, hash, err := config.LoadWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	engine, err := conf.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	s := &Server{
		node:       topology.NewNode("mcp", engine),
		canon:      conf.NewCanonContext(),
		configHash: hash,
	}

	auditPath := cfg.AuditLogPath
	if auditPath == "" {
		auditPath = conf.AuditLogPath
	}
	if auditPath != "" {
		log, err := audit.Open(auditPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		s.auditLog = log
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "obibuf",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close closes the audit log if configured.
func (s *Server) Close() error {
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

// registerTools adds all obibuf tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "obibuf_normalize",
		Description: "Canonicalize an input string: decode evasive encodings, optionally fold case and collapse whitespace. Returns the canonical form.",
	}, s.handleNormalize)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "obibuf_validate",
		Description: "Gate a message through the zero-trust protocol engine. Returns the decision, matched pattern nodes, and governance state. Every call is audited.",
	}, s.handleValidate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "obibuf_equivalent",
		Description: "Check whether two strings denote the same canonical value. Catches encoding-based evasion of string comparisons.",
	}, s.handleEquivalent)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "obibuf_cost",
		Description: "Report the gate node's accumulated governance cost and zone.",
	}, s.handleCost)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "obibuf_export",
		Description: "Export the engine's pattern specification as yaml, json, or a C header.",
	}, s.handleExport)
}
