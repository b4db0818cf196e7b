package mcp

import (
	"context"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/obinexus/obibuf/internal/audit"
	"github.com/obinexus/obibuf/internal/protocol"
	"github.com/obinexus/obibuf/internal/topology"
)

// --- Input/Output types ---

// NormalizeInput defines parameters for the obibuf_normalize tool.
type NormalizeInput struct {
	Input string `json:"input" jsonschema:"string to canonicalize"`
}

// NormalizeOutput contains the canonical form.
type NormalizeOutput struct {
	Canonical string `json:"canonical"`
	Length    int    `json:"length"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ValidateInput defines parameters for the obibuf_validate tool.
type ValidateInput struct {
	Message string `json:"message" jsonschema:"message to gate through the protocol engine"`
}

// ValidateNode is one matched pattern in the validation result.
type ValidateNode struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Length  int    `json:"length"`
}

// ValidateOutput contains the gate decision and match detail.
type ValidateOutput struct {
	Decision  string         `json:"decision"`
	Reason    string         `json:"reason,omitempty"`
	Zone      string         `json:"zone"`
	Cost      float64        `json:"cost"`
	Matches   int            `json:"matches"`
	Unmatched int            `json:"unmatched_bytes"`
	Truncated bool           `json:"truncated,omitempty"`
	Nodes     []ValidateNode `json:"nodes,omitempty"`
}

// EquivalentInput defines parameters for the obibuf_equivalent tool.
type EquivalentInput struct {
	A string `json:"a" jsonschema:"first string"`
	B string `json:"b" jsonschema:"second string"`
}

// EquivalentOutput reports canonical equivalence.
type EquivalentOutput struct {
	Equivalent bool   `json:"equivalent"`
	CanonicalA string `json:"canonical_a"`
	CanonicalB string `json:"canonical_b"`
}

// CostInput is empty — no parameters needed.
type CostInput struct{}

// CostOutput reports the node's governance state.
type CostOutput struct {
	Cost float64 `json:"cost"`
	Zone string  `json:"zone"`
}

// ExportInput defines parameters for the obibuf_export tool.
type ExportInput struct {
	Format string `json:"format" jsonschema:"export format (yaml/json/header)"`
}

// ExportOutput contains the rendered specification.
type ExportOutput struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}

// --- Handlers ---

func (s *Server) handleNormalize(_ context.Context, _ *mcpsdk.CallToolRequest, input NormalizeInput) (*mcpsdk.CallToolResult, NormalizeOutput, error) {
	res, err := s.canon.Normalize(input.Input)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, NormalizeOutput{}, err
	}
	return nil, NormalizeOutput{
		Canonical: res.Canonical,
		Length:    res.Length,
		Truncated: res.Truncated,
	}, nil
}

func (s *Server) handleValidate(_ context.Context, _ *mcpsdk.CallToolRequest, input ValidateInput) (*mcpsdk.CallToolResult, ValidateOutput, error) {
	gate, err := s.node.Gate(input.Message)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ValidateOutput{}, err
	}

	s.recordAudit(input.Message, gate)

	out := ValidateOutput{
		Decision:  string(gate.Decision),
		Reason:    gate.Reason,
		Zone:      gate.Zone.String(),
		Cost:      gate.Cost,
		Matches:   gate.Report.Matches,
		Unmatched: gate.Report.UnmatchedBytes,
		Truncated: gate.Report.Truncated,
	}
	for _, n := range gate.Nodes {
		out.Nodes = append(out.Nodes, ValidateNode{
			Type:    string(n.Type),
			Content: n.Content,
			Length:  n.Length,
		})
	}

	result := &mcpsdk.CallToolResult{}
	if gate.Decision == topology.Deny {
		result.IsError = true
	}
	return result, out, nil
}

func (s *Server) handleEquivalent(_ context.Context, _ *mcpsdk.CallToolRequest, input EquivalentInput) (*mcpsdk.CallToolResult, EquivalentOutput, error) {
	ra, errA := s.canon.Normalize(input.A)
	rb, errB := s.canon.Normalize(input.B)
	if errA != nil || errB != nil {
		err := errA
		if err == nil {
			err = errB
		}
		return &mcpsdk.CallToolResult{IsError: true}, EquivalentOutput{}, err
	}
	return nil, EquivalentOutput{
		Equivalent: s.canon.Equivalent(input.A, input.B),
		CanonicalA: ra.Canonical,
		CanonicalB: rb.Canonical,
	}, nil
}

func (s *Server) handleCost(_ context.Context, _ *mcpsdk.CallToolRequest, _ CostInput) (*mcpsdk.CallToolResult, CostOutput, error) {
	return nil, CostOutput{
		Cost: s.node.Cost(),
		Zone: s.node.Zone().String(),
	}, nil
}

func (s *Server) handleExport(_ context.Context, _ *mcpsdk.CallToolRequest, input ExportInput) (*mcpsdk.CallToolResult, ExportOutput, error) {
	format := input.Format
	if format == "" {
		format = protocol.FormatYAML
	}
	data, err := s.node.ExportSpecification(format)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ExportOutput{}, err
	}
	return nil, ExportOutput{Format: format, Data: string(data)}, nil
}

// recordAudit appends a chain entry for one validation call. Best effort:
// a failed write must not block the tool response, the caller already has
// the decision.
func (s *Server) recordAudit(message string, gate topology.GateResult) {
	if s.auditLog == nil {
		return
	}
	_ = s.auditLog.Record(audit.Entry{
		TraceID:     uuid.NewString(),
		Source:      "mcp",
		InputDigest: audit.DigestInput(message),
		Canonical:   audit.DigestInput(gate.Canonical),
		Decision:    string(gate.Decision),
		Reason:      gate.Reason,
		Zone:        gate.Zone.String(),
		Cost:        gate.Cost,
		Matches:     gate.Report.Matches,
		Unmatched:   gate.Report.UnmatchedBytes,
		Truncated:   gate.Report.Truncated,
		ConfigHash:  s.configHash,
	})
}
