package protocol

import "strings"

// IRNodeType is the node category in the canonical intermediate
// representation.
type IRNodeType string

const (
	IRProtocolMessage  IRNodeType = "protocol_message"
	IRSecurityContext  IRNodeType = "security_context"
	IRPayloadBlock     IRNodeType = "payload_block"
	IRSchemaValidation IRNodeType = "schema_validation"
	IRAuditRecord      IRNodeType = "audit_record"
	IRErrorCondition   IRNodeType = "error_condition"
)

// IRNode is one emitted match. Content is an independent copy and outlives
// the scanned buffer; nodes are returned in scan order, which downstream
// consumers (audit reports, replay) rely on.
type IRNode struct {
	Type        IRNodeType `json:"type"`
	Content     string     `json:"content"`
	Length      int        `json:"length"`
	SourceState uint32     `json:"source_state"`
	Cost        float64    `json:"cost"`
}

// irTypeFor maps a pattern type to its IR node type. The mapping is total:
// anything not explicitly covered becomes an error condition, so emission
// can never fail.
func irTypeFor(pt PatternType) IRNodeType {
	switch pt {
	case PatternProtocolHeader:
		return IRProtocolMessage
	case PatternSecurityToken:
		return IRSecurityContext
	case PatternDataPayload:
		return IRPayloadBlock
	case PatternSchemaReference:
		return IRSchemaValidation
	case PatternAuditMarker:
		return IRAuditRecord
	default:
		return IRErrorCondition
	}
}

// emitNode builds an IR node for a match. strings.Clone detaches the content
// from the canonical buffer's backing array.
func emitNode(sourceState uint32, pt PatternType, content string, cost float64) IRNode {
	return IRNode{
		Type:        irTypeFor(pt),
		Content:     strings.Clone(content),
		Length:      len(content),
		SourceState: sourceState,
		Cost:        cost,
	}
}
