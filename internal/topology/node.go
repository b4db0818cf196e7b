package topology

import (
	"fmt"
	"sync"

	"github.com/obinexus/obibuf/internal/protocol"
)

// Type is a network topology layout.
type Type string

const (
	TypeP2P    Type = "p2p"
	TypeBus    Type = "bus"
	TypeRing   Type = "ring"
	TypeStar   Type = "star"
	TypeMesh   Type = "mesh"
	TypeHybrid Type = "hybrid"
)

// ParseType validates a topology type name.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeP2P, TypeBus, TypeRing, TypeStar, TypeMesh, TypeHybrid:
		return Type(s), nil
	default:
		return "", fmt.Errorf("topology: unknown type %q", s)
	}
}

// Decision is the gating outcome for one message.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// GateResult describes one gated message: the emitted IR, the scan report,
// the node's zone after the scan, and the transmission decision. On deny,
// Err carries the protocol sentinel behind the decision so callers can
// branch with errors.Is.
type GateResult struct {
	Nodes     []protocol.IRNode
	Report    protocol.ScanReport
	Canonical string
	Cost      float64
	Zone      Zone
	Decision  Decision
	Reason    string
	Err       error
}

// Node binds a protocol engine to a topology position. The engine itself is
// single-threaded; the node serializes access so callers don't have to.
type Node struct {
	ID string

	mu     sync.Mutex
	engine *protocol.Engine
	zone   Zone
}

// NewNode wraps an engine. The node takes over serialization of the engine;
// callers must not use the engine directly afterwards.
func NewNode(id string, engine *protocol.Engine) *Node {
	return &Node{ID: id, engine: engine, zone: ZoneFor(engine.Cost())}
}

// Gate processes a message through the node's engine and decides whether it
// may be transmitted. Denials happen when zero trust is enforced and no
// accepting pattern matched, when the canonical form was truncated, or when
// the node has escalated into the governance zone.
func (n *Node) Gate(input string) (GateResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	nodes, report, err := n.engine.Process(input)
	if err != nil {
		return GateResult{}, err
	}

	cost := n.engine.Cost()
	if z := ZoneFor(cost); z > n.zone {
		n.zone = z
	}

	res := GateResult{
		Nodes:     nodes,
		Report:    report,
		Canonical: n.engine.Context().Holding(),
		Cost:      cost,
		Zone:      n.zone,
		Decision:  Allow,
	}

	switch {
	case report.Truncated:
		res.Decision = Deny
		res.Reason = "canonical form truncated"
		res.Err = protocol.ErrValidationFailed
	case n.engine.ZeroTrust() && !report.Accepted:
		res.Decision = Deny
		res.Reason = "no accepting pattern matched under zero trust"
		res.Err = protocol.ErrZeroTrustViolation
	case n.zone == ZoneGovernance && !report.Accepted:
		res.Decision = Deny
		res.Reason = fmt.Sprintf("governance zone requires accepted traffic (cost %.3f)", cost)
		res.Err = protocol.ErrValidationFailed
	}
	return res, nil
}

// Zone returns the node's current governance zone.
func (n *Node) Zone() Zone {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.zone
}

// Cost returns the node engine's governance cost.
func (n *Node) Cost() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Cost()
}

// Reset clears the node's engine and zone back to their initial states.
func (n *Node) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.Reset()
	n.zone = ZoneFor(n.engine.Cost())
}

// Registrar exposes pattern registration through the node's lock.
func (n *Node) RegisterPattern(pt protocol.PatternType, rule string, opts ...protocol.PatternOption) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.RegisterPattern(pt, rule, opts...)
}

// ExportSpecification exports the node engine's specification.
func (n *Node) ExportSpecification(format string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ExportSpecification(format)
}
