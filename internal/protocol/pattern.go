package protocol

import "regexp"

// PatternType identifies the semantic category of a registered pattern.
// The set is closed: it determines both IR node mapping and acceptance policy.
type PatternType string

const (
	PatternProtocolHeader     PatternType = "protocol_header"
	PatternSecurityToken      PatternType = "security_token"
	PatternDataPayload        PatternType = "data_payload"
	PatternSchemaReference    PatternType = "schema_reference"
	PatternAuditMarker        PatternType = "audit_marker"
	PatternTransitionBoundary PatternType = "transition_boundary"
	PatternCanonicalDelimiter PatternType = "canonical_delimiter"
	PatternErrorRecovery      PatternType = "error_recovery"
)

// Predefined cross-layer pattern vocabulary. These literals are shared with
// non-Go deployments and their matching semantics must not change.
const (
	RuleHeaderMarker  = `^OBI-PROTOCOL-[0-9]+\.[0-9]+:`
	RuleSecurityToken = `SEC:[A-F0-9]{64}`
	RulePayloadDelim  = `PAYLOAD\|[0-9]+\|`
	RuleSchemaRef     = `SCHEMA:[A-Za-z0-9_-]+\.[0-9]+`
	RuleAuditStamp    = `AUDIT:[0-9]{13}`
)

// Validator is an optional per-pattern check invoked after a structural
// match succeeds. Returning false vetoes the match and the scanner falls
// through to later-registered patterns.
type Validator func(content string) bool

// State is one registered pattern. States are created at registration time,
// never mutated afterwards, and owned by their engine.
type State struct {
	ID              uint32
	Type            PatternType
	Rule            string
	Accepting       bool
	ZeroTrust       bool
	TransitionCount uint32

	re        *regexp.Regexp
	validator Validator
}

// Transition is a declared state transition. The current scanner does not
// consult transitions; they exist for an eventual compiled-automaton mode
// and their count feeds the governance cost formula.
type Transition struct {
	From     uint32
	To       uint32
	Symbol   byte
	Weight   float64
	Validate Validator
}

// accepting reports whether a pattern type produces accepting states.
// Only payload and audit-marker patterns accept.
func accepting(pt PatternType) bool {
	return pt == PatternDataPayload || pt == PatternAuditMarker
}
