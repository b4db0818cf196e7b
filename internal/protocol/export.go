package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Export formats understood by ExportSpecification.
const (
	FormatYAML   = "yaml"
	FormatJSON   = "json"
	FormatHeader = "header"
)

// StateSpec is the serializable form of one registered state.
type StateSpec struct {
	ID        uint32      `yaml:"id" json:"id"`
	Type      PatternType `yaml:"type" json:"type"`
	Rule      string      `yaml:"rule" json:"rule"`
	Accepting bool        `yaml:"accepting" json:"accepting"`
	ZeroTrust bool        `yaml:"zero_trust" json:"zero_trust"`
}

// Specification is the cross-language serializable description of an
// engine: its mode, limits, and registered pattern states. It carries
// everything another deployment needs to reproduce the same matcher.
type Specification struct {
	Version     string      `yaml:"version" json:"version"`
	ZeroTrust   bool        `yaml:"zero_trust" json:"zero_trust"`
	MaxStates   int         `yaml:"max_states" json:"max_states"`
	MaxTrans    int         `yaml:"max_transitions" json:"max_transitions"`
	Bound       int         `yaml:"canonical_bound" json:"canonical_bound"`
	States      []StateSpec `yaml:"states" json:"states"`
	Transitions int         `yaml:"transition_count" json:"transition_count"`
}

// specVersion is bumped when the serialized layout changes.
const specVersion = "1.0"

// Specification builds the serializable description of the engine.
func (e *Engine) Specification() Specification {
	spec := Specification{
		Version:     specVersion,
		ZeroTrust:   e.zeroTrust,
		MaxStates:   e.limits.MaxStates,
		MaxTrans:    e.limits.MaxTransitions,
		Bound:       e.limits.Bound,
		Transitions: len(e.transitions),
	}
	for _, st := range e.states {
		spec.States = append(spec.States, StateSpec{
			ID:        st.ID,
			Type:      st.Type,
			Rule:      st.Rule,
			Accepting: st.Accepting,
			ZeroTrust: st.ZeroTrust,
		})
	}
	return spec
}

// ExportSpecification serializes the engine specification in the requested
// format: yaml, json, or a C-style header for non-Go consumers.
func (e *Engine) ExportSpecification(format string) ([]byte, error) {
	spec := e.Specification()

	switch format {
	case FormatYAML:
		return yaml.Marshal(spec)
	case FormatJSON:
		return json.MarshalIndent(spec, "", "  ")
	case FormatHeader:
		return renderHeader(spec), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// renderHeader emits the specification as a C header so existing
// deployments can consume an engine exported from this implementation.
func renderHeader(spec Specification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "/* OBIBUF engine specification v%s (generated) */\n", spec.Version)
	b.WriteString("#ifndef OBIBUF_ENGINE_SPEC_H\n#define OBIBUF_ENGINE_SPEC_H\n\n")
	fmt.Fprintf(&b, "#define OBI_MAX_STATES %d\n", spec.MaxStates)
	fmt.Fprintf(&b, "#define OBI_MAX_TRANSITIONS %d\n", spec.MaxTrans)
	fmt.Fprintf(&b, "#define OBI_CANONICAL_BUFFER_SIZE %d\n", spec.Bound)
	fmt.Fprintf(&b, "#define OBI_ZERO_TRUST_ENFORCED %d\n", boolInt(spec.ZeroTrust))
	fmt.Fprintf(&b, "#define OBI_STATE_COUNT %d\n", len(spec.States))
	fmt.Fprintf(&b, "#define OBI_TRANSITION_COUNT %d\n\n", spec.Transitions)
	for _, st := range spec.States {
		fmt.Fprintf(&b, "/* state %d: %s accepting=%d zero_trust=%d */\n",
			st.ID, st.Type, boolInt(st.Accepting), boolInt(st.ZeroTrust))
		fmt.Fprintf(&b, "#define OBI_STATE_%d_PATTERN %q\n", st.ID, st.Rule)
	}
	b.WriteString("\n#endif /* OBIBUF_ENGINE_SPEC_H */\n")
	return []byte(b.String())
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
