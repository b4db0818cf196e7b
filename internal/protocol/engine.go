// Package protocol implements the OBIBUF canonicalization and
// pattern-recognition engine: USCN normalization of untrusted input,
// ordered semantic pattern matching over the canonical form, IR emission,
// and governance cost accounting.
package protocol

import (
	"fmt"
	"regexp"
)

// Default table capacities. Configurable per engine via options; the
// defaults match the published cross-language limits.
const (
	DefaultMaxStates      = 256
	DefaultMaxTransitions = 1024
)

// Limits bounds an engine's tables and canonical output.
type Limits struct {
	MaxStates      int
	MaxTransitions int
	Bound          int
}

// Engine is a caller-owned pattern engine instance. It is single-threaded
// and synchronous: concurrent use of one Engine must be serialized by the
// caller.
type Engine struct {
	states      []State
	transitions []Transition
	limits      Limits
	current     uint32
	zeroTrust   bool
	costAcc     float64
	ctx         *Context
}

// Option configures an engine at construction time.
type Option func(*Engine)

// WithLimits overrides the default table capacities and canonical bound.
func WithLimits(l Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithContext supplies a canonicalization context, replacing the default.
func WithContext(ctx *Context) Option {
	return func(e *Engine) { e.ctx = ctx }
}

// New creates an engine and installs state 0 as the protocol-header start
// state. The zero-trust flag is immutable for the engine's lifetime.
func New(zeroTrust bool, opts ...Option) (*Engine, error) {
	e := &Engine{
		zeroTrust: zeroTrust,
		limits: Limits{
			MaxStates:      DefaultMaxStates,
			MaxTransitions: DefaultMaxTransitions,
			Bound:          DefaultBound,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ctx == nil {
		e.ctx = NewContext()
	}
	e.ctx.Bound = e.limits.Bound
	if e.limits.MaxStates < 1 {
		return nil, fmt.Errorf("%w: max states must be at least 1", ErrInvalidInput)
	}

	if _, err := e.RegisterPattern(PatternProtocolHeader, RuleHeaderMarker); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset restores the engine to its post-New state: tables cleared, start
// state reinstalled, cost accumulator zeroed. Safe to call repeatedly.
func (e *Engine) Reset() {
	e.states = e.states[:0]
	e.transitions = e.transitions[:0]
	e.current = 0
	e.costAcc = 0
	e.ctx.holding = e.ctx.holding[:0]

	// Reinstalling the start state cannot fail: the table is empty and the
	// rule is a known-good literal.
	_, _ = e.RegisterPattern(PatternProtocolHeader, RuleHeaderMarker)
}

// PatternOption configures a single pattern registration.
type PatternOption func(*State)

// WithValidator attaches a post-match validator to a pattern. The scanner
// invokes it after a structural match; a false return vetoes the match.
func WithValidator(v Validator) PatternOption {
	return func(s *State) { s.validator = v }
}

// RegisterPattern appends a pattern state and returns its identifier.
// Acceptance is derived from the pattern type (payload and audit markers
// accept); the zero-trust flag is stamped from the engine's mode. On any
// failure the registry is left unchanged.
func (e *Engine) RegisterPattern(pt PatternType, rule string, opts ...PatternOption) (uint32, error) {
	if rule == "" {
		return 0, ErrMissingRule
	}
	if len(e.states) >= e.limits.MaxStates {
		return 0, fmt.Errorf("%w: %d states registered", ErrTableFull, len(e.states))
	}

	re, err := regexp.Compile(rule)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingRule, err)
	}

	st := State{
		ID:        uint32(len(e.states)),
		Type:      pt,
		Rule:      rule,
		Accepting: accepting(pt),
		ZeroTrust: e.zeroTrust,
		re:        re,
	}
	for _, opt := range opts {
		opt(&st)
	}

	e.states = append(e.states, st)
	return st.ID, nil
}

// AddTransition declares a transition between two registered states. The
// scanner does not consult transitions yet; the count contributes to
// governance cost and the table backs a future compiled-automaton mode.
func (e *Engine) AddTransition(from, to uint32, symbol byte, weight float64, v Validator) error {
	if int(from) >= len(e.states) || int(to) >= len(e.states) {
		return fmt.Errorf("%w: unknown state in transition %d→%d", ErrInvalidInput, from, to)
	}
	if len(e.transitions) >= e.limits.MaxTransitions {
		return fmt.Errorf("%w: %d transitions declared", ErrTableFull, len(e.transitions))
	}
	e.transitions = append(e.transitions, Transition{
		From: from, To: to, Symbol: symbol, Weight: weight, Validate: v,
	})
	e.states[from].TransitionCount++
	return nil
}

// ScanReport summarizes one Process call. Unmatched bytes are recovered
// silently during the scan but surfaced here so integrators can treat
// partial matches as a signal.
type ScanReport struct {
	CanonicalLength int
	Matches         int
	UnmatchedBytes  int
	Truncated       bool
	Accepted        bool
}

// Process canonicalizes input and scans it left to right. At each position
// every state is tried in registration order and the first anchored match
// wins; unmatched bytes advance the scan by one. Registration order is match
// priority: integrators register more specific patterns first.
//
// The scan is quadratic in the worst case, which is acceptable for short
// protocol headers. A compiled transition table is the upgrade path, but the
// linear-scan semantics are load-bearing: downstream governance cost figures
// depend on them.
func (e *Engine) Process(input string) ([]IRNode, ScanReport, error) {
	if input == "" {
		return nil, ScanReport{}, ErrInvalidInput
	}

	res, err := e.ctx.NormalizeBound(input, e.limits.Bound)
	if err != nil {
		return nil, ScanReport{}, err
	}

	canon := res.Canonical
	report := ScanReport{CanonicalLength: res.Length, Truncated: res.Truncated}

	var nodes []IRNode
	pos := 0
	for pos < len(canon) {
		matched := false
		for i := range e.states {
			st := &e.states[i]
			loc := st.re.FindStringIndex(canon[pos:])
			if loc == nil || loc[0] != 0 || loc[1] == 0 {
				continue
			}
			content := canon[pos : pos+loc[1]]
			if st.validator != nil && !st.validator(content) {
				continue
			}

			cost := 0.1 * float64(len(content))
			nodes = append(nodes, emitNode(e.current, st.Type, content, cost))

			pos += len(content)
			e.current = st.ID
			e.costAcc += cost
			report.Matches++
			if st.Accepting {
				report.Accepted = true
			}
			matched = true
			break
		}
		if !matched {
			pos++
			report.UnmatchedBytes++
		}
	}

	return nodes, report, nil
}

// Cost returns the running governance cost: the match accumulator plus
// structural complexity penalties and the fixed zero-trust overhead.
// Monotonically non-decreasing between resets.
func (e *Engine) Cost() float64 {
	cost := e.costAcc
	cost += 0.01 * float64(len(e.states))
	cost += 0.005 * float64(len(e.transitions))
	if e.zeroTrust {
		cost += 0.05
	}
	return cost
}

// Context returns the engine's canonicalization context.
func (e *Engine) Context() *Context { return e.ctx }

// CurrentState returns the identifier of the last matched state, or the
// start state if nothing has matched.
func (e *Engine) CurrentState() uint32 { return e.current }

// ZeroTrust reports whether zero-trust enforcement was set at construction.
func (e *Engine) ZeroTrust() bool { return e.zeroTrust }

// States returns a snapshot copy of the registered states.
func (e *Engine) States() []State {
	out := make([]State, len(e.states))
	copy(out, e.states)
	return out
}

// TransitionCount returns the number of declared transitions.
func (e *Engine) TransitionCount() int { return len(e.transitions) }

// Limits returns the engine's configured capacities.
func (e *Engine) Limits() Limits { return e.limits }
