package protocol

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func newEngine(t *testing.T, zeroTrust bool, opts ...Option) *Engine {
	t.Helper()
	e, err := New(zeroTrust, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewInstallsStartState(t *testing.T) {
	e := newEngine(t, true)

	states := e.States()
	if len(states) != 1 {
		t.Fatalf("state count = %d, want 1", len(states))
	}
	st := states[0]
	if st.ID != 0 || st.Type != PatternProtocolHeader || st.Rule != RuleHeaderMarker {
		t.Errorf("unexpected start state: %+v", st)
	}
	if st.Accepting {
		t.Error("protocol header must not be accepting")
	}
	if !st.ZeroTrust {
		t.Error("zero-trust flag not stamped from engine mode")
	}
	if e.CurrentState() != 0 {
		t.Errorf("current state = %d, want 0", e.CurrentState())
	}
}

func TestRegisterPatternAcceptance(t *testing.T) {
	e := newEngine(t, false)

	cases := []struct {
		pt        PatternType
		accepting bool
	}{
		{PatternSecurityToken, false},
		{PatternDataPayload, true},
		{PatternSchemaReference, false},
		{PatternAuditMarker, true},
		{PatternTransitionBoundary, false},
		{PatternCanonicalDelimiter, false},
		{PatternErrorRecovery, false},
	}
	for _, tc := range cases {
		id, err := e.RegisterPattern(tc.pt, "x+")
		if err != nil {
			t.Fatalf("RegisterPattern(%s): %v", tc.pt, err)
		}
		st := e.States()[id]
		if st.Accepting != tc.accepting {
			t.Errorf("%s: accepting = %v, want %v", tc.pt, st.Accepting, tc.accepting)
		}
		if st.ZeroTrust {
			t.Errorf("%s: zero-trust stamped on non-enforcing engine", tc.pt)
		}
	}
}

func TestRegisterPatternFailures(t *testing.T) {
	e := newEngine(t, true)

	if _, err := e.RegisterPattern(PatternDataPayload, ""); !errors.Is(err, ErrMissingRule) {
		t.Errorf("empty rule: err = %v, want ErrMissingRule", err)
	}
	if _, err := e.RegisterPattern(PatternDataPayload, "(unclosed"); !errors.Is(err, ErrMissingRule) {
		t.Errorf("bad rule: err = %v, want ErrMissingRule", err)
	}
	if len(e.States()) != 1 {
		t.Errorf("failed registration mutated registry: %d states", len(e.States()))
	}
}

func TestRegisterPatternCapacity(t *testing.T) {
	e := newEngine(t, false, WithLimits(Limits{MaxStates: 4, MaxTransitions: 8, Bound: DefaultBound}))

	for i := 0; i < 3; i++ {
		if _, err := e.RegisterPattern(PatternDataPayload, fmt.Sprintf("p%d", i)); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := e.RegisterPattern(PatternDataPayload, "overflow"); !errors.Is(err, ErrTableFull) {
		t.Errorf("at capacity: err = %v, want ErrTableFull", err)
	}
	if len(e.States()) != 4 {
		t.Errorf("overflow mutated registry: %d states", len(e.States()))
	}
}

func TestProcessHeaderMarker(t *testing.T) {
	e := newEngine(t, true)

	nodes, report, err := e.Process("OBI-PROTOCOL-1.0:payload")
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Fatalf("node count = %d, want 1", len(nodes))
	}
	n := nodes[0]
	if n.Type != IRProtocolMessage {
		t.Errorf("node type = %s, want %s", n.Type, IRProtocolMessage)
	}
	if n.Content != "OBI-PROTOCOL-1.0:" {
		t.Errorf("content = %q, want %q", n.Content, "OBI-PROTOCOL-1.0:")
	}
	if n.Length != 17 {
		t.Errorf("length = %d, want 17", n.Length)
	}
	if report.UnmatchedBytes != len("payload") {
		t.Errorf("unmatched = %d, want %d", report.UnmatchedBytes, len("payload"))
	}
	if e.CurrentState() != 0 {
		t.Errorf("current state = %d, want 0", e.CurrentState())
	}
}

func TestProcessNonConformingToken(t *testing.T) {
	e := newEngine(t, true)
	if _, err := e.RegisterPattern(PatternSecurityToken, RuleSecurityToken); err != nil {
		t.Fatal(err)
	}

	// Truncated token: 8 hex chars instead of 64. Nothing matches; every
	// byte is consumed through the recovery path.
	input := "SEC:AABBCCDD"
	nodes, report, err := e.Process(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Fatalf("node count = %d, want 0", len(nodes))
	}
	if report.UnmatchedBytes != len(input) {
		t.Errorf("unmatched = %d, want %d", report.UnmatchedBytes, len(input))
	}
	if report.Accepted {
		t.Error("nothing accepting matched")
	}
}

func TestProcessFullVocabulary(t *testing.T) {
	e := newEngine(t, true)
	mustRegister(t, e, PatternSecurityToken, RuleSecurityToken)
	mustRegister(t, e, PatternDataPayload, RulePayloadDelim)
	mustRegister(t, e, PatternSchemaReference, RuleSchemaRef)
	mustRegister(t, e, PatternAuditMarker, RuleAuditStamp)

	token := "SEC:" + strings.Repeat("A0", 32)
	input := "OBI-PROTOCOL-2.1:" + token + "PAYLOAD|42|SCHEMA:msg_v1.3AUDIT:1736954400000"

	nodes, report, err := e.Process(input)
	if err != nil {
		t.Fatal(err)
	}
	wantTypes := []IRNodeType{
		IRProtocolMessage, IRSecurityContext, IRPayloadBlock, IRSchemaValidation, IRAuditRecord,
	}
	if len(nodes) != len(wantTypes) {
		t.Fatalf("node count = %d, want %d: %+v", len(nodes), len(wantTypes), nodes)
	}
	for i, want := range wantTypes {
		if nodes[i].Type != want {
			t.Errorf("node %d type = %s, want %s", i, nodes[i].Type, want)
		}
	}
	if report.UnmatchedBytes != 0 {
		t.Errorf("unmatched = %d, want 0", report.UnmatchedBytes)
	}
	if !report.Accepted {
		t.Error("payload and audit marker matched; scan must be accepted")
	}
}

func TestProcessScanTotality(t *testing.T) {
	e := newEngine(t, false)
	mustRegister(t, e, PatternDataPayload, RulePayloadDelim)

	inputs := []string{
		"garbage with no structure at all",
		"PAYLOAD|1|PAYLOAD|2|trailing",
		"%2e%2e%2fPAYLOAD|7|%c0%af",
		strings.Repeat("x", 300),
	}
	for _, in := range inputs {
		nodes, report, err := e.Process(in)
		if err != nil {
			t.Fatalf("Process(%q): %v", in, err)
		}
		// Concatenated node contents must be a subsequence of the canonical
		// form, and matched plus unmatched bytes must cover the whole scan.
		canon, _ := e.Context().Normalize(in)
		var matched int
		for _, n := range nodes {
			if !strings.Contains(canon.Canonical, n.Content) {
				t.Errorf("content %q not in canonical %q", n.Content, canon.Canonical)
			}
			matched += n.Length
		}
		if matched+report.UnmatchedBytes != report.CanonicalLength {
			t.Errorf("%q: matched %d + unmatched %d != canonical length %d",
				in, matched, report.UnmatchedBytes, report.CanonicalLength)
		}
	}
}

func TestProcessRegistrationOrderPriority(t *testing.T) {
	e := newEngine(t, false)
	// Both rules match at the same position; the earlier registration wins
	// even though the later one would match more bytes.
	mustRegister(t, e, PatternCanonicalDelimiter, "ab")
	mustRegister(t, e, PatternDataPayload, "abc")

	nodes, _, err := e.Process("abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Content != "ab" {
		t.Fatalf("nodes = %+v, want single %q match", nodes, "ab")
	}
	if nodes[0].Type != IRErrorCondition {
		t.Errorf("canonical delimiter maps to %s, want %s", nodes[0].Type, IRErrorCondition)
	}
}

func TestProcessValidatorVeto(t *testing.T) {
	e := newEngine(t, false)
	mustRegister(t, e, PatternSecurityToken, "tok-[0-9]+", WithValidator(func(content string) bool {
		return strings.HasSuffix(content, "7")
	}))
	mustRegister(t, e, PatternDataPayload, "tok-[0-9]+")

	nodes, _, err := e.Process("tok-42")
	if err != nil {
		t.Fatal(err)
	}
	// Validator vetoes the first state; the scan falls through to the
	// identically-ruled payload state.
	if len(nodes) != 1 || nodes[0].Type != IRPayloadBlock {
		t.Fatalf("nodes = %+v, want one payload block", nodes)
	}

	nodes, _, err = e.Process("tok-7")
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Type != IRSecurityContext {
		t.Fatalf("nodes = %+v, want one security context", nodes)
	}
}

func TestProcessEmptyInput(t *testing.T) {
	e := newEngine(t, true)
	if _, _, err := e.Process(""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCostMonotonic(t *testing.T) {
	e := newEngine(t, true)
	mustRegister(t, e, PatternDataPayload, RulePayloadDelim)

	prev := e.Cost()
	inputs := []string{"PAYLOAD|1|", "no match here", "OBI-PROTOCOL-1.0:PAYLOAD|99|"}
	for _, in := range inputs {
		if _, _, err := e.Process(in); err != nil {
			t.Fatal(err)
		}
		c := e.Cost()
		if c < prev {
			t.Errorf("cost decreased after Process(%q): %f < %f", in, c, prev)
		}
		prev = c
	}
}

func TestCostFormula(t *testing.T) {
	e := newEngine(t, true)

	// Fresh zero-trust engine: one state, no transitions, no matches.
	want := 0.01 + 0.05
	if got := e.Cost(); !closeTo(got, want) {
		t.Errorf("initial cost = %f, want %f", got, want)
	}

	id, err := e.RegisterPattern(PatternDataPayload, RulePayloadDelim)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.AddTransition(0, id, ':', 1.0, nil); err != nil {
		t.Fatal(err)
	}

	// Two states, one transition, plus a 10-byte match at 0.1/byte.
	if _, _, err := e.Process("PAYLOAD|3|"); err != nil {
		t.Fatal(err)
	}
	want = 1.0 + 0.02 + 0.005 + 0.05
	if got := e.Cost(); !closeTo(got, want) {
		t.Errorf("cost = %f, want %f", got, want)
	}
}

func TestAddTransitionBounds(t *testing.T) {
	e := newEngine(t, false, WithLimits(Limits{MaxStates: 8, MaxTransitions: 2, Bound: DefaultBound}))
	id, err := e.RegisterPattern(PatternDataPayload, "x")
	if err != nil {
		t.Fatal(err)
	}

	if err := e.AddTransition(0, 99, 'a', 0, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown state: err = %v, want ErrInvalidInput", err)
	}
	if err := e.AddTransition(0, id, 'a', 0, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTransition(id, 0, 'b', 0, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTransition(0, id, 'c', 0, nil); !errors.Is(err, ErrTableFull) {
		t.Errorf("at capacity: err = %v, want ErrTableFull", err)
	}
	if e.States()[0].TransitionCount != 1 {
		t.Errorf("state 0 transition count = %d, want 1", e.States()[0].TransitionCount)
	}
}

func TestReset(t *testing.T) {
	e := newEngine(t, true)
	mustRegister(t, e, PatternDataPayload, RulePayloadDelim)
	if _, _, err := e.Process("PAYLOAD|5|"); err != nil {
		t.Fatal(err)
	}
	if e.Cost() <= 0.06 {
		t.Fatal("expected accumulated cost before reset")
	}

	e.Reset()
	e.Reset() // second reset has no additional effect

	if len(e.States()) != 1 {
		t.Errorf("state count after reset = %d, want 1", len(e.States()))
	}
	if got, want := e.Cost(), 0.01+0.05; !closeTo(got, want) {
		t.Errorf("cost after reset = %f, want %f", got, want)
	}
	if e.CurrentState() != 0 {
		t.Errorf("current state after reset = %d, want 0", e.CurrentState())
	}
}

func TestIRNodeContentIndependent(t *testing.T) {
	e := newEngine(t, false)
	nodes, _, err := e.Process("OBI-PROTOCOL-1.0:x")
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Fatal("expected one node")
	}
	// Later calls overwrite context state; earlier node content must not move.
	before := nodes[0].Content
	if _, _, err := e.Process("OBI-PROTOCOL-9.9:y"); err != nil {
		t.Fatal(err)
	}
	if nodes[0].Content != before {
		t.Error("IR node content changed after subsequent Process call")
	}
}

func mustRegister(t *testing.T, e *Engine, pt PatternType, rule string, opts ...PatternOption) uint32 {
	t.Helper()
	id, err := e.RegisterPattern(pt, rule, opts...)
	if err != nil {
		t.Fatalf("RegisterPattern(%s, %q): %v", pt, rule, err)
	}
	return id
}

func closeTo(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
