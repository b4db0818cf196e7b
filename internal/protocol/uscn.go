package protocol

// USCN canonicalization. All security-relevant comparison and pattern
// matching happens on canonical bytes; validating a non-canonical
// representation is the bypass class this layer exists to close.

// DefaultBound is the canonical output bound in bytes. One byte is reserved
// for a terminator to stay length-compatible with non-Go deployments, so the
// longest canonical output is DefaultBound-1 bytes.
const DefaultBound = 8192

// rewrite is one (encoded form → canonical form) substitution rule.
type rewrite struct {
	encoded   string
	canonical string
}

// encodingTable is the ordered USCN rewrite table. At each input position the
// first matching rule wins; order is load-bearing. The second %c0%af entry is
// shadowed by the first and kept only for parity with the published table —
// overlong-slash inputs canonicalize to "../", never to "/".
var encodingTable = []rewrite{
	// Path traversal
	{"%2e%2e%2f", "../"},
	{"%c0%af", "../"},
	{".%2e/", "../"},
	{"%2e%2e/", "../"},

	// Single characters
	{"%2f", "/"},
	{"%2e", "."},
	{"%20", " "},

	// Unicode overlong encodings
	{"%c0%ae", "."},
	{"%c0%af", "/"},

	// Protocol delimiters
	{"%3A", ":"},
	{"%7C", "|"},
}

// Context holds canonicalization configuration plus a bounded holding area
// refreshed from the most recent Normalize call. A Context is mutated on
// every call and is not safe for concurrent use.
type Context struct {
	CaseFold           bool
	CollapseWhitespace bool
	NormalizeEncoding  bool

	Bound int

	holding []byte
}

// NewContext returns a Context with default flags: encoding normalization
// and whitespace collapsing on, case folding off. Case folding defaults off
// because the predefined pattern vocabulary is uppercase; enabling it is an
// integrator decision that must be paired with case-insensitive rules.
func NewContext() *Context {
	return &Context{
		CollapseWhitespace: true,
		NormalizeEncoding:  true,
		Bound:              DefaultBound,
	}
}

// Result is the outcome of one normalization call. Truncated output is
// reported, not hidden: callers making security decisions must reject
// truncated results.
type Result struct {
	Canonical string
	Length    int
	Truncated bool
}

// Normalize canonicalizes input using the context's bound.
func (c *Context) Normalize(input string) (Result, error) {
	return c.NormalizeBound(input, c.Bound)
}

// NormalizeBound canonicalizes input into at most bound-1 bytes in three
// ordered phases: encoding substitution, case folding, whitespace collapse.
// The context's holding buffer is refreshed when the output fits its bound.
func (c *Context) NormalizeBound(input string, bound int) (Result, error) {
	if input == "" {
		return Result{}, ErrInvalidInput
	}
	// A bound of 1 would leave no room for output once the terminator byte
	// is reserved.
	if bound < 2 {
		return Result{}, ErrInvalidInput
	}

	max := bound - 1
	out := make([]byte, 0, min(len(input), max))
	truncated := false

	// Phase 1: encoding substitution, first table rule wins per position.
	pos := 0
scan:
	for pos < len(input) {
		if len(out) >= max {
			truncated = true
			break
		}
		if c.NormalizeEncoding {
			for _, r := range encodingTable {
				if len(input)-pos < len(r.encoded) || input[pos:pos+len(r.encoded)] != r.encoded {
					continue
				}
				if len(out)+len(r.canonical) > max {
					truncated = true
					break scan
				}
				out = append(out, r.canonical...)
				pos += len(r.encoded)
				continue scan
			}
		}
		out = append(out, input[pos])
		pos++
	}

	// Phase 2: ASCII case folding.
	if c.CaseFold {
		for i, b := range out {
			if b >= 'A' && b <= 'Z' {
				out[i] = b + 32
			}
		}
	}

	// Phase 3: whitespace collapsing.
	if c.CollapseWhitespace {
		w := 0
		inWS := false
		for _, b := range out {
			if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
				if !inWS {
					out[w] = ' '
					w++
					inWS = true
				}
			} else {
				out[w] = b
				w++
				inWS = false
			}
		}
		out = out[:w]
	}

	if len(out) < c.Bound {
		c.holding = append(c.holding[:0], out...)
	}

	return Result{Canonical: string(out), Length: len(out), Truncated: truncated}, nil
}

// Holding returns the canonical holding buffer from the most recent call
// that fit the context bound. For cross-call inspection only; every
// Normalize overwrites it.
func (c *Context) Holding() string {
	return string(c.holding)
}

// Equivalent reports whether a and b denote the same canonical value under
// this context's flags. Both sides are normalized independently; a truncated
// normalization on either side fails the check, since equivalence must never
// be decided on lossy forms.
func (c *Context) Equivalent(a, b string) bool {
	// Two empty strings are trivially the same canonical value, even though
	// Normalize rejects empty input.
	if a == "" && b == "" {
		return true
	}
	ra, err := c.Normalize(a)
	if err != nil {
		return false
	}
	rb, err := c.Normalize(b)
	if err != nil {
		return false
	}
	if ra.Truncated || rb.Truncated {
		return false
	}
	return ra.Length == rb.Length && ra.Canonical == rb.Canonical
}
