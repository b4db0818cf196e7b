package audit

// Entry is one line in the hash-chained JSONL audit log. Every gated or
// validated message produces one entry. All fields are scalars or structs
// (no map[string]any) so json.Marshal field order is deterministic and the
// chain hash is reproducible.
type Entry struct {
	Timestamp   string  `json:"ts"`
	TraceID     string  `json:"trace_id"`
	Source      string  `json:"source"`
	InputDigest string  `json:"input_digest"`
	Canonical   string  `json:"canonical_digest"`
	Decision    string  `json:"decision"`
	Reason      string  `json:"reason,omitempty"`
	Zone        string  `json:"zone"`
	Cost        float64 `json:"cost"`
	Matches     int     `json:"matches"`
	Unmatched   int     `json:"unmatched_bytes"`
	Truncated   bool    `json:"truncated,omitempty"`
	ConfigHash  string  `json:"config_hash,omitempty"`
	PrevHash    string  `json:"prev_hash"`
}
