// Package buffer is the zero-trust message path: every message is gated
// through a topology node, recorded in the audit chain, and only its
// canonical form is ever written out.
package buffer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/obinexus/obibuf/internal/audit"
	"github.com/obinexus/obibuf/internal/store"
	"github.com/obinexus/obibuf/internal/topology"
)

// ErrDenied is returned when the gate refuses transmission. The send result
// still carries the decision detail.
var ErrDenied = errors.New("buffer: transmission denied")

// Message is one outbound message envelope.
type Message struct {
	ID          uuid.UUID
	Destination string
	Payload     string
	CreatedAt   time.Time
}

// NewMessage wraps a payload for a destination with a fresh identifier.
func NewMessage(payload, destination string) Message {
	return Message{
		ID:          uuid.New(),
		Destination: destination,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}

// SendResult is the outcome of one Send.
type SendResult struct {
	Message Message
	Gate    topology.GateResult
	Outbox  string // path of the written canonical file, empty on denial
}

// Sender drives messages through a gate node. The audit log is mandatory;
// store and outbox directory are optional.
type Sender struct {
	node   *topology.Node
	log    *audit.Log
	store  *store.Store
	outbox string
}

// SenderOption configures optional Sender behavior.
type SenderOption func(*Sender)

// WithStore persists every send result, allowed or denied.
func WithStore(s *store.Store) SenderOption {
	return func(snd *Sender) { snd.store = s }
}

// WithOutbox writes the canonical form of allowed messages into dir.
func WithOutbox(dir string) SenderOption {
	return func(snd *Sender) { snd.outbox = dir }
}

// NewSender builds a sender over node, recording every decision to log.
func NewSender(node *topology.Node, log *audit.Log, opts ...SenderOption) *Sender {
	snd := &Sender{node: node, log: log}
	for _, opt := range opts {
		opt(snd)
	}
	return snd
}

// Send gates the message, records the decision, and on allow writes the
// canonical form to the outbox. A denial returns ErrDenied with the result
// populated; the message is still audited and stored.
func (s *Sender) Send(msg Message) (SendResult, error) {
	gate, err := s.node.Gate(msg.Payload)
	if err != nil {
		return SendResult{Message: msg}, fmt.Errorf("buffer: gate: %w", err)
	}

	res := SendResult{Message: msg, Gate: gate}

	entry := audit.Entry{
		TraceID:     msg.ID.String(),
		Source:      "buffer:" + s.node.ID,
		InputDigest: audit.DigestInput(msg.Payload),
		Canonical:   audit.DigestInput(gate.Canonical),
		Decision:    string(gate.Decision),
		Reason:      gate.Reason,
		Zone:        gate.Zone.String(),
		Cost:        gate.Cost,
		Matches:     gate.Report.Matches,
		Unmatched:   gate.Report.UnmatchedBytes,
		Truncated:   gate.Report.Truncated,
	}
	if err := s.log.Record(entry); err != nil {
		return res, fmt.Errorf("buffer: audit: %w", err)
	}

	if s.store != nil {
		rec := store.Message{
			ID:           msg.ID.String(),
			TraceID:      msg.ID.String(),
			CreatedAt:    msg.CreatedAt,
			Source:       "buffer:" + s.node.ID,
			Destination:  msg.Destination,
			Decision:     string(gate.Decision),
			Reason:       gate.Reason,
			Zone:         gate.Zone.String(),
			Cost:         gate.Cost,
			CanonicalLen: gate.Report.CanonicalLength,
			Unmatched:    gate.Report.UnmatchedBytes,
			Truncated:    gate.Report.Truncated,
		}
		if err := s.store.SaveResult(rec, gate.Nodes); err != nil {
			return res, fmt.Errorf("buffer: store: %w", err)
		}
	}

	if gate.Decision != topology.Allow {
		return res, fmt.Errorf("%w: %w: %s", ErrDenied, gate.Err, gate.Reason)
	}

	if s.outbox != "" {
		path := filepath.Join(s.outbox, msg.ID.String()+".msg")
		if err := os.WriteFile(path, []byte(gate.Canonical), 0600); err != nil {
			return res, fmt.Errorf("buffer: write outbox: %w", err)
		}
		res.Outbox = path
	}
	return res, nil
}
