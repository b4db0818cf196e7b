package buffer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obinexus/obibuf/internal/audit"
	"github.com/obinexus/obibuf/internal/config"
	"github.com/obinexus/obibuf/internal/protocol"
	"github.com/obinexus/obibuf/internal/store"
	"github.com/obinexus/obibuf/internal/topology"
)

func newSender(t *testing.T, opts ...SenderOption) (*Sender, string) {
	t.Helper()
	dir := t.TempDir()

	engine, err := config.Default().NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	log, err := audit.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	node := topology.NewNode("test-node", engine)
	return NewSender(node, log, opts...), dir
}

func TestSendAllowedWritesCanonicalOutbox(t *testing.T) {
	dir := t.TempDir()
	outbox := filepath.Join(dir, "outbox")
	if err := os.MkdirAll(outbox, 0700); err != nil {
		t.Fatal(err)
	}

	snd, _ := newSender(t, WithOutbox(outbox))
	msg := NewMessage("OBI-PROTOCOL-1.0:PAYLOAD|3|%2fabc", "node-b")

	res, err := snd.Send(msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Gate.Decision != topology.Allow {
		t.Fatalf("decision = %s, want allow", res.Gate.Decision)
	}
	if res.Outbox == "" {
		t.Fatal("no outbox file written")
	}

	// Only the canonical form leaves the buffer: %2f must be decoded.
	data, err := os.ReadFile(res.Outbox)
	if err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	if got := string(data); got != "OBI-PROTOCOL-1.0:PAYLOAD|3|/abc" {
		t.Errorf("outbox content = %q", got)
	}
}

func TestSendDeniedStillAudited(t *testing.T) {
	snd, dir := newSender(t)

	res, err := snd.Send(NewMessage("junk with no vocabulary", "node-b"))
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("err = %v, want ErrDenied", err)
	}
	if !errors.Is(err, protocol.ErrZeroTrustViolation) {
		t.Errorf("err = %v, want wrapped ErrZeroTrustViolation", err)
	}
	if res.Gate.Decision != topology.Deny {
		t.Errorf("decision = %s, want deny", res.Gate.Decision)
	}
	if res.Outbox != "" {
		t.Errorf("denied message must not reach the outbox: %s", res.Outbox)
	}

	vr := audit.Verify(filepath.Join(dir, "audit.jsonl"))
	if !vr.Valid || vr.Lines != 1 {
		t.Errorf("audit chain after denial: %+v", vr)
	}
}

func TestSendPersistsToStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	snd, _ := newSender(t, WithStore(st))
	msg := NewMessage("OBI-PROTOCOL-1.0:PAYLOAD|7|", "node-b")
	if _, err := snd.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs, err := st.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID.String() || msgs[0].Destination != "node-b" {
		t.Fatalf("unexpected stored messages: %+v", msgs)
	}
	nodes, err := st.Nodes(msg.ID.String())
	if err != nil {
		t.Fatalf("Nodes: %v", err)
	}
	if len(nodes) != 2 || nodes[0].Content != "OBI-PROTOCOL-1.0:" || nodes[1].Content != "PAYLOAD|7|" {
		t.Errorf("unexpected stored nodes: %+v", nodes)
	}
}

func TestSendEmptyPayloadErrors(t *testing.T) {
	snd, _ := newSender(t)
	if _, err := snd.Send(NewMessage("", "node-b")); err == nil {
		t.Fatal("empty payload should fail")
	}
}

func TestReport(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	snd, _ := newSender(t, WithStore(st))
	if _, err := snd.Send(NewMessage("OBI-PROTOCOL-1.0:PAYLOAD|7|", "node-b")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	snd.Send(NewMessage("garbage", "node-b")) // denied, still stored

	out, err := Report(st, 10)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	for _, want := range []string{"messages:   2", "allowed:    1", "denied:     1"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
