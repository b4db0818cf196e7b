package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/obinexus/obibuf/internal/buffer"
	"github.com/obinexus/obibuf/internal/topology"
)

// Processor drives inbox message files through the zero-trust gate.
type Processor struct {
	dirs   DirConfig
	sender *buffer.Sender
	log    zerolog.Logger
}

// NewProcessor creates a processor that gates messages through sender.
func NewProcessor(dirs DirConfig, sender *buffer.Sender, log zerolog.Logger) *Processor {
	return &Processor{dirs: dirs, sender: sender, log: log}
}

// GateRecord is the JSON result written to the outbox for every processed
// message, allowed or denied.
type GateRecord struct {
	ID          string  `json:"id"`
	File        string  `json:"file"`
	Destination string  `json:"destination"`
	Decision    string  `json:"decision"`
	Reason      string  `json:"reason,omitempty"`
	Zone        string  `json:"zone"`
	Cost        float64 `json:"cost"`
	Matches     int     `json:"matches"`
	Unmatched   int     `json:"unmatched_bytes"`
	Truncated   bool    `json:"truncated,omitempty"`
	Canonical   string  `json:"canonical_file,omitempty"`
	CompletedAt string  `json:"completed_at"`
}

// Process handles a single message file through its full lifecycle:
// read → move to processing → gate → write result to outbox. Denied or
// malformed files end up in the failed directory.
func (p *Processor) Process(_ context.Context, msgPath string) error {
	// Structural symlink defense: reject symlinks before reading. A symlink
	// in the inbox could otherwise feed arbitrary filesystem content through
	// the gate.
	fi, err := os.Lstat(msgPath)
	if err != nil {
		return fmt.Errorf("stat message file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("rejected symlink: %s", filepath.Base(msgPath))
	}

	data, err := os.ReadFile(msgPath)
	if err != nil {
		return fmt.Errorf("read message file: %w", err)
	}

	base := filepath.Base(msgPath)
	msg := buffer.NewMessage(string(data), destinationFor(base))

	// Move to processing state. moveFile handles systemd bind mounts (EXDEV).
	processingPath := filepath.Join(p.dirs.ProcessingDir(), base)
	if err := moveFile(msgPath, processingPath); err != nil {
		return fmt.Errorf("move to processing: %w", err)
	}

	res, sendErr := p.sender.Send(msg)
	if sendErr != nil && !errors.Is(sendErr, buffer.ErrDenied) {
		// Infrastructure failure: leave the file in failed for retry.
		_ = moveFile(processingPath, filepath.Join(p.dirs.FailedDir(), base))
		return fmt.Errorf("send: %w", sendErr)
	}

	rec := GateRecord{
		ID:          msg.ID.String(),
		File:        base,
		Destination: msg.Destination,
		Decision:    string(res.Gate.Decision),
		Reason:      res.Gate.Reason,
		Zone:        res.Gate.Zone.String(),
		Cost:        res.Gate.Cost,
		Matches:     res.Gate.Report.Matches,
		Unmatched:   res.Gate.Report.UnmatchedBytes,
		Truncated:   res.Gate.Report.Truncated,
		Canonical:   res.Outbox,
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.writeRecord(rec); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	if res.Gate.Decision == topology.Allow {
		p.log.Info().Str("file", base).Str("zone", rec.Zone).
			Float64("cost", rec.Cost).Msg("message allowed")
		_ = os.Remove(processingPath)
		return nil
	}

	p.log.Warn().Str("file", base).Str("reason", rec.Reason).Msg("message denied")
	if err := moveFile(processingPath, filepath.Join(p.dirs.FailedDir(), base)); err != nil {
		return fmt.Errorf("move to failed: %w", err)
	}
	return nil
}

// writeRecord writes the gate record atomically: tmp file then rename, so
// outbox consumers never see a partial JSON document.
func (p *Processor) writeRecord(rec GateRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	final := filepath.Join(p.dirs.Outbox, rec.ID+".result.json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// destinationFor derives the destination from the file name: everything
// before the first dot, so "node-b.7f3a.msg" targets node-b.
func destinationFor(base string) string {
	name := strings.TrimSuffix(base, ".msg")
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}
