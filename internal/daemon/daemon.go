// Package daemon runs the inbox-to-outbox message gateway: it watches a
// directory for message files, gates each through the zero-trust protocol
// engine, and writes canonical output plus a JSON gate record.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/obinexus/obibuf/internal/buffer"
)

// resultTTL is how long outbox result files are retained before the sweeper
// removes them.
const resultTTL = 72 * time.Hour

// sweepInterval is how often the retention sweeper runs.
const sweepInterval = time.Hour

// Config holds full daemon configuration.
type Config struct {
	Dirs         DirConfig
	PollMode     bool
	PollInterval time.Duration
}

// Daemon watches the inbox directory and gates message files.
type Daemon struct {
	cfg       Config
	processor *Processor
	log       zerolog.Logger
}

// New creates a daemon with validated configuration.
func New(cfg Config, sender *buffer.Sender, log zerolog.Logger) (*Daemon, error) {
	if cfg.Dirs.Inbox == "" || cfg.Dirs.Outbox == "" || cfg.Dirs.State == "" {
		return nil, fmt.Errorf("inbox, outbox, and state directories are required")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = pollDefault
	}
	return &Daemon{
		cfg:       cfg,
		processor: NewProcessor(cfg.Dirs, sender, log),
		log:       log,
	}, nil
}

// Run starts the daemon. Blocks until ctx is cancelled. On startup it
// recovers orphaned processing files and drains any existing inbox files.
func (d *Daemon) Run(ctx context.Context) error {
	if err := EnsureDirs(d.cfg.Dirs); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	// PID file lock prevents duplicate instances fighting over the inbox.
	pidPath := filepath.Join(d.cfg.Dirs.State, "daemon.pid")
	if err := acquirePIDLock(pidPath); err != nil {
		return fmt.Errorf("acquire PID lock: %w", err)
	}
	defer func() { _ = os.Remove(pidPath) }()

	if err := d.recoverOrphans(); err != nil {
		return fmt.Errorf("recover orphans: %w", err)
	}

	handle := func(path string) {
		if err := d.processor.Process(ctx, path); err != nil {
			d.log.Error().Str("file", filepath.Base(path)).Err(err).Msg("process failed")
		}
	}

	if err := ScanExisting(d.cfg.Dirs.Inbox, handle); err != nil {
		return fmt.Errorf("scan existing: %w", err)
	}

	go d.runRetentionSweeper(ctx)

	d.log.Info().Str("inbox", d.cfg.Dirs.Inbox).Bool("poll", d.cfg.PollMode).Msg("daemon started")

	if d.cfg.PollMode {
		return NewPollWatcher(d.cfg.Dirs.Inbox, handle, d.cfg.PollInterval).Run(ctx)
	}
	return NewInboxWatcher(d.cfg.Dirs.Inbox, handle).Run(ctx)
}

// recoverOrphans moves files left in processing by a previous crash into
// failed. They were mid-flight; re-gating them blind could double-send.
func (d *Daemon) recoverOrphans() error {
	entries, err := os.ReadDir(d.cfg.Dirs.ProcessingDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(d.cfg.Dirs.ProcessingDir(), e.Name())
		dst := filepath.Join(d.cfg.Dirs.FailedDir(), e.Name())
		if err := moveFile(src, dst); err != nil {
			return fmt.Errorf("recover %s: %w", e.Name(), err)
		}
		d.log.Warn().Str("file", e.Name()).Msg("orphaned processing file moved to failed")
	}
	return nil
}

// runRetentionSweeper periodically removes outbox files older than resultTTL.
func (d *Daemon) runRetentionSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepExpired()
		}
	}
}

// sweepExpired removes expired result and canonical files from the outbox.
func (d *Daemon) sweepExpired() {
	entries, err := os.ReadDir(d.cfg.Dirs.Outbox)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-resultTTL)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(d.cfg.Dirs.Outbox, e.Name())
		if err := os.Remove(path); err == nil {
			d.log.Debug().Str("file", e.Name()).Msg("expired result removed")
		}
	}
}

// acquirePIDLock writes the current PID, refusing if another live daemon
// holds the file. Stale PID files from dead processes are replaced.
func acquirePIDLock(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, err := strconv.Atoi(string(data))
		if err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("another daemon is running (PID %d)", pid)
				}
			}
		}
		_ = os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600)
}
