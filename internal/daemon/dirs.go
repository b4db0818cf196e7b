package daemon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// dirPerm is the permission for daemon-managed directories.
const dirPerm = 0750

// DirConfig holds the daemon directory layout.
type DirConfig struct {
	Inbox  string // incoming message files
	Outbox string // canonical output and gate results
	State  string // state/{processing,failed}
}

// DefaultDirConfig returns the default layout under /var/lib/obibuf.
func DefaultDirConfig() DirConfig {
	return DirConfig{
		Inbox:  "/var/lib/obibuf/inbox",
		Outbox: "/var/lib/obibuf/outbox",
		State:  "/var/lib/obibuf/state",
	}
}

// ProcessingDir returns the path to the processing subdirectory.
func (d DirConfig) ProcessingDir() string {
	return filepath.Join(d.State, "processing")
}

// FailedDir returns the path to the failed subdirectory. Denied and
// malformed messages land here for operator review.
func (d DirConfig) FailedDir() string {
	return filepath.Join(d.State, "failed")
}

// EnsureDirs creates all required directories. Idempotent.
func EnsureDirs(cfg DirConfig) error {
	dirs := []string{
		cfg.Inbox,
		cfg.Outbox,
		cfg.ProcessingDir(),
		cfg.FailedDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// moveFile moves src to dst using os.Rename. If rename fails with EXDEV
// (cross-device link, common with systemd ReadWritePaths bind mounts),
// it falls back to copy + remove.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) || errno != syscall.EXDEV {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile copies src to dst preserving permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
