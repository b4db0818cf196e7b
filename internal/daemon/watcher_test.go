package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestInboxWatcherDetectsNewFile(t *testing.T) {
	inbox := t.TempDir()

	var mu sync.Mutex
	var received []string

	w := NewInboxWatcher(inbox, func(path string) {
		mu.Lock()
		received = append(received, path)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	// Give watcher time to start.
	time.Sleep(100 * time.Millisecond)

	// Write a message file atomically.
	msgPath := filepath.Join(inbox, "node-b.001.msg")
	tmpPath := msgPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte("OBI-PROTOCOL-1.0:PAYLOAD|3|abc"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmpPath, msgPath); err != nil {
		t.Fatal(err)
	}

	// Wait for debounce + processing.
	time.Sleep(500 * time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 file, got %d", len(received))
	}
	if received[0] != msgPath {
		t.Errorf("got path %q, want %q", received[0], msgPath)
	}
}

func TestInboxWatcherIgnoresTmpFiles(t *testing.T) {
	inbox := t.TempDir()

	var mu sync.Mutex
	var received []string

	w := NewInboxWatcher(inbox, func(path string) {
		mu.Lock()
		received = append(received, path)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Write only a .tmp file (should be ignored).
	tmpPath := filepath.Join(inbox, "node-b.002.msg.tmp")
	if err := os.WriteFile(tmpPath, []byte("partial write"), 0600); err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 0 {
		t.Errorf("expected 0 files for .tmp, got %d", len(received))
	}
}

func TestInboxWatcherContextCancellation(t *testing.T) {
	inbox := t.TempDir()

	w := NewInboxWatcher(inbox, func(path string) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func TestPollWatcherDetectsNewFile(t *testing.T) {
	inbox := t.TempDir()

	var mu sync.Mutex
	var received []string

	w := NewPollWatcher(inbox, func(path string) {
		mu.Lock()
		received = append(received, path)
		mu.Unlock()
	}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	msgPath := filepath.Join(inbox, "node-b.003.msg")
	if err := os.WriteFile(msgPath, []byte("OBI-PROTOCOL-1.0:PAYLOAD|3|abc"), 0600); err != nil {
		t.Fatal(err)
	}

	// Two poll intervals, plus slack. Each file fires exactly once.
	time.Sleep(300 * time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 file, got %d", len(received))
	}
	if received[0] != msgPath {
		t.Errorf("got path %q, want %q", received[0], msgPath)
	}
}
