package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault is the default debounce interval for file events.
const debounceDefault = 200 * time.Millisecond

// maxConcurrentJobs limits how many inbox files are processed simultaneously.
// A burst of message files must not spawn a goroutine each.
const maxConcurrentJobs = 5

// maxQueueSize is the buffer size for the work queue channel. Larger than
// maxConcurrentJobs so a debounce flush never blocks on the workers.
const maxQueueSize = 200

// pollDefault is the default polling interval when fsnotify is unavailable.
const pollDefault = 5 * time.Second

// InboxWatcher watches a directory for new .msg files using fsnotify.
type InboxWatcher struct {
	inbox    string
	handler  func(path string)
	debounce time.Duration
}

// NewInboxWatcher creates a watcher for the inbox directory.
func NewInboxWatcher(inbox string, handler func(path string)) *InboxWatcher {
	return &InboxWatcher{
		inbox:    inbox,
		handler:  handler,
		debounce: debounceDefault,
	}
}

// Run watches the inbox for new .msg files. Blocks until ctx is cancelled.
func (w *InboxWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.inbox); err != nil {
		return err
	}

	// ready collects file paths that passed debounce. A single timer resets
	// on each event; when it fires, all accumulated paths flush to the work
	// queue. No per-file goroutines are created.
	var mu sync.Mutex
	ready := make(map[string]bool)

	queue := make(chan string, maxQueueSize)

	// Fixed worker pool — the only goroutines besides the main loop.
	var wg sync.WaitGroup
	for i := 0; i < maxConcurrentJobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				func() {
					defer func() {
						if r := recover(); r != nil {
							_ = r
						}
					}()
					w.handler(path)
				}()
			}
		}()
	}

	// flush moves all ready paths into the work queue.
	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		mu.Unlock()

		for _, p := range batch {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}

	// Single debounce timer, initialized as stopped; first event starts it.
	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()

	defer func() {
		debounceTimer.Stop()
		flush()
		close(queue)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isMessageFile(event.Name) {
				continue
			}

			mu.Lock()
			ready[event.Name] = true
			mu.Unlock()

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_ = err
		}
	}
}

// PollWatcher watches a directory for new .msg files using polling.
// Used as a fallback when fsnotify is unavailable (e.g., NFS).
type PollWatcher struct {
	inbox    string
	handler  func(path string)
	interval time.Duration
	seen     map[string]bool
}

// NewPollWatcher creates a polling-based watcher.
func NewPollWatcher(inbox string, handler func(path string), interval time.Duration) *PollWatcher {
	if interval == 0 {
		interval = pollDefault
	}
	return &PollWatcher{
		inbox:    inbox,
		handler:  handler,
		interval: interval,
		seen:     make(map[string]bool),
	}
}

// Run polls the inbox directory. Blocks until ctx is cancelled.
func (w *PollWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan()
		}
	}
}

// scan checks for new .msg files in the inbox.
func (w *PollWatcher) scan() {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.inbox, e.Name())
		if !isMessageFile(path) || w.seen[path] {
			continue
		}
		w.seen[path] = true
		w.handler(path)
	}
}

// ScanExisting runs the handler over message files already in the inbox.
// Used at startup to drain files that arrived while the daemon was down.
func ScanExisting(inbox string, handler func(path string)) error {
	entries, err := os.ReadDir(inbox)
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
		path := filepath.Join(inbox, e.Name())
		if isMessageFile(path) {
			handler(path)
		}
	}
	return nil
}

// isMessageFile returns true for .msg files, skipping .tmp partial writes.
func isMessageFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".msg") && !strings.HasSuffix(name, ".tmp")
}
