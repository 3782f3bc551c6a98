// Package inbox watches a directory for incoming patch files and feeds
// them through the apply pipeline.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// settleDelay gives writers time to finish before a patch file is read.
	settleDelay = 200 * time.Millisecond
	// claimWindow is how long a claimed path refuses duplicate events.
	claimWindow = time.Second
	// queueSize bounds the backlog between the event loop and the worker.
	queueSize = 128
)

// Handler processes one patch. taskID is derived from the file name stem.
type Handler func(taskID, patchText string)

// Watcher consumes *.patch and *.diff files dropped into a directory.
// Each file is processed once and then removed.
type Watcher struct {
	dir    string
	handle Handler

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewWatcher returns a Watcher over dir.
func NewWatcher(dir string, handle Handler) *Watcher {
	return &Watcher{dir: dir, handle: handle, seen: make(map[string]time.Time)}
}

// Run processes files already present, then blocks consuming filesystem
// events until ctx is cancelled. Patches are handled one at a time on a
// separate worker goroutine, so the settle delay never stalls the event
// channel during bursts.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	queue := make(chan string, queueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range queue {
			w.process(path)
		}
	}()
	defer func() {
		close(queue)
		wg.Wait()
	}()

	if err := w.enqueueExisting(queue); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isPatchFile(event.Name) {
				continue
			}
			select {
			case queue <- event.Name:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}

// enqueueExisting queues patches that were dropped before the watcher
// started.
func (w *Watcher) enqueueExisting(queue chan<- string) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if isPatchFile(path) {
			queue <- path
		}
	}
	return nil
}

// process reads one patch file and hands it to the handler. Write events
// arrive in bursts, so recently handled files are skipped.
func (w *Watcher) process(path string) {
	if !w.claim(path) {
		return
	}

	time.Sleep(settleDelay)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	w.handle(stem, string(data))
	_ = os.Remove(path)
}

// claim marks a path as in-flight, refusing duplicates within the claim
// window. Expired entries are pruned on every call, so a long-running
// watcher does not accumulate state.
func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for p, ts := range w.seen {
		if now.Sub(ts) >= claimWindow {
			delete(w.seen, p)
		}
	}
	if _, ok := w.seen[path]; ok {
		return false
	}
	w.seen[path] = now
	return true
}

func isPatchFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".patch", ".diff":
		return true
	}
	return false
}
