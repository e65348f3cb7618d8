// Package watch drives the store from raw filesystem events. One goroutine
// owns the receive end of a non-recursive fsnotify watch on the base
// directory, decides the store mutation for each event, and publishes the
// reload signal. Nothing else mutates the store after the initial scan.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mdserve/mdserve/internal/notify"
	"github.com/mdserve/mdserve/internal/store"
)

// defaultRetryDelay is how long to wait before the single re-read of a file
// whose first read raced an in-progress write.
const defaultRetryDelay = 50 * time.Millisecond

// Reconciler consumes raw filesystem events and keeps the store correct
// under the save patterns real editors produce (rename-swap,
// delete-then-create, truncate-then-write).
type Reconciler struct {
	store      *store.Store
	notifier   *notify.Notifier
	watcher    *fsnotify.Watcher
	retryDelay time.Duration
}

// New registers a non-recursive watch on the store's base directory. A
// registration failure here is the only fatal watch error; everything after
// startup is contained per event.
func New(st *store.Store, n *notify.Notifier) (*Reconciler, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(st.BaseDir()); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", st.BaseDir(), err)
	}
	return &Reconciler{
		store:      st,
		notifier:   n,
		watcher:    w,
		retryDelay: defaultRetryDelay,
	}, nil
}

// Close releases the underlying watch registration. Run closes it on return;
// Close is for callers that never start Run.
func (r *Reconciler) Close() error {
	return r.watcher.Close()
}

// Run receives events until ctx is cancelled or the watcher closes. A bad
// event is logged and dropped; the loop itself never terminates because of
// one.
func (r *Reconciler) Run(ctx context.Context) {
	defer r.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.Apply(ev)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Watch] Watcher error: %v", err)
		}
	}
}

// Apply classifies one raw event and performs the corresponding store
// mutation. Exported so tests can drive the reconciler with synthetic
// events.
func (r *Reconciler) Apply(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	// The watch is registered on the base directory only, but synthetic
	// or coalesced events may still reference other locations. Only
	// immediate children are eligible; nested paths would produce
	// logical names with separators.
	if filepath.Dir(path) != r.store.BaseDir() {
		return
	}
	name := filepath.Base(path)

	switch {
	case store.IsMarkdown(name):
		r.applyMarkdown(ev, name, path)
	case store.IsImage(name):
		r.applyImage(ev, name)
	}
}

func (r *Reconciler) applyMarkdown(ev fsnotify.Event, name, path string) {
	// Deletions and rename-aways are never propagated to the store.
	// Editors commonly save via rename-to-backup then create-new; eagerly
	// removing would expose a transient broken page. The entry goes stale
	// for a moment and the following Create/Write corrects it.
	if ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename {
		log.Printf("[Watch] Keeping %s despite %v (stale-but-present policy)", name, ev.Op)
		return
	}

	// In single-file mode everything but the fixed entry is directory
	// noise.
	if r.store.Mode() == store.SingleFile && name != r.store.Entry() {
		return
	}

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return
	}

	data, err := r.readWithRetry(path)
	if err != nil {
		// The write that triggered this event has not settled; the
		// event for its completion will correct the entry.
		log.Printf("[Watch] Skipping %s: %v", name, err)
		return
	}

	if err := r.store.Upsert(name, path, data); err != nil {
		log.Printf("[Watch] Rejected %s: %v", name, err)
		return
	}
	// Publish unconditionally after the upsert commits: a cheap
	// idempotent reload beats a missed update.
	r.notifier.Publish()
}

func (r *Reconciler) applyImage(ev fsnotify.Event, name string) {
	if ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename {
		return
	}
	// Images are not cached; viewers re-fetch them from disk on reload.
	log.Printf("[Watch] Image changed: %s", name)
	r.notifier.Publish()
}

// readWithRetry reads path, retrying once after a short delay when the first
// attempt races an in-progress write, then gives up for this event.
func (r *Reconciler) readWithRetry(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	time.Sleep(r.retryDelay)
	return os.ReadFile(path)
}
