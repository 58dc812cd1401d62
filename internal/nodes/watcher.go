package nodes

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a Registry in sync with the nodes file on disk.
// fsnotify where available, with a 60s polling loop as safety net
// (editors that replace-and-rename can drop the watch).
type Watcher struct {
	path     string
	registry *Registry

	// onReload is invoked after a successful swap, e.g. to push the
	// recompiled prompt to the vision service.
	onReload func([]*ListenerConfig)

	mu        sync.Mutex
	lastMtime time.Time
}

func NewWatcher(path string, registry *Registry, onReload func([]*ListenerConfig)) *Watcher {
	return &Watcher{path: path, registry: registry, onReload: onReload}
}

// Start launches the watch loops. They stop when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("[WARN] nodes watcher: fsnotify unavailable (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(w.path); err != nil {
		// File may not exist yet. Polling picks it up when it appears.
		log.Printf("[WARN] nodes watcher: cannot watch %s (%v), falling back to polling", w.path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// Small debounce: editors often fire write bursts.
						time.Sleep(100 * time.Millisecond)
						w.Reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[ERROR] nodes watcher: %v", err)
				}
			}
		}()
	}

	// Polling runs regardless. mtime check keeps reload noise down.
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reloadIfChanged()
			}
		}
	}()
}

// Reload re-reads the nodes file and swaps the registry. Parse failures
// keep the previous listener set.
func (w *Watcher) Reload() {
	listeners, err := LoadFile(w.path)
	if err != nil {
		log.Printf("[ERROR] nodes watcher: reload failed, keeping current listeners: %v", err)
		return
	}
	w.registry.Replace(listeners)
	log.Printf("[DEBUG] nodes watcher: reloaded %d listeners from %s", len(listeners), w.path)
	if w.onReload != nil {
		w.onReload(listeners)
	}
}

func (w *Watcher) reloadIfChanged() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	changed := info.ModTime().After(w.lastMtime)
	if changed {
		w.lastMtime = info.ModTime()
	}
	w.mu.Unlock()
	if changed {
		w.Reload()
	}
}
