package tenant

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls the registry file and reloads the [Registry] when the
// file's modification time changes; the content hash is not compared, so a
// touch without an edit also triggers a reload. It polls rather than using fsnotify, matching
// the teacher's own config watcher, to keep the dependency surface small.
type Watcher struct {
	reg      *Registry
	interval time.Duration

	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default 10s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher starts polling reg's registry file in the background. reg must
// already have been loaded via [Registry.Load].
func NewWatcher(reg *Registry, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		reg:      reg,
		interval: 10 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.poll()
	return w
}

// Stop stops the background poller.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	w.reg.mu.RLock()
	path := w.reg.path
	lastMtime := w.reg.lastMtime
	w.reg.mu.RUnlock()
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("tenant watcher: cannot stat registry file", "path", path, "err", err)
		return
	}
	if info.ModTime().Equal(lastMtime) {
		return
	}
	if err := w.reg.Reload(); err != nil {
		slog.Warn("tenant watcher: reload failed, keeping previous registry", "path", path, "err", err)
		return
	}
	slog.Info("tenant watcher: registry reloaded", "path", path)
}
