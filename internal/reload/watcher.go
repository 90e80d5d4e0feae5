// Package reload provides configuration hot-reload. Changes are detected by
// polling the config file or by an OS signal such as SIGHUP.
package reload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the path to the configuration file to watch.
	ConfigPath string

	// PollInterval is how often to check for file changes.
	// Defaults to 5 seconds if zero.
	PollInterval time.Duration

	// Signals triggers a reload event on every value received
	// (typically wired to SIGHUP with signal.Notify).
	Signals <-chan os.Signal
}

// EventType describes what triggered a reload.
type EventType string

const (
	// EventModified indicates the config file content changed.
	EventModified EventType = "modified"

	// EventSignal indicates a reload was requested by signal.
	EventSignal EventType = "signal"
)

// Event is a reload request.
type Event struct {
	Type       EventType
	ConfigPath string
}

// fingerprint identifies one version of the watched file. The digest is
// only computed when size or mtime moved, so an unchanged file costs one
// stat per poll.
type fingerprint struct {
	modTime time.Time
	size    int64
	digest  []byte
}

// Watcher turns config file edits and reload signals into Events.
// A file whose mtime changes without a content change (touch, editor
// save with no edits) does not produce an event.
type Watcher struct {
	cfg    WatcherConfig
	events chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Watcher{
		cfg:    cfg,
		events: make(chan Event, 1),
	}
}

// Start begins watching. Calls after the first are no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

// Events returns the channel of reload requests. At most one request is
// buffered; bursts collapse into it.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends watching and waits for the loop to exit. It may be called
// more than once and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel == nil {
		w.cancel = func() {}
	}
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	last, _ := w.fingerprint(fingerprint{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.cfg.Signals:
			w.notify(EventSignal)
		case <-ticker.C:
			cur, ok := w.fingerprint(last)
			if !ok {
				continue
			}
			changed := last.digest != nil && !bytes.Equal(cur.digest, last.digest)
			last = cur
			if changed {
				w.notify(EventModified)
			}
		}
	}
}

// fingerprint stats the file and hashes it when it differs from prev.
// It reports false when the file cannot be read.
func (w *Watcher) fingerprint(prev fingerprint) (fingerprint, bool) {
	info, err := os.Stat(w.cfg.ConfigPath)
	if err != nil {
		return prev, false
	}
	if prev.digest != nil && info.Size() == prev.size && info.ModTime().Equal(prev.modTime) {
		return prev, true
	}
	data, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return prev, false
	}
	sum := sha256.Sum256(data)
	return fingerprint{modTime: info.ModTime(), size: info.Size(), digest: sum[:]}, true
}

func (w *Watcher) notify(typ EventType) {
	select {
	case w.events <- Event{Type: typ, ConfigPath: w.cfg.ConfigPath}:
	default:
	}
}
