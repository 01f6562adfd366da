// Package signals lets a separate process stop or pause a running
// conclave instance by dropping files into .conclave/signals.
package signals

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrStopped is the cancellation cause once a stop signal arrives.
var ErrStopped = errors.New("stop signal received")

const (
	stopFile  = "stop"
	pauseFile = "pause"

	defaultPollInterval = 500 * time.Millisecond
)

// Dir returns the signals directory for a project root.
func Dir(projectRoot string) string {
	return filepath.Join(projectRoot, ".conclave", "signals")
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval sets how often signal files are re-checked when the
// file watcher is unavailable or misses an event.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.poll = d
		}
	}
}

// WithLogger sets the logger used for watcher diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher tracks the stop and pause files for one project.
type Watcher struct {
	dir    string
	poll   time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
	paused  bool
	changed chan struct{}

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// New creates the signals directory under projectRoot and starts
// watching it. If fsnotify cannot be set up the Watcher falls back to
// polling.
func New(projectRoot string, opts ...Option) (*Watcher, error) {
	dir := Dir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		poll:    defaultPollInterval,
		logger:  slog.New(slog.DiscardHandler),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Debug("signal watcher unavailable, polling", "error", err)
		return w, nil
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		w.logger.Debug("signal watcher unavailable, polling", "dir", dir, "error", err)
		return w, nil
	}
	w.watcher = fw

	go w.watch()

	return w, nil
}

// watch turns file events into state changes.
func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch filepath.Base(event.Name) {
			case stopFile:
				// Events can trail a Clear; only a file still present counts.
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && w.exists(stopFile) {
					w.set(func() { w.stopped = true })
				}
			case pauseFile:
				switch {
				case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
					w.set(func() { w.paused = true })
				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					w.set(func() { w.paused = false })
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("signal watcher error", "error", err)
		}
	}
}

// set applies fn under the lock and wakes every waiter.
func (w *Watcher) set(fn func()) {
	w.mu.Lock()
	fn()
	close(w.changed)
	w.changed = make(chan struct{})
	w.mu.Unlock()
}

func (w *Watcher) changes() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.changed
}

func (w *Watcher) exists(name string) bool {
	_, err := os.Stat(filepath.Join(w.dir, name))
	return err == nil
}

// ShouldStop reports whether a stop signal has been received. Stop is
// sticky until Clear.
func (w *Watcher) ShouldStop() bool {
	// Check the file directly in case the watcher missed it.
	if w.exists(stopFile) {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

// ShouldPause reports whether the pause file is present.
func (w *Watcher) ShouldPause() bool {
	paused := w.exists(pauseFile)

	w.mu.Lock()
	w.paused = paused
	w.mu.Unlock()
	return paused
}

// WaitWhilePaused blocks while the pause file exists. It returns
// ErrStopped if a stop signal arrives and ctx.Err() if ctx ends first.
// It matches the orchestrator's dispatch gate signature.
func (w *Watcher) WaitWhilePaused(ctx context.Context) error {
	logged := false
	for {
		if w.ShouldStop() {
			return ErrStopped
		}
		if !w.ShouldPause() {
			if logged {
				w.logger.Info("resumed")
			}
			return nil
		}
		if !logged {
			w.logger.Info("paused, waiting for resume", "signal", filepath.Join(w.dir, pauseFile))
			logged = true
		}

		if err := w.sleep(ctx); err != nil {
			return err
		}
	}
}

// sleep waits for a state change, the poll interval, or shutdown.
func (w *Watcher) sleep(ctx context.Context) error {
	timer := time.NewTimer(w.poll)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	case <-w.changes():
	case <-timer.C:
	}
	return nil
}

// Context returns a child of parent that is cancelled with cause
// ErrStopped when a stop signal arrives.
func (w *Watcher) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	go func() {
		for !w.ShouldStop() {
			timer := time.NewTimer(w.poll)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-w.done:
				timer.Stop()
				return
			case <-w.changes():
			case <-timer.C:
			}
			timer.Stop()
		}
		w.logger.Info("stop signal received, cancelling")
		cancel(ErrStopped)
	}()

	return ctx, func() { cancel(context.Canceled) }
}

// SendStop creates the stop signal file.
func (w *Watcher) SendStop() error {
	return w.write(stopFile)
}

// SendPause creates the pause signal file.
func (w *Watcher) SendPause() error {
	return w.write(pauseFile)
}

// Resume removes the pause signal file.
func (w *Watcher) Resume() error {
	err := os.Remove(filepath.Join(w.dir, pauseFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	w.set(func() { w.paused = false })
	return nil
}

func (w *Watcher) write(name string) error {
	path := filepath.Join(w.dir, name)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes all signal files and resets signal state.
func (w *Watcher) Clear() {
	os.Remove(filepath.Join(w.dir, stopFile))
	os.Remove(filepath.Join(w.dir, pauseFile))
	w.set(func() {
		w.stopped = false
		w.paused = false
	})
}

// Dir returns the watched signals directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}
