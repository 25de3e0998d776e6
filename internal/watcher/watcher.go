// Package watcher recompiles spec files when they change on disk. A
// recompiled convention that is currently active is activated again so the
// new attribute definitions take effect immediately.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/stdattr/internal/activation"
	"github.com/vk/stdattr/internal/compiler"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/ctxlog"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher watches spec directories.
type Watcher struct {
	compiler *compiler.Compiler
	manager  *activation.Manager
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onReload func(*convention.Convention, error)

	exts  map[string]bool
	ready chan string
	done  chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*time.Timer
	closeOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before it is
// recompiled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook is called after every recompilation attempt.
func WithReloadHook(fn func(*convention.Convention, error)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// New creates a watcher recompiling through c and re-activating through m.
func New(c *compiler.Compiler, m *activation.Manager, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		compiler: c,
		manager:  m,
		fsw:      fsw,
		debounce: defaultDebounce,
		exts:     make(map[string]bool),
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
	for _, ext := range c.Extensions() {
		w.exts[ext] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add watches root and every directory below it.
func (w *Watcher) Add(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Spec watcher started.", "dirs", w.fsw.WatchList())
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)
		case path := <-w.ready:
			conv, err := w.Reload(ctx, path)
			if w.onReload != nil {
				w.onReload(conv, err)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	logger := ctxlog.FromContext(ctx)
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.Add(event.Name); err != nil {
				logger.Warn("Failed to watch new directory.", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !w.exts[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		logger.Debug("Spec file removed, keeping its convention registered.", "path", event.Name)
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	w.schedule(event.Name)
}

func (w *Watcher) schedule(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.pendingMu.Lock()
		delete(w.pending, path)
		w.pendingMu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

// Reload recompiles path, replacing the registered convention of the same
// name. If that convention was active, the new one is activated.
func (w *Watcher) Reload(ctx context.Context, path string) (*convention.Convention, error) {
	logger := ctxlog.FromContext(ctx).With("path", path)
	conv, err := w.compiler.CompileFile(ctx, path, compiler.Options{Overwrite: true})
	if err != nil {
		logger.Warn("Failed to recompile changed spec.", "error", err)
		return nil, err
	}
	logger.Info("Spec recompiled.", "convention", conv.Name)

	active, ok := w.manager.Active()
	if ok && active != conv && active.Name == conv.Name {
		if err := w.manager.UseConvention(ctx, conv); err != nil {
			return conv, fmt.Errorf("failed to re-activate convention '%s': %w", conv.Name, err)
		}
	}
	return conv, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.pendingMu.Lock()
		for _, t := range w.pending {
			t.Stop()
		}
		w.pendingMu.Unlock()
		err = w.fsw.Close()
	})
	return err
}
