package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/syssam/dsr/masking"
)

type watchOptions struct {
	logger   *slog.Logger
	registry *masking.Registry
	debounce time.Duration
}

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

// WithLogger sets the logger reporting reloads. Default is slog.Default().
func WithLogger(l *slog.Logger) WatchOption {
	return func(o *watchOptions) {
		o.logger = l
	}
}

// WithRegistry sets the masking registry reloaded configurations are
// validated against. Default is masking.Default().
func WithRegistry(r *masking.Registry) WatchOption {
	return func(o *watchOptions) {
		o.registry = r
	}
}

// WithDebounce sets how long Watch waits for writes to settle before
// reloading. Default is 100ms.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		o.debounce = d
	}
}

// Watch reloads the configuration file at path whenever it changes and
// passes every valid configuration to fn. Invalid configurations are logged
// and ignored. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config), opts ...WatchOption) error {
	o := watchOptions{
		logger:   slog.Default(),
		registry: masking.Default(),
		debounce: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	// Editors replace files by renaming, which drops a watch on the file
	// itself.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	reload := make(chan struct{}, 1)
	timer := time.AfterFunc(time.Hour, func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	})
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(o.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			o.logger.WarnContext(ctx, "config watcher error", "path", path, "error", err)
		case <-reload:
			c, err := Load(abs)
			if err == nil {
				err = c.Validate(o.registry)
			}
			if err != nil {
				o.logger.WarnContext(ctx, "ignoring invalid configuration", "path", path, "error", err)
				continue
			}
			o.logger.InfoContext(ctx, "configuration reloaded", "path", path)
			fn(c)
		}
	}
}
