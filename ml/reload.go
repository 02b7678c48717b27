package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultReloadDebounce = 500 * time.Millisecond

// ArtifactWatcher reloads a DelayPredictor whenever its model artifact is
// rewritten on disk. The parent directory is watched so that artifacts
// replaced by rename are picked up too.
type ArtifactWatcher struct {
	path      string
	predictor *DelayPredictor
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	onReload  func(error)
}

func NewArtifactWatcher(path string, predictor *DelayPredictor, logger *zap.Logger) (*ArtifactWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &ArtifactWatcher{
		path:      abs,
		predictor: predictor,
		logger:    logger,
		watcher:   watcher,
		debounce:  defaultReloadDebounce,
	}, nil
}

// OnReload registers a callback invoked after every reload attempt.
func (w *ArtifactWatcher) OnReload(fn func(error)) {
	w.onReload = fn
}

// Run blocks until ctx is cancelled or the watcher is closed.
func (w *ArtifactWatcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			err := w.predictor.Load(w.path)
			if err != nil {
				w.logger.Error("model reload failed", zap.String("path", w.path), zap.Error(err))
			} else {
				w.logger.Info("model reloaded", zap.String("path", w.path), zap.Uint64("generation", w.predictor.Generation()))
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		}
	}
}

func (w *ArtifactWatcher) Close() error {
	return w.watcher.Close()
}
