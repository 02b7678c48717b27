package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	trainer := NewDelayPredictor(PredictorOptions{}, nil)
	_, err := trainer.Fit(referenceRows())
	require.NoError(t, err)

	serving := NewDelayPredictor(PredictorOptions{}, nil)
	watcher, err := NewArtifactWatcher(path, serving, nil)
	require.NoError(t, err)
	defer watcher.Close()
	watcher.debounce = 10 * time.Millisecond

	reloaded := make(chan struct{}, 1)
	watcher.OnReload(func(err error) {
		if err != nil {
			return
		}
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	require.NoError(t, trainer.Save(path))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("artifact was not reloaded")
	}
	assert.True(t, serving.Trained())
	assert.Equal(t, []DelayLabel{Delayed}, serving.Predict([]FlightRecord{delayProne}))
}

func TestArtifactWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	serving := NewDelayPredictor(PredictorOptions{}, nil)
	watcher, err := NewArtifactWatcher(filepath.Join(dir, "model.json"), serving, nil)
	require.NoError(t, err)
	defer watcher.Close()
	watcher.debounce = 10 * time.Millisecond

	called := make(chan struct{}, 1)
	watcher.OnReload(func(error) { called <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	select {
	case <-called:
		t.Fatal("unexpected reload for unrelated file")
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.False(t, serving.Trained())
}
