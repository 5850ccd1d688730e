package host

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsWatcher_FiresOnRewrite(t *testing.T) {
	dir := t.TempDir()
	statsPath := filepath.Join(dir, "stats.json")
	require.NoError(t, os.WriteFile(statsPath, []byte("{}"), 0o644))

	w, err := NewStatsWatcher(statsPath, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	go func() {
		_ = w.Run(ctx, func(context.Context) {
			calls.Add(1)
			fired <- struct{}{}
		})
	}()

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("x"), 0o644))
	// A burst of writes collapses into one pass.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(statsPath, []byte(`{"chunks":[]}`), 0o644))
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("expected onChange after stats rewrite")
	}

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewStatsWatcher_MissingDir(t *testing.T) {
	_, err := NewStatsWatcher(filepath.Join(t.TempDir(), "nope", "stats.json"), time.Millisecond, nil)
	assert.Error(t, err)
}
