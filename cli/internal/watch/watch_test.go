package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/relq/internal/debug"
)

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "orders.relq")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(watched, []byte("entity Order {}"), 0o644))

	changes := make(chan string, 8)
	w, err := NewWatcher([]string{watched}, func(changed string) error {
		changes <- changed
		return nil
	}, debug.Component("watch"))
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(watched, []byte("entity Order {}\n"), 0o644))
	}

	select {
	case changed := <-changes:
		abs, _ := filepath.Abs(watched)
		assert.Equal(t, abs, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case extra := <-changes:
		t.Fatalf("unexpected second callback for %s", extra)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher([]string{"/does/not/exist/orders.relq"}, func(string) error { return nil }, debug.Component("watch"))
	assert.Error(t, err)
}
