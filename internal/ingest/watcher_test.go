package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtpipe/internal/registry"
)

func TestWatch_DebouncedFileBurst(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.NewRegistry()
	idCh, errCh, err := NewScanner(reg, nil).Watch(ctx, WatchConfig{
		Roots:    []string{dir},
		Debounce: time.Millisecond,
	})
	require.NoError(t, err)

	const n = 100
	for i := 0; i < n; i++ {
		writeFile(t, dir, fmt.Sprintf("stmt-%03d.pdf", i), []byte(fmt.Sprintf("%%PDF-%d", i)))
	}

	got := map[string]struct{}{}
	deadline := time.After(15 * time.Second)
	for len(got) < n {
		select {
		case id, ok := <-idCh:
			require.True(t, ok, "id channel closed with %d of %d items", len(got), n)
			got[id] = struct{}{}
		case werr, ok := <-errCh:
			if ok {
				t.Logf("watch error: %v", werr)
			}
		case <-deadline:
			t.Fatalf("timed out with %d of %d items", len(got), n)
		}
	}
	assert.Len(t, reg.Items(), n)

	// Cancellation drains cleanly: the channel closes, a still-armed debounce
	// timer must not emit after that.
	cancel()
	closeDeadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-idCh:
			if !ok {
				return
			}
		case <-closeDeadline:
			t.Fatal("id channel did not close after cancellation")
		}
	}
}

func TestWatch_InitialScanEmitsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "jan.pdf", []byte("%PDF-jan"))
	writeFile(t, dir, "notes.txt", []byte("not a statement"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.NewRegistry()
	idCh, _, err := NewScanner(reg, nil).Watch(ctx, WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
	})
	require.NoError(t, err)

	select {
	case id := <-idCh:
		assert.Equal(t, "jan.pdf", id)
	case <-time.After(5 * time.Second):
		t.Fatal("initial scan emitted nothing")
	}
	_, ok := reg.Get("notes.txt")
	assert.False(t, ok)
}

func TestWatch_RequiresRoots(t *testing.T) {
	_, _, err := NewScanner(registry.NewRegistry(), nil).Watch(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
