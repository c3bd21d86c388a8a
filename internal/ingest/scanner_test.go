package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtpipe/constants"
	"stmtpipe/internal/registry"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestScanDirectory_FiltersAndRegisters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "jan.pdf", []byte("%PDF-jan"))
	writeFile(t, dir, "feb.PDF", []byte("%PDF-feb"))
	writeFile(t, dir, "notes.txt", []byte("not a statement"))
	writeFile(t, dir, "photo.png", []byte("png"))
	writeFile(t, dir, filepath.Join("nested", "mar.pdf"), []byte("%PDF-mar"))

	reg := registry.NewRegistry()
	items, stats, err := NewScanner(reg, nil).ScanDirectory(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, 3, stats.Matched)
	assert.Equal(t, 3, stats.Added)
	assert.Zero(t, stats.Failed)

	got, ok := reg.Get("jan.pdf")
	require.True(t, ok)
	assert.Equal(t, "jan.pdf", got.Name)
	assert.Equal(t, constants.UploadPending, got.UploadState)
	assert.True(t, filepath.IsAbs(got.SourcePath))

	_, ok = reg.Get("notes.txt")
	assert.False(t, ok, "unsupported extensions are not registered")
}

func TestScanDirectory_SkipsHiddenEntries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "visible.pdf", []byte("%PDF-a"))
	writeFile(t, dir, ".hidden.pdf", []byte("%PDF-b"))
	writeFile(t, dir, filepath.Join(".archive", "old.pdf"), []byte("%PDF-c"))

	reg := registry.NewRegistry()
	items, _, err := NewScanner(reg, nil).ScanDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "visible.pdf", items[0].Name)
}

func TestScanDirectory_DeduplicatesIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "original.pdf", []byte("%PDF-same"))
	writeFile(t, dir, "copy.pdf", []byte("%PDF-same"))

	reg := registry.NewRegistry()
	items, stats, err := NewScanner(reg, nil).ScanDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, stats.Deduplicated)
}

func TestScanDirectory_NameCollisionIsCounted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stmt.pdf", []byte("%PDF-one"))
	writeFile(t, dir, filepath.Join("nested", "stmt.pdf"), []byte("%PDF-two"))

	reg := registry.NewRegistry()
	items, stats, err := NewScanner(reg, nil).ScanDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, stats.Failed)
}

func TestScanDirectory_EmptyRoot(t *testing.T) {
	reg := registry.NewRegistry()
	_, _, err := NewScanner(reg, nil).ScanDirectory(context.Background(), "  ")
	assert.Error(t, err)
}
