package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"stmtpipe/constants"
	"stmtpipe/internal/entity"
	"stmtpipe/internal/registry"
)

// ScanStats aggregates one directory scan.
type ScanStats struct {
	Scanned      int
	Matched      int
	Added        int
	Deduplicated int
	Failed       int
}

// Scanner walks local directories and registers supported statement files as
// work items. Files are keyed by base name because the extraction service
// reports progress per file name; two distinct files sharing a base name
// cannot coexist in one batch.
type Scanner struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewScanner(reg *registry.Registry, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{registry: reg, logger: logger}
}

// ScanDirectory walks root, skips hidden entries, filters to supported
// extensions, dedupes identical content by hash, and adds each surviving file
// to the registry. Per-file failures are counted, not fatal.
func (s *Scanner) ScanDirectory(ctx context.Context, root string) ([]entity.WorkItem, ScanStats, error) {
	var stats ScanStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, fmt.Errorf("scan: root path is required")
	}

	seenHashes := map[string]string{}
	seenNames := map[string]struct{}{}
	var items []entity.WorkItem

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			s.logger.Warn("ingest.walk_error", "path", path, "err", walkErr)
			stats.Failed++
			return nil
		}
		if isHidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			return nil
		}
		stats.Matched++

		abs, err := filepath.Abs(path)
		if err != nil {
			s.logger.Warn("ingest.abs_error", "path", path, "err", err)
			stats.Failed++
			return nil
		}
		sum, err := hashFile(abs)
		if err != nil {
			s.logger.Warn("ingest.hash_error", "path", path, "err", err)
			stats.Failed++
			return nil
		}
		if prev, ok := seenHashes[sum]; ok {
			s.logger.Info("ingest.deduplicated", "path", path, "duplicate_of", prev)
			stats.Deduplicated++
			return nil
		}

		name := filepath.Base(abs)
		if _, ok := seenNames[name]; ok {
			s.logger.Warn("ingest.name_collision", "path", path, "name", name)
			stats.Failed++
			return nil
		}
		seenHashes[sum] = abs
		seenNames[name] = struct{}{}

		item := entity.WorkItem{
			ID:          name,
			Name:        name,
			SourcePath:  abs,
			UploadState: constants.UploadPending,
		}
		s.registry.Add(item)
		items = append(items, item)
		stats.Added++
		return nil
	})
	if err != nil {
		return items, stats, fmt.Errorf("scan %s: %w", root, err)
	}

	s.logger.Info("ingest.scan.ok", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched,
		"added", stats.Added, "deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return items, stats, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
