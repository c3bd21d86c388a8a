package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"stmtpipe/constants"
	"stmtpipe/internal/entity"
)

// WatchConfig configures drop-folder watching.
type WatchConfig struct {
	Roots       []string
	InitialScan bool          // emit files already present under the roots
	Debounce    time.Duration // coalesce rapid write bursts per file
}

// Watch streams statement files appearing under cfg.Roots, registering each
// as a work item and emitting its id. New subdirectories are picked up as
// they are created. The channels close when ctx is cancelled.
func (s *Scanner) Watch(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("watch: no roots provided")
	}

	idCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if isHidden(path) && path != root {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && supported(path) {
				s.registerAndEmit(path, idCh)
			}
			return nil
		})
	}
	for _, root := range cfg.Roots {
		if err := addDir(root); err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(idCh)
		defer close(errCh)
		defer w.Close()

		// The debounce timer only signals flushCh; pending and idCh are
		// touched by this goroutine alone, so a timer firing after shutdown
		// cannot race the map or send on the closed channel.
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		flushCh := make(chan struct{}, 1)
		pending := map[string]struct{}{}

		flush := func() {
			for path := range pending {
				s.registerAndEmit(path, idCh)
				delete(pending, path)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-flushCh:
				flush()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op.Has(fsnotify.Create) {
					// A created directory needs watching too; Add on a
					// plain file fails harmlessly.
					_ = w.Add(e.Name)
				}
				if supported(e.Name) && e.Op.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
					pending[e.Name] = struct{}{}
					if cfg.Debounce > 0 {
						if timer != nil {
							timer.Stop()
						}
						timer = time.AfterFunc(cfg.Debounce, func() {
							select {
							case flushCh <- struct{}{}:
							default:
							}
						})
					} else {
						flush()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Error("ingest.watch_error", "err", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return idCh, errCh, nil
}

// registerAndEmit adds one discovered file to the registry. Re-registration
// of a known name is a no-op, so write bursts on the same file emit at most
// one new item.
func (s *Scanner) registerAndEmit(path string, idCh chan<- string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		s.logger.Warn("ingest.abs_error", "path", path, "err", err)
		return
	}
	name := filepath.Base(abs)
	if _, ok := s.registry.Get(name); ok {
		return
	}
	s.registry.Add(entity.WorkItem{
		ID:          name,
		Name:        name,
		SourcePath:  abs,
		UploadState: constants.UploadPending,
	})
	s.logger.Info("ingest.watch.registered", "name", name, "path", abs)
	select {
	case idCh <- name:
	default:
	}
}

func supported(path string) bool {
	if isHidden(path) {
		return false
	}
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}
