package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"stmtpipe/constants"
	"stmtpipe/internal/blobstore"
	"stmtpipe/internal/entity"
	"stmtpipe/internal/registry"
)

// Source loads the bytes of a work item for upload.
type Source interface {
	Load(ctx context.Context, item entity.WorkItem) ([]byte, error)
}

// FileSource reads items from their local source path.
type FileSource struct{}

func (FileSource) Load(_ context.Context, item entity.WorkItem) ([]byte, error) {
	data, err := os.ReadFile(item.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", item.SourcePath, err)
	}
	return data, nil
}

// AggregateError maps item id to upload error message. Any entry blocks the
// whole batch from progressing to analysis.
type AggregateError struct {
	Failures map[string]string
}

func (e *AggregateError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %s", id, e.Failures[id]))
	}
	return fmt.Sprintf("%d upload(s) failed: %s", len(ids), strings.Join(parts, "; "))
}

// Coordinator drives concurrent per-item uploads with a metadata
// short-circuit: an object that already exists remotely is never re-uploaded,
// and one carrying an analysis record restores the item's page counts and
// statement tags locally.
type Coordinator struct {
	store       blobstore.ObjectStore
	registry    *registry.Registry
	source      Source
	concurrency int
	logger      *slog.Logger
}

func NewCoordinator(store blobstore.ObjectStore, reg *registry.Registry, source Source, concurrency int, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		source = FileSource{}
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Coordinator{
		store:       store,
		registry:    reg,
		source:      source,
		concurrency: concurrency,
		logger:      logger,
	}
}

// UploadSelected uploads every given item that is not already uploaded.
// Outcomes settle independently; per-item state is updated as each finishes.
// If any item fails, the returned *AggregateError names all of them and the
// caller must not forward the batch to analysis. An empty selection is a
// no-op success.
func (c *Coordinator) UploadSelected(ctx context.Context, items []entity.WorkItem) error {
	if len(items) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		failures = map[string]string{}
	)
	fail := func(id string, err error) {
		c.registry.UpdateUploadState(id, constants.UploadFailed, err.Error())
		mu.Lock()
		failures[id] = err.Error()
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, item := range items {
		if item.UploadState == constants.UploadSucceeded {
			continue
		}
		item := item
		g.Go(func() error {
			c.uploadOne(ctx, item, fail)
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		return &AggregateError{Failures: failures}
	}
	return nil
}

func (c *Coordinator) uploadOne(ctx context.Context, item entity.WorkItem, fail func(string, error)) {
	md, err := c.store.HeadMetadata(ctx, blobstore.ContainerInput, item.Name)
	if err != nil {
		fail(item.ID, err)
		return
	}
	if md != nil {
		// Object already exists remotely; never re-upload.
		if md.Analyzed {
			c.registry.SetAnalyzed(item.ID, md.TotalPages, md.Statements)
			c.logger.Info("upload.skipped.analyzed", "item", item.ID, "total_pages", md.TotalPages)
		} else {
			c.registry.UpdateUploadState(item.ID, constants.UploadSucceeded, "")
			c.logger.Info("upload.skipped.exists", "item", item.ID)
		}
		return
	}

	c.registry.UpdateUploadState(item.ID, constants.UploadUploading, "")
	data, err := c.source.Load(ctx, item)
	if err != nil {
		fail(item.ID, err)
		return
	}
	if err := c.store.Put(ctx, blobstore.ContainerInput, item.Name, data); err != nil {
		fail(item.ID, err)
		return
	}
	c.registry.UpdateUploadState(item.ID, constants.UploadSucceeded, "")
	c.logger.Info("upload.ok", "item", item.ID, "bytes", len(data))
}
