package registry

import (
	"fmt"
	"sort"
	"sync"

	"stmtpipe/constants"
	"stmtpipe/internal/common"
	"stmtpipe/internal/entity"
)

// Registry is the in-memory catalog of work items. It is the single source
// of truth for per-item upload and analysis state; all mutation is item-keyed
// so concurrent updates to different items never conflict.
type Registry struct {
	mu       sync.RWMutex
	items    map[string]*entity.WorkItem
	selected map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		items:    make(map[string]*entity.WorkItem),
		selected: make(map[string]struct{}),
	}
}

// Add registers a new work item in PENDING state and selects it. If an item
// with the same id already exists it is left untouched; the caller must
// remove it first.
func (r *Registry) Add(item entity.WorkItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; ok {
		return
	}
	if item.UploadState == "" {
		item.UploadState = constants.UploadPending
	}
	cp := item
	r.items[item.ID] = &cp
	r.selected[item.ID] = struct{}{}
}

// Remove drops an item from the catalog. Items already uploaded successfully
// are protected; callers must pass force to acknowledge the destructive
// removal.
func (r *Registry) Remove(id string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("remove %q: %w", id, common.ErrNotFound)
	}
	if item.UploadState == constants.UploadSucceeded && !force {
		return fmt.Errorf("remove %q: item already uploaded: %w", id, common.ErrInvalidInput)
	}
	delete(r.items, id)
	delete(r.selected, id)
	return nil
}

// Select replaces the current selection. Unknown ids are rejected.
func (r *Registry) Select(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := r.items[id]; !ok {
			return fmt.Errorf("select %q: %w", id, common.ErrNotFound)
		}
		next[id] = struct{}{}
	}
	r.selected = next
	return nil
}

// Selected returns snapshots of the currently selected items, ordered by id.
func (r *Registry) Selected() []entity.WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.WorkItem, 0, len(r.selected))
	for id := range r.selected {
		out = append(out, snapshot(r.items[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a snapshot of one item.
func (r *Registry) Get(id string) (entity.WorkItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return entity.WorkItem{}, false
	}
	return snapshot(item), true
}

// Items returns snapshots of every item, ordered by id.
func (r *Registry) Items() []entity.WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.WorkItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, snapshot(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateUploadState records an upload outcome for one item. The error
// message is cleared on anything but FAILED.
func (r *Registry) UpdateUploadState(id string, state constants.UploadState, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return
	}
	item.UploadState = state
	if state == constants.UploadFailed {
		item.ErrorMessage = errMsg
	} else {
		item.ErrorMessage = ""
	}
}

// UpdateAnalysisProgress records remote per-item page progress.
func (r *Registry) UpdateAnalysisProgress(id string, pagesDone, pagesTotal int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return
	}
	item.PagesAnalyzed = pagesDone
	item.TotalPages = pagesTotal
}

// SetAnalyzed marks an item as fully analyzed in a previous run, recovered
// from object-store metadata. Implies a successful upload.
func (r *Registry) SetAnalyzed(id string, totalPages int, statements []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return
	}
	item.UploadState = constants.UploadSucceeded
	item.ErrorMessage = ""
	item.PagesAnalyzed = totalPages
	item.TotalPages = totalPages
	item.Statements = append([]string(nil), statements...)
}

func snapshot(item *entity.WorkItem) entity.WorkItem {
	cp := *item
	cp.Statements = append([]string(nil), item.Statements...)
	return cp
}
