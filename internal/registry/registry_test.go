package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtpipe/constants"
	"stmtpipe/internal/common"
	"stmtpipe/internal/entity"
)

func TestAdd_DefaultsToPendingAndSelects(t *testing.T) {
	r := NewRegistry()
	r.Add(entity.WorkItem{ID: "jan.pdf", Name: "jan.pdf"})

	item, ok := r.Get("jan.pdf")
	require.True(t, ok)
	assert.Equal(t, constants.UploadPending, item.UploadState)

	selected := r.Selected()
	require.Len(t, selected, 1)
	assert.Equal(t, "jan.pdf", selected[0].ID)
}

func TestAdd_ExistingItemIsNotReplaced(t *testing.T) {
	r := NewRegistry()
	r.Add(entity.WorkItem{ID: "jan.pdf", Name: "jan.pdf"})
	r.UpdateUploadState("jan.pdf", constants.UploadSucceeded, "")

	r.Add(entity.WorkItem{ID: "jan.pdf", Name: "jan.pdf"})

	item, _ := r.Get("jan.pdf")
	assert.Equal(t, constants.UploadSucceeded, item.UploadState, "re-adding must not reset state")
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name    string
		state   constants.UploadState
		force   bool
		wantErr error
	}{
		{name: "pending item removes cleanly", state: constants.UploadPending},
		{name: "failed item removes cleanly", state: constants.UploadFailed},
		{name: "succeeded item is protected", state: constants.UploadSucceeded, wantErr: common.ErrInvalidInput},
		{name: "succeeded item removes with force", state: constants.UploadSucceeded, force: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Add(entity.WorkItem{ID: "a.pdf"})
			r.UpdateUploadState("a.pdf", tt.state, "boom")

			err := r.Remove("a.pdf", tt.force)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				_, ok := r.Get("a.pdf")
				assert.True(t, ok, "item must survive refused removal")
				return
			}
			require.NoError(t, err)
			_, ok := r.Get("a.pdf")
			assert.False(t, ok)
		})
	}
}

func TestRemove_UnknownItem(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Remove("nope.pdf", false), common.ErrNotFound)
}

func TestSelect_UnknownIDRejected(t *testing.T) {
	r := NewRegistry()
	r.Add(entity.WorkItem{ID: "a.pdf"})
	assert.ErrorIs(t, r.Select([]string{"a.pdf", "ghost.pdf"}), common.ErrNotFound)
}

func TestUpdateUploadState_ClearsErrorOnRecovery(t *testing.T) {
	r := NewRegistry()
	r.Add(entity.WorkItem{ID: "a.pdf"})

	r.UpdateUploadState("a.pdf", constants.UploadFailed, "connection reset")
	item, _ := r.Get("a.pdf")
	assert.Equal(t, "connection reset", item.ErrorMessage)

	r.UpdateUploadState("a.pdf", constants.UploadSucceeded, "")
	item, _ = r.Get("a.pdf")
	assert.Empty(t, item.ErrorMessage)
}

func TestSetAnalyzed_RecoversPriorRunState(t *testing.T) {
	r := NewRegistry()
	r.Add(entity.WorkItem{ID: "a.pdf"})

	r.SetAnalyzed("a.pdf", 12, []string{"s1", "s2"})

	item, _ := r.Get("a.pdf")
	assert.Equal(t, constants.UploadSucceeded, item.UploadState)
	assert.Equal(t, 12, item.PagesAnalyzed)
	assert.Equal(t, 12, item.TotalPages)
	assert.Equal(t, []string{"s1", "s2"}, item.Statements)
}

func TestConcurrentPerItemUpdates(t *testing.T) {
	r := NewRegistry()
	ids := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}
	for _, id := range ids {
		r.Add(entity.WorkItem{ID: id})
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.UpdateAnalysisProgress(id, i, 100)
			}
			r.UpdateUploadState(id, constants.UploadSucceeded, "")
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		item, _ := r.Get(id)
		assert.Equal(t, constants.UploadSucceeded, item.UploadState)
		assert.Equal(t, 99, item.PagesAnalyzed)
	}
}
