package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan []FileEvent) []FileEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation // nil means no event
	}{
		{"create then modify stays create", []Operation{OpCreate, OpModify, OpModify}, []Operation{OpCreate}},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"modify twice is modify", []Operation{OpModify, OpModify}, []Operation{OpModify}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "/docs/a.md", Operation: op})
			}

			batch := recv(t, d.Output())
			require.Len(t, batch, len(tt.want))
			assert.Equal(t, tt.want[0], batch[0].Operation)
		})
	}
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "/docs/tmp.md", Operation: OpCreate})
	d.Add(FileEvent{Path: "/docs/tmp.md", Operation: OpDelete})
	d.Add(FileEvent{Path: "/docs/keep.md", Operation: OpModify})

	batch := recv(t, d.Output())
	require.Len(t, batch, 1)
	assert.Equal(t, "/docs/keep.md", batch[0].Path)
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	for _, p := range []string{"/c.md", "/a.md", "/b.md"} {
		d.Add(FileEvent{Path: p, Operation: OpModify})
	}

	batch := recv(t, d.Output())
	require.Len(t, batch, 3)
	assert.Equal(t, []string{"/a.md", "/b.md", "/c.md"}, []string{batch[0].Path, batch[1].Path, batch[2].Path})
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "/a.md", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "/b.md", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
