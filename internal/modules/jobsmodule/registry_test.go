package jobsmodule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipperhq/clipper/internal/events"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()

	job := r.Create(KindEdit, map[string]interface{}{"source_id": uint32(7)})
	assert.EqualValues(t, 1, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	r.MarkProcessing(job.ID)
	got, ok := r.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, got.Status)

	r.MarkCompleted(job.ID, "/out/result.mp4")
	got, ok = r.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "/out/result.mp4", got.OutputPath)
	assert.Equal(t, 100.0, got.Progress)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestRegistryMarkFailed(t *testing.T) {
	r := NewRegistry()
	job := r.Create(KindHLSDownload, nil)

	r.MarkFailed(job.ID, "stream unavailable")
	got, ok := r.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "stream unavailable", got.Error)
}

func TestRegistryMonotonicIDs(t *testing.T) {
	r := NewRegistry()

	a := r.Create(KindEdit, nil)
	b := r.Create(KindSocksDownload, nil)
	c := r.Create(KindEdit, nil)
	assert.EqualValues(t, 1, a.ID)
	assert.EqualValues(t, 2, b.ID)
	assert.EqualValues(t, 3, c.ID)

	// Removal never recycles ids.
	require.True(t, r.Remove(c.ID))
	d := r.Create(KindEdit, nil)
	assert.EqualValues(t, 4, d.ID)
}

func TestRegistryListFiltersAndOrders(t *testing.T) {
	r := NewRegistry()
	r.Create(KindEdit, nil)
	r.Create(KindHLSDownload, nil)
	r.Create(KindEdit, nil)

	edits := r.List(KindEdit)
	require.Len(t, edits, 2)
	// Newest first.
	assert.Greater(t, edits[0].ID, edits[1].ID)

	all := r.List("")
	assert.Len(t, all, 3)
}

func TestRegistrySnapshotsAreCopies(t *testing.T) {
	r := NewRegistry()
	job := r.Create(KindEdit, nil)

	// Mutating a returned snapshot must not leak into the registry.
	job.Status = StatusCompleted
	got, ok := r.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
}

func TestRegistrySnapshotParamsDetached(t *testing.T) {
	r := NewRegistry()
	job := r.Create(KindEdit, map[string]interface{}{"source_id": uint32(7)})

	snapshot, ok := r.Get(job.ID)
	require.True(t, ok)

	// Encoding an earlier snapshot while an update writes the live params
	// map must be safe; the copies may not share the map.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			r.Update(job.ID, func(j *Job) {
				j.Params["output_id"] = i
			})
		}
	}()
	for i := 0; i < 500; i++ {
		_, err := json.Marshal(snapshot)
		require.NoError(t, err)
	}
	<-done

	assert.Equal(t, map[string]interface{}{"source_id": uint32(7)}, snapshot.Params)

	// Writes through a snapshot never reach the registry either.
	snapshot.Params["hijack"] = true
	got, ok := r.Get(job.ID)
	require.True(t, ok)
	assert.NotContains(t, got.Params, "hijack")
}

func TestRegistryUpdateEventParamsDetached(t *testing.T) {
	prev := events.GetGlobalEventBus()
	t.Cleanup(func() { events.SetGlobalEventBus(prev) })
	bus := events.NewBus()
	events.SetGlobalEventBus(bus)

	r := NewRegistry()
	job := r.Create(KindEdit, map[string]interface{}{"quality": "fast"})

	var published *Job
	bus.SubscribeAll(func(e events.Event) {
		if j, ok := e.Data.(*Job); ok {
			published = j
		}
	})

	r.MarkProcessing(job.ID)
	require.NotNil(t, published)
	first := published

	r.Update(job.ID, func(j *Job) {
		j.Params["output_id"] = uint32(42)
	})
	assert.NotContains(t, first.Params, "output_id")
}

func TestRegistryClearCompleted(t *testing.T) {
	r := NewRegistry()
	done := r.Create(KindEdit, nil)
	failed := r.Create(KindEdit, nil)
	running := r.Create(KindEdit, nil)
	otherKind := r.Create(KindHLSDownload, nil)

	r.MarkCompleted(done.ID, "/out/a.mp4")
	r.MarkFailed(failed.ID, "boom")
	r.MarkProcessing(running.ID)
	r.MarkCompleted(otherKind.ID, "/out/b.mp4")

	removed := r.ClearCompleted(KindEdit)
	assert.Equal(t, 2, removed)

	_, ok := r.Get(done.ID)
	assert.False(t, ok)
	_, ok = r.Get(running.ID)
	assert.True(t, ok)
	// Other kinds are untouched.
	_, ok = r.Get(otherKind.ID)
	assert.True(t, ok)
}

func TestRegistryUpdateUnknownJob(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Update(99, func(j *Job) {}))
	assert.False(t, r.Remove(99))
	_, ok := r.Get(99)
	assert.False(t, ok)
}
