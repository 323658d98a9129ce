package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemcp/internal/api"
	"ephemcp/internal/cluster"
	"ephemcp/internal/config"
	"ephemcp/internal/testing/mock"
	"ephemcp/internal/workload"
)

func TestNewManager_RequiresCollaborators(t *testing.T) {
	_, err := NewManager(nil, Options{})
	assert.Error(t, err)

	_, err = NewManager(mock.NewCluster(), Options{})
	assert.Error(t, err)
}

func TestSpawn_ReadyScenario(t *testing.T) {
	m, fake := newTestManager(t, func(_ *config.Config, o *Options) {
		o.IDGenerator = sequentialIDs("srv-a1b2")
	})
	ctx := context.Background()

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	assert.Equal(t, "srv-a1b2", id)

	h, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.StatePending, h.State)
	assert.Equal(t, testNamespace, h.Namespace)
	assert.Nil(t, h.Endpoint)

	fake.MarkReady(id)

	h, err = m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.StateReady, h.State)

	endpoint, err := m.WaitUntilReady(ctx, id, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, api.Endpoint{Host: "srv-a1b2.svc", Port: 8080}, endpoint)

	h, err = m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, api.StateRunning, h.State)
	require.NotNil(t, h.Endpoint)
	assert.Equal(t, endpoint, *h.Endpoint)
}

func TestSpawn_CreatesOneJobAndService(t *testing.T) {
	m, fake := newTestManager(t)

	id, err := m.Spawn(context.Background(), fetchSpec())
	require.NoError(t, err)

	assert.True(t, fake.HasJob(id))
	assert.True(t, fake.HasService(id))
	assert.Equal(t, 1, fake.JobCount())
	assert.Equal(t, 1, fake.ServiceCount())

	job := fake.Job(id)
	require.NotNil(t, job)
	assert.Equal(t, id, job.Labels[workload.LabelServerID])
	assert.Equal(t, workload.ManagedByValue, job.Labels[workload.LabelManagedBy])
}

func TestSpawn_TransientCreateIsIdempotent(t *testing.T) {
	m, fake := newTestManager(t)
	fake.ApplyThenFail(mock.OpCreateComputeUnit)
	fake.ApplyThenFail(mock.OpCreateEndpoint)

	id, err := m.Spawn(context.Background(), fetchSpec())
	require.NoError(t, err)

	assert.Equal(t, 2, fake.Calls(mock.OpCreateComputeUnit))
	assert.Equal(t, 2, fake.Calls(mock.OpCreateEndpoint))
	assert.Equal(t, 1, fake.JobCount())
	assert.Equal(t, 1, fake.ServiceCount())

	h, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, api.StatePending, h.State)
}

func TestSpawn_TransientExhaustedEscalates(t *testing.T) {
	m, fake := newTestManager(t)
	for i := 0; i < 3; i++ {
		fake.FailNext(mock.OpCreateComputeUnit, mock.TransientError())
	}

	id, err := m.Spawn(context.Background(), fetchSpec())
	require.Error(t, err)
	assert.True(t, api.IsTransient(err))
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, fake.Calls(mock.OpCreateComputeUnit))

	h, getErr := m.Get(id)
	require.NoError(t, getErr)
	assert.Equal(t, api.StateFailed, h.State)
	assert.NotEmpty(t, h.LastError)
}

func TestSpawn_PartialCreateIsCompensated(t *testing.T) {
	m, fake := newTestManager(t)
	fake.FailNext(mock.OpCreateEndpoint, mock.PermanentError())

	id, err := m.Spawn(context.Background(), fetchSpec())
	require.Error(t, err)
	assert.True(t, api.IsPermanent(err))

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, id, apiErr.ServerID)

	assert.Equal(t, 0, fake.JobCount(), "job must be deleted after the service create failed")
	assert.Equal(t, 0, fake.ServiceCount())

	h, getErr := m.Get(id)
	require.NoError(t, getErr)
	assert.Equal(t, api.StateFailed, h.State)
}

func TestSpawn_InvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		spec api.ServerSpec
	}{
		{name: "empty image", spec: api.ServerSpec{Port: 8080}},
		{name: "port out of range", spec: api.ServerSpec{Image: "img", Port: 70000}},
		{name: "half runtime", spec: api.ServerSpec{Runtime: &api.Runtime{Exec: "uvx"}}},
		{name: "bad env name", spec: api.ServerSpec{Image: "img", Env: map[string]string{"1BAD": "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, fake := newTestManager(t)

			id, err := m.Spawn(context.Background(), tt.spec)
			require.Error(t, err)
			assert.True(t, api.IsInvalidSpec(err))
			assert.Empty(t, id)
			assert.Empty(t, m.List())
			assert.Equal(t, 0, fake.Calls(mock.OpCreateComputeUnit))
		})
	}
}

func TestSpawn_InvalidGeneratedID(t *testing.T) {
	m, fake := newTestManager(t, func(_ *config.Config, o *Options) {
		o.IDGenerator = sequentialIDs("Not_A_Label")
	})

	_, err := m.Spawn(context.Background(), fetchSpec())
	require.Error(t, err)
	assert.True(t, api.IsInvalidSpec(err))
	assert.Equal(t, 0, fake.JobCount())
}

func TestSpawn_RegeneratesTakenID(t *testing.T) {
	m, fake := newTestManager(t, func(_ *config.Config, o *Options) {
		o.IDGenerator = sequentialIDs("srv-dup", "srv-dup", "srv-new")
	})
	ctx := context.Background()

	first, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	second, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)

	assert.Equal(t, "srv-dup", first)
	assert.Equal(t, "srv-new", second)
	assert.Equal(t, 2, fake.JobCount())
}

func TestSpawn_ProxiedRuntime(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	id, err := m.Spawn(ctx, api.ServerSpec{Runtime: &api.Runtime{Exec: "uvx", Package: "mcp-server-fetch"}})
	require.NoError(t, err)

	h, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultProxyImage, h.Spec.Image)
	assert.EqualValues(t, 8080, h.Spec.Port)

	fake.MarkReady(id)
	endpoint, err := m.WaitUntilReady(ctx, id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "/sse", endpoint.Path)
	assert.Equal(t, "http://"+id+".svc:8080/sse", endpoint.URL())
}

func TestSpawn_NotBoundToCallerContext(t *testing.T) {
	m, fake := newTestManager(t)
	fake.SetLatency(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	assert.True(t, fake.HasJob(id))
	assert.True(t, fake.HasService(id))
}

func TestStatus_UnknownID(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Status(context.Background(), "srv-missing")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
}

func TestStatus_TracksPhases(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)

	fake.SetPhase(id, cluster.PhaseRunning, "")
	h, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.StateWaiting, h.State)
	assert.False(t, h.LastObservedAt.IsZero())

	// A pod losing readiness must not move the server backwards.
	fake.MarkReady(id)
	_, err = m.Status(ctx, id)
	require.NoError(t, err)
	fake.SetPhase(id, cluster.PhaseRunning, "")
	h, err = m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.StateReady, h.State)
}

func TestStatus_JobDisappeared(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	require.NoError(t, fake.DeleteComputeUnit(ctx, id))

	h, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.StateFailed, h.State)
	assert.Contains(t, h.LastError, "disappeared")
}

func TestStatus_RecreatesMissingService(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	require.NoError(t, fake.DeleteEndpoint(ctx, id))
	fake.MarkReady(id)

	h, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.StateWaiting, h.State)
	assert.True(t, fake.HasService(id))

	h, err = m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.StateReady, h.State)
}

func TestStatus_RecordsTransientErrors(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		fake.FailNext(mock.OpGetStatus, mock.TransientError())
	}

	h, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.StatePending, h.State)
	assert.Contains(t, h.LastError, string(api.KindTransient))
}

func TestTouch(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	assert.True(t, api.IsNotFound(m.Touch("srv-missing")))

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	assert.True(t, api.IsNotReady(m.Touch(id)))

	fake.MarkReady(id)
	_, err = m.Status(ctx, id)
	require.NoError(t, err)

	before, _ := m.Get(id)
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, m.Touch(id))

	after, _ := m.Get(id)
	assert.Equal(t, api.StateRunning, after.State)
	assert.True(t, after.LastActivityAt.After(before.LastActivityAt))
}

func TestListAndHandles(t *testing.T) {
	m, _ := newTestManager(t, func(_ *config.Config, o *Options) {
		o.IDGenerator = sequentialIDs("srv-a", "srv-b")
	})
	ctx := context.Background()

	spec := fetchSpec()
	spec.Env = map[string]string{"TOKEN": "x"}
	_, err := m.Spawn(ctx, spec)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)

	assert.Equal(t, []api.ServerSummary{
		{ID: "srv-a", State: api.StatePending},
		{ID: "srv-b", State: api.StatePending},
	}, m.List())

	handles := m.Handles()
	require.Len(t, handles, 2)

	// Handles are copies.
	handles[0].Spec.Env["TOKEN"] = "changed"
	handles[0].State = api.StateDeleted
	h, err := m.Get("srv-a")
	require.NoError(t, err)
	assert.Equal(t, "x", h.Spec.Env["TOKEN"])
	assert.Equal(t, api.StatePending, h.State)
}

func TestSubscribeToStateChanges(t *testing.T) {
	emitter := &recordingEmitter{}
	m, fake := newTestManager(t, func(_ *config.Config, o *Options) {
		o.Events = emitter
	})
	ctx := context.Background()
	ch := m.SubscribeToStateChanges()

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	fake.MarkReady(id)
	_, err = m.WaitUntilReady(ctx, id, time.Second)
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, id))

	want := []api.State{api.StatePending, api.StateReady, api.StateRunning, api.StateTerminating, api.StateDeleted}
	assert.Equal(t, want, emitter.statesFor(id))

	seen := map[string]bool{}
	for range want {
		select {
		case ev := <-ch:
			assert.Equal(t, id, ev.ServerID)
			assert.NotEmpty(t, ev.EventID)
			assert.False(t, seen[ev.EventID], "event ids must be unique")
			seen[ev.EventID] = true
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("missing state change event")
		}
	}
}

func TestReadyLatencyRecorded(t *testing.T) {
	rec := &countingRecorder{}
	m, fake := newTestManager(t, func(_ *config.Config, o *Options) {
		o.Metrics = rec
	})
	ctx := context.Background()

	id, err := m.Spawn(ctx, fetchSpec())
	require.NoError(t, err)
	fake.MarkReady(id)
	_, err = m.WaitUntilReady(ctx, id, time.Second)
	require.NoError(t, err)

	// A second wait does not observe readiness again.
	_, err = m.WaitUntilReady(ctx, id, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.readyObserved.Load())
}
