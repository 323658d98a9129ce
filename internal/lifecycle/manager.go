package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"ephemcp/internal/api"
	"ephemcp/internal/cluster"
	"ephemcp/internal/config"
	"ephemcp/internal/metrics"
	"ephemcp/internal/resolver"
	"ephemcp/internal/workload"
	"ephemcp/pkg/logging"
)

const (
	opSpawn  = "spawn"
	opWait   = "wait"
	opDelete = "delete"

	// maxIDAttempts bounds regeneration when a generated id is taken.
	maxIDAttempts = 5
)

// Manager is the lifecycle manager. It is safe for concurrent use.
type Manager struct {
	client     cluster.Client
	translator *workload.Translator
	resolver   *resolver.Resolver
	namer      workload.Namer
	cfg        config.LifecycleConfig
	backoff    wait.Backoff
	clock      clock.WithTicker
	newID      IDGenerator
	metrics    metrics.Recorder
	events     Emitter

	registry *registry
	deletes  singleflight.Group

	mu          sync.RWMutex
	subscribers []chan api.StateChangeEvent
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager creates a manager driving servers through client.
func NewManager(client cluster.Client, opts Options) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("lifecycle: cluster client is required")
	}
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}

	return &Manager{
		client:     client,
		translator: opts.Translator,
		resolver:   opts.Resolver,
		namer:      opts.Translator.Namer(),
		cfg:        opts.Config,
		backoff:    backoffFrom(opts.Config.Backoff),
		clock:      opts.Clock,
		newID:      opts.IDGenerator,
		metrics:    opts.Metrics,
		events:     opts.Events,
		registry:   newRegistry(),
	}, nil
}

// Config returns the effective lifecycle configuration.
func (m *Manager) Config() config.LifecycleConfig {
	return m.cfg
}

// Spawn validates spec, registers a Pending entry and creates the Job and
// Service. It returns once both objects were accepted by the control plane;
// readiness is observed by WaitUntilReady and Status.
//
// Once creation has started it is no longer bound to ctx. If it fails the
// partially created objects are deleted on a best-effort basis, the entry is
// marked Failed and both the id and the error are returned so the caller can
// inspect the entry.
func (m *Manager) Spawn(ctx context.Context, spec api.ServerSpec) (id string, err error) {
	defer func() { m.metrics.Operation(opSpawn, err) }()

	if err := m.translator.Validate(spec); err != nil {
		return "", err
	}

	e, job, svc, err := m.register(spec)
	if err != nil {
		return "", err
	}
	defer e.op.Unlock()
	h := e.snapshot()
	id = h.ID

	createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CreateTimeout)
	defer cancel()

	err = m.call(createCtx, "CreateComputeUnit", func(ctx context.Context) error {
		return m.client.CreateComputeUnit(ctx, job)
	})
	if err == nil {
		err = m.call(createCtx, "CreateEndpoint", func(ctx context.Context) error {
			return m.client.CreateEndpoint(ctx, svc)
		})
	}
	if err != nil {
		logging.Error("Lifecycle", err, "Failed to create objects for server %s, cleaning up", id)
		if cleanupErr := m.deleteObjects(createCtx, h); cleanupErr != nil {
			logging.Warn("Lifecycle", "Compensating delete for server %s incomplete: %v", id, cleanupErr)
		}
		err = withServer(err, id)
		m.transition(e, api.StateFailed, "create failed", err)
		return id, err
	}

	logging.Info("Lifecycle", "Spawned server %s (image %s, port %d)", id, h.Spec.Image, h.Spec.Port)
	return id, nil
}

// register builds the objects for a fresh id and inserts a Pending entry
// whose op lock is held by the caller.
func (m *Manager) register(spec api.ServerSpec) (*entry, *batchv1.Job, *corev1.Service, error) {
	normalized := m.translator.Normalize(spec)

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := m.newID()
		job, svc, err := m.translator.Build(spec, id)
		if err != nil {
			return nil, nil, nil, err
		}

		now := m.clock.Now()
		e := &entry{handle: api.ServerHandle{
			ID:              id,
			State:           api.StatePending,
			Spec:            copySpec(normalized),
			Namespace:       m.translator.Namespace(),
			ComputeUnitName: m.namer.ComputeUnitName(id),
			EndpointName:    m.namer.EndpointName(id),
			CreatedAt:       now,
			LastActivityAt:  now,
		}}
		e.op.Lock()
		if !m.registry.insert(e) {
			e.op.Unlock()
			logging.Debug("Lifecycle", "Generated id %s already in use, retrying", id)
			continue
		}

		m.metrics.Transition("", api.StatePending)
		m.publish(api.StateChangeEvent{ServerID: id, To: api.StatePending, Reason: "spawn"})
		return e, job, svc, nil
	}
	return nil, nil, nil, api.NewPermanentError(nil, "could not allocate a unique server id after %d attempts", maxIDAttempts)
}

// Get returns a snapshot of the entry without contacting the cluster.
func (m *Manager) Get(id string) (api.ServerHandle, error) {
	e, ok := m.registry.get(id)
	if !ok {
		return api.ServerHandle{}, api.NewServerNotFoundError(id)
	}
	return e.snapshot(), nil
}

// Status refreshes the entry with one observation of the cluster and returns
// the resulting snapshot. When another operation currently holds the entry
// the last known snapshot is returned instead. Observation errors are
// recorded in the handle, not returned.
func (m *Manager) Status(ctx context.Context, id string) (api.ServerHandle, error) {
	e, ok := m.registry.get(id)
	if !ok {
		return api.ServerHandle{}, api.NewServerNotFoundError(id)
	}

	if e.op.TryLock() {
		if err := m.observe(ctx, e); err != nil && ctx.Err() == nil {
			logging.Debug("Lifecycle", "Status refresh for %s failed: %v", id, err)
		}
		e.op.Unlock()
	}
	return e.snapshot(), nil
}

// List returns the id and state of every registered server.
func (m *Manager) List() []api.ServerSummary {
	entries := m.registry.all()
	out := make([]api.ServerSummary, 0, len(entries))
	for _, e := range entries {
		h := e.snapshot()
		out = append(out, api.ServerSummary{ID: h.ID, State: h.State})
	}
	return out
}

// Handles returns snapshots of every registered server.
func (m *Manager) Handles() []api.ServerHandle {
	entries := m.registry.all()
	out := make([]api.ServerHandle, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	return out
}

// Touch records caller activity on a server, resetting its idle timer. A Ready
// server becomes Running.
func (m *Manager) Touch(id string) error {
	e, ok := m.registry.get(id)
	if !ok {
		return api.NewServerNotFoundError(id)
	}

	e.op.Lock()
	defer e.op.Unlock()

	state := e.state()
	if !state.IsReady() {
		return api.NewNotReadyError(id, state)
	}
	m.markInUse(e)
	return nil
}

// markInUse moves a Ready entry to Running and stamps activity. Callers hold e.op.
func (m *Manager) markInUse(e *entry) {
	m.transition(e, api.StateRunning, "endpoint handed out", nil)
	now := m.clock.Now()
	e.update(func(h *api.ServerHandle) { h.LastActivityAt = now })
}

// SubscribeToStateChanges returns a channel for state change events. Events
// are dropped for subscribers that do not keep up.
func (m *Manager) SubscribeToStateChanges() <-chan api.StateChangeEvent {
	ch := make(chan api.StateChangeEvent, 100)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// transition moves e to state to if the state machine allows it. cause, when
// set, becomes the handle's last error. Callers hold e.op.
func (m *Manager) transition(e *entry, to api.State, reason string, cause error) bool {
	now := m.clock.Now()

	e.mu.Lock()
	from := e.handle.State
	if !from.CanTransitionTo(to) {
		e.mu.Unlock()
		if from != to {
			logging.Debug("Lifecycle", "Ignoring transition %s -> %s for %s", from, to, e.handle.ID)
		}
		return false
	}
	e.handle.State = to
	if cause != nil {
		e.handle.LastError = cause.Error()
	}
	if to.IsTerminal() {
		e.terminalAt = now
	}
	if to == api.StateFailed {
		e.cause = cause
	}
	id := e.handle.ID
	e.mu.Unlock()

	logging.Info("Lifecycle", "Server %s: %s -> %s (%s)", id, from, to, reason)
	m.metrics.Transition(from, to)

	ev := api.StateChangeEvent{ServerID: id, From: from, To: to, Reason: reason, Timestamp: now}
	if cause != nil {
		ev.Error = cause.Error()
	}
	m.publish(ev)
	return true
}

// recordError stores err as the last error without changing state.
func (m *Manager) recordError(e *entry, err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	e.update(func(h *api.ServerHandle) { h.LastError = err.Error() })
}

func (m *Manager) publish(ev api.StateChangeEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.clock.Now()
	}

	if m.events != nil {
		m.events.Emit(ev)
	}

	m.mu.RLock()
	subscribers := make([]chan api.StateChangeEvent, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- ev:
		default:
			logging.Debug("Lifecycle", "Subscriber blocked, skipping event for server %s", ev.ServerID)
		}
	}
}

// withServer tags err with the server id when it is an *api.Error.
func withServer(err error, id string) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.ServerID == "" {
		return apiErr.WithServer(id)
	}
	return err
}
