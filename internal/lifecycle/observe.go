package lifecycle

import (
	"context"
	"fmt"
	"time"

	"ephemcp/internal/api"
	"ephemcp/internal/cluster"
	"ephemcp/pkg/logging"
)

// observe performs one poll of the cluster for e and applies what it sees.
// Callers hold e.op.
func (m *Manager) observe(ctx context.Context, e *entry) error {
	h := e.snapshot()
	if h.State.IsTerminal() || h.State == api.StateTerminating {
		return nil
	}

	var status cluster.ComputeUnitStatus
	err := m.call(ctx, "GetComputeUnitStatus", func(ctx context.Context) error {
		var err error
		status, err = m.client.GetComputeUnitStatus(ctx, h.ComputeUnitName)
		return err
	})
	if api.IsNotFound(err) {
		failure := api.NewWorkloadFailedError(h.ID, fmt.Sprintf("job %s disappeared", h.ComputeUnitName))
		m.transition(e, api.StateFailed, "job missing", failure)
		return nil
	}
	if err != nil {
		err = withServer(err, h.ID)
		m.recordError(e, err)
		return err
	}

	now := m.clock.Now()
	e.update(func(h *api.ServerHandle) { h.LastObservedAt = now })

	switch status.Phase {
	case cluster.PhasePending:
	case cluster.PhaseRunning:
		m.transition(e, api.StateWaiting, "pod running", nil)
	case cluster.PhaseReady:
		return m.observeEndpoint(ctx, e, h)
	case cluster.PhaseFailed, cluster.PhaseSucceeded:
		reason := status.Message
		if reason == "" {
			reason = fmt.Sprintf("job %s", status.Phase)
		}
		m.transition(e, api.StateFailed, "workload exited", api.NewWorkloadFailedError(h.ID, reason))
	}
	return nil
}

// observeEndpoint completes the move to Ready once the Service resolves. A
// missing Service is recreated; the entry waits for the next poll.
func (m *Manager) observeEndpoint(ctx context.Context, e *entry, h api.ServerHandle) error {
	if h.State.IsReady() {
		return nil
	}

	err := m.call(ctx, "GetEndpointAddress", func(ctx context.Context) error {
		_, err := m.client.GetEndpointAddress(ctx, h.EndpointName)
		return err
	})
	if api.IsNotFound(err) {
		m.transition(e, api.StateWaiting, "pod ready, service missing", nil)
		logging.Warn("Lifecycle", "Service %s for server %s is missing, recreating", h.EndpointName, h.ID)
		return m.recreateEndpoint(ctx, e, h)
	}
	if err != nil {
		err = withServer(err, h.ID)
		m.recordError(e, err)
		return err
	}

	ready := h
	ready.State = api.StateReady
	endpoint, err := m.resolver.Resolve(ready)
	if err != nil {
		m.recordError(e, err)
		return err
	}

	if m.transition(e, api.StateReady, "pod ready", nil) {
		e.update(func(h *api.ServerHandle) {
			h.Endpoint = &endpoint
			h.LastError = ""
		})
		m.metrics.ReadyLatency(m.clock.Since(h.CreatedAt))
	}
	return nil
}

func (m *Manager) recreateEndpoint(ctx context.Context, e *entry, h api.ServerHandle) error {
	_, svc, err := m.translator.Build(specForBuild(h.Spec), h.ID)
	if err != nil {
		m.recordError(e, err)
		return err
	}
	err = m.call(ctx, "CreateEndpoint", func(ctx context.Context) error {
		return m.client.CreateEndpoint(ctx, svc)
	})
	if err != nil {
		err = withServer(err, h.ID)
		m.recordError(e, err)
	}
	return err
}

// specForBuild undoes the proxy normalization of a stored spec so Build can
// apply it again.
func specForBuild(spec api.ServerSpec) api.ServerSpec {
	out := copySpec(spec)
	if out.IsProxied() {
		out.Command = nil
		out.Args = nil
	}
	return out
}

// WaitUntilReady polls the server every pollInterval until it is Ready, then
// marks it Running and returns its endpoint. A timeout of zero uses the
// configured readyTimeout.
//
// It fails with ReadinessTimeout when the server is not Ready once timeout
// has elapsed, WorkloadFailed when the workload failed, NotReady when the
// server is being or has been deleted, and with ctx's error when ctx ends.
// None of these delete the server.
func (m *Manager) WaitUntilReady(ctx context.Context, id string, timeout time.Duration) (endpoint api.Endpoint, err error) {
	defer func() {
		if ctx.Err() == nil {
			m.metrics.Operation(opWait, err)
		}
	}()

	e, ok := m.registry.get(id)
	if !ok {
		return api.Endpoint{}, api.NewServerNotFoundError(id)
	}
	if timeout <= 0 {
		timeout = m.cfg.ReadyTimeout
	}

	// Polls and their retries run under waitCtx so a slow control plane
	// cannot hold the caller past the deadline.
	deadline := m.clock.Now().Add(timeout)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if err := ctx.Err(); err != nil {
			return api.Endpoint{}, err
		}

		endpoint, done, err := m.poll(waitCtx, e)
		if ctx.Err() != nil {
			return api.Endpoint{}, ctx.Err()
		}
		if err != nil && (waitCtx.Err() == nil || api.IsWorkloadFailed(err) || api.IsNotReady(err)) {
			return api.Endpoint{}, err
		}
		if done && err == nil {
			return endpoint, nil
		}

		remaining := deadline.Sub(m.clock.Now())
		if remaining <= 0 || waitCtx.Err() != nil {
			return api.Endpoint{}, m.readinessTimeout(e, timeout)
		}

		if !m.sleep(waitCtx, min(m.cfg.PollInterval, remaining)) && ctx.Err() != nil {
			return api.Endpoint{}, ctx.Err()
		}
	}
}

func (m *Manager) readinessTimeout(e *entry, timeout time.Duration) error {
	h := e.snapshot()
	err := api.NewReadinessTimeoutError(h.ID, h.State, timeout)
	m.recordError(e, err)
	return err
}

// poll runs one observation under the entry lock and reports whether waiting
// is over.
func (m *Manager) poll(ctx context.Context, e *entry) (api.Endpoint, bool, error) {
	e.op.Lock()
	defer e.op.Unlock()

	if err := m.observe(ctx, e); err != nil {
		return api.Endpoint{}, true, err
	}

	h := e.snapshot()
	switch {
	case h.State.IsReady():
		if h.Endpoint == nil {
			endpoint, err := m.resolver.Resolve(h)
			if err != nil {
				return api.Endpoint{}, true, err
			}
			e.update(func(h *api.ServerHandle) { h.Endpoint = &endpoint })
		}
		m.markInUse(e)
		return *e.snapshot().Endpoint, true, nil
	case h.State == api.StateFailed:
		cause := e.failure()
		if api.IsWorkloadFailed(cause) {
			return api.Endpoint{}, true, cause
		}
		return api.Endpoint{}, true, api.NewError(api.KindWorkloadFailed, cause, "server failed").WithServer(h.ID)
	case h.State == api.StateTerminating || h.State == api.StateDeleted:
		return api.Endpoint{}, true, api.NewNotReadyError(h.ID, h.State)
	}
	return api.Endpoint{}, false, nil
}
