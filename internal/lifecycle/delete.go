package lifecycle

import (
	"context"
	"errors"

	"ephemcp/internal/api"
	"ephemcp/internal/workload"
	"ephemcp/pkg/logging"
)

// Delete removes the server's Service, then its Job, and marks the entry
// Deleted once both are confirmed gone. It is idempotent: deleting a Deleted
// server succeeds without contacting the cluster, and concurrent calls for
// one id share a single delete sequence.
//
// A well-formed id that is not registered is treated as an orphan: objects
// with the derived names are deleted if they exist. A Failed entry keeps its
// state; only its objects are removed. When deletion fails the entry stays
// Terminating and a later Delete resumes it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.delete(ctx, id, "delete requested")
}

func (m *Manager) delete(ctx context.Context, id, reason string) (err error) {
	defer func() {
		if ctx.Err() == nil {
			m.metrics.Operation(opDelete, err)
		}
	}()

	if err := workload.ValidateID(id); err != nil {
		return err
	}

	key := id
	e, ok := m.registry.get(id)
	if !ok {
		key = "orphan/" + id
	}

	// The shared sequence must not be aborted when the first caller gives up.
	result := m.deletes.DoChan(key, func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.DeleteTimeout)
		defer cancel()
		if !ok {
			return nil, m.deleteOrphan(opCtx, id)
		}
		return nil, m.deleteEntry(opCtx, e, reason)
	})

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) deleteEntry(ctx context.Context, e *entry, reason string) error {
	e.op.Lock()
	defer e.op.Unlock()

	h := e.snapshot()
	switch h.State {
	case api.StateDeleted:
		return nil
	case api.StateFailed:
		if err := m.deleteObjects(ctx, h); err != nil {
			err = withServer(err, h.ID)
			logging.Warn("Lifecycle", "Cleanup of failed server %s incomplete: %v", h.ID, err)
			return err
		}
		logging.Info("Lifecycle", "Removed objects of failed server %s", h.ID)
		return nil
	case api.StateTerminating:
		logging.Info("Lifecycle", "Resuming deletion of server %s", h.ID)
	default:
		m.transition(e, api.StateTerminating, reason, nil)
	}

	if err := m.deleteObjects(ctx, h); err != nil {
		err = withServer(err, h.ID)
		m.recordError(e, err)
		logging.Error("Lifecycle", err, "Failed to delete server %s", h.ID)
		return err
	}

	m.transition(e, api.StateDeleted, reason, nil)
	e.update(func(h *api.ServerHandle) { h.Endpoint = nil })
	return nil
}

func (m *Manager) deleteOrphan(ctx context.Context, id string) error {
	h := api.ServerHandle{
		ID:              id,
		ComputeUnitName: m.namer.ComputeUnitName(id),
		EndpointName:    m.namer.EndpointName(id),
	}
	if err := m.deleteObjects(ctx, h); err != nil {
		return withServer(err, id)
	}
	logging.Debug("Lifecycle", "Delete of unregistered server %s completed", id)
	return nil
}

// deleteObjects deletes the Service, then the Job, and waits until both are
// gone. Missing objects count as deleted.
func (m *Manager) deleteObjects(ctx context.Context, h api.ServerHandle) error {
	err := m.call(ctx, "DeleteEndpoint", func(ctx context.Context) error {
		return m.client.DeleteEndpoint(ctx, h.EndpointName)
	})
	if err != nil {
		return err
	}
	err = m.call(ctx, "DeleteComputeUnit", func(ctx context.Context) error {
		return m.client.DeleteComputeUnit(ctx, h.ComputeUnitName)
	})
	if err != nil {
		return err
	}
	return m.confirmGone(ctx, h)
}

func (m *Manager) confirmGone(ctx context.Context, h api.ServerHandle) error {
	for {
		serviceGone, err := m.gone(ctx, "GetEndpointAddress", func(ctx context.Context) error {
			_, err := m.client.GetEndpointAddress(ctx, h.EndpointName)
			return err
		})
		if err != nil {
			return err
		}
		jobGone, err := m.gone(ctx, "GetComputeUnitStatus", func(ctx context.Context) error {
			_, err := m.client.GetComputeUnitStatus(ctx, h.ComputeUnitName)
			return err
		})
		if err != nil {
			return err
		}
		if serviceGone && jobGone {
			return nil
		}

		if !m.sleep(ctx, m.cfg.PollInterval) {
			return api.NewTransientError(ctx.Err(), "objects of server %s still present", h.ID)
		}
	}
}

func (m *Manager) gone(ctx context.Context, op string, get func(ctx context.Context) error) (bool, error) {
	err := m.call(ctx, op, get)
	switch {
	case err == nil:
		return false, nil
	case api.IsNotFound(err):
		return true, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return false, api.NewTransientError(err, "deletion not confirmed")
	default:
		return false, err
	}
}
