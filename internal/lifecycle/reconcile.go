package lifecycle

import (
	"context"

	"ephemcp/internal/api"
	"ephemcp/internal/cluster"
	"ephemcp/internal/workload"
	"ephemcp/pkg/logging"
)

// Reconcile adopts Jobs managed by ephemcp that are not in the registry,
// e.g. after a restart. Foreign Jobs and names that are not valid ids are
// skipped. Each adopted server is observed once so it lands in its current
// state. It returns the number of adopted servers.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	var units []cluster.ComputeUnitInfo
	err := m.call(ctx, "ListComputeUnits", func(ctx context.Context) error {
		var err error
		units, err = m.client.ListComputeUnits(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	adopted := 0
	for _, unit := range units {
		if ctx.Err() != nil {
			return adopted, ctx.Err()
		}
		if m.adopt(ctx, unit) {
			adopted++
		}
	}
	return adopted, nil
}

func (m *Manager) adopt(ctx context.Context, unit cluster.ComputeUnitInfo) bool {
	id := unit.ServerID
	if unit.Labels[workload.LabelManagedBy] != workload.ManagedByValue {
		return false
	}
	if err := workload.ValidateID(id); err != nil || m.namer.ComputeUnitName(id) != unit.Name {
		logging.Debug("Lifecycle", "Skipping job %s: not named after a server id", unit.Name)
		return false
	}
	if _, exists := m.registry.get(id); exists {
		return false
	}

	now := m.clock.Now()
	createdAt := unit.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	e := &entry{handle: api.ServerHandle{
		ID:              id,
		State:           api.StatePending,
		Spec:            workload.SpecFromAnnotations(unit.Annotations, unit.Image),
		Namespace:       m.translator.Namespace(),
		ComputeUnitName: unit.Name,
		EndpointName:    m.namer.EndpointName(id),
		CreatedAt:       createdAt,
		LastActivityAt:  now,
	}}
	e.op.Lock()
	defer e.op.Unlock()
	if !m.registry.insert(e) {
		return false
	}
	m.metrics.Transition("", api.StatePending)
	m.publish(api.StateChangeEvent{ServerID: id, To: api.StatePending, Reason: "adopted"})

	if unit.Phase.IsTerminal() {
		failure := api.NewWorkloadFailedError(id, "job "+string(unit.Phase)+" before adoption")
		m.transition(e, api.StateFailed, "adopted finished job", failure)
		return true
	}
	if err := m.observe(ctx, e); err != nil {
		logging.Warn("Lifecycle", "Observing adopted server %s failed: %v", id, err)
	}
	return true
}
