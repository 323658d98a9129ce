package lifecycle

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ephemcp/internal/api"
	"ephemcp/pkg/logging"
)

// Reap reasons, also used as metric labels.
const (
	ReasonMaxLifetime = "max-lifetime"
	ReasonIdle        = "idle"
	ReasonRetry       = "retry"
)

type reapAction struct {
	id     string
	reason string
	evict  bool
}

// ReapExpired deletes servers past their lifetime or idle budget, resumes
// stuck deletions and evicts entries that have been terminal longer than
// terminalRetention. It returns the number of servers it deleted or evicted.
func (m *Manager) ReapExpired(ctx context.Context) int {
	now := m.clock.Now()

	var actions []reapAction
	for _, e := range m.registry.all() {
		if action, ok := m.reapDecision(e, now); ok {
			actions = append(actions, action)
		}
	}

	reaped := 0
	for _, a := range actions {
		if ctx.Err() != nil {
			break
		}
		if a.evict {
			if m.evict(ctx, a.id) {
				reaped++
			}
			continue
		}

		logging.Info("Lifecycle", "Reaping server %s (%s)", a.id, a.reason)
		if err := m.delete(ctx, a.id, a.reason); err != nil {
			logging.Error("Lifecycle", err, "Reaper failed to delete server %s", a.id)
			continue
		}
		m.metrics.Reaped(a.reason)
		reaped++
	}
	return reaped
}

func (m *Manager) reapDecision(e *entry, now time.Time) (reapAction, bool) {
	e.mu.RLock()
	h := e.handle
	terminalAt := e.terminalAt
	e.mu.RUnlock()

	switch {
	case h.State.IsTerminal():
		if now.Sub(terminalAt) >= m.cfg.TerminalRetention {
			return reapAction{id: h.ID, evict: true}, true
		}
	case h.State == api.StateTerminating:
		// A delete in flight holds op; only resume ones that gave up.
		if e.op.TryLock() {
			e.op.Unlock()
			return reapAction{id: h.ID, reason: ReasonRetry}, true
		}
	case h.Spec.MaxLifetime > 0 && now.Sub(h.CreatedAt) >= h.Spec.MaxLifetime:
		return reapAction{id: h.ID, reason: ReasonMaxLifetime}, true
	case h.Spec.IdleTimeout > 0 && h.State.IsReady() && now.Sub(h.LastActivityAt) >= h.Spec.IdleTimeout:
		return reapAction{id: h.ID, reason: ReasonIdle}, true
	}
	return reapAction{}, false
}

// evict drops a terminal entry from the registry. Objects left behind by a
// Failed server are removed first; the entry stays if that fails.
func (m *Manager) evict(ctx context.Context, id string) bool {
	e, ok := m.registry.get(id)
	if !ok {
		return false
	}
	state := e.state()
	if state == api.StateFailed {
		if err := m.delete(ctx, id, "evict"); err != nil {
			logging.Warn("Lifecycle", "Keeping failed server %s, cleanup failed: %v", id, err)
			return false
		}
	}

	m.registry.remove(id)
	m.metrics.Transition(state, "")
	logging.Debug("Lifecycle", "Evicted %s server %s from registry", state, id)
	return true
}

// Start reconciles the registry with the cluster and runs the reaper until
// ctx is done or Shutdown is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	adopted, err := m.Reconcile(ctx)
	if err != nil {
		logging.Warn("Lifecycle", "Initial reconciliation failed: %v", err)
	} else if adopted > 0 {
		logging.Info("Lifecycle", "Adopted %d existing server(s) from the cluster", adopted)
	}

	ticker := m.clock.NewTicker(m.cfg.ReapInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C():
				if n := m.ReapExpired(loopCtx); n > 0 {
					logging.Debug("Lifecycle", "Reaper removed %d server(s)", n)
				}
			}
		}
	}()

	logging.Info("Lifecycle", "Started lifecycle manager (reap interval %s)", m.cfg.ReapInterval)
	return nil
}

// Shutdown stops the reaper and, when cleanupOnShutdown is set, deletes every
// server that is not terminal yet.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !m.cfg.CleanupOnShutdown {
		return nil
	}

	var g errgroup.Group
	for _, h := range m.Handles() {
		if h.State.IsTerminal() {
			continue
		}
		id := h.ID
		g.Go(func() error {
			return m.delete(ctx, id, "shutdown")
		})
	}
	if err := g.Wait(); err != nil {
		logging.Error("Lifecycle", err, "Failed to clean up servers on shutdown")
		return err
	}
	logging.Info("Lifecycle", "Lifecycle manager stopped")
	return nil
}
