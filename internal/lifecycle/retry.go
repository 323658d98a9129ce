package lifecycle

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"ephemcp/internal/api"
	"ephemcp/internal/config"
	"ephemcp/pkg/logging"
)

func backoffFrom(cfg config.BackoffConfig) wait.Backoff {
	b := wait.Backoff{
		Duration: cfg.Initial,
		Factor:   cfg.Factor,
		Jitter:   cfg.Jitter,
		Steps:    cfg.Steps,
		Cap:      cfg.Cap,
	}
	if b.Steps < 1 {
		b.Steps = 1
	}
	return b
}

// call runs fn and retries it while it fails with a Transient error. Waits
// between attempts end as soon as ctx does, in which case the last error is
// returned without a further attempt. The last error is also returned once
// the backoff is exhausted.
func (m *Manager) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error
	attempt := 0
	err := wait.ExponentialBackoffWithContext(ctx, m.backoff, func(ctx context.Context) (bool, error) {
		last = fn(ctx)
		switch {
		case last == nil:
			return true, nil
		case !api.IsTransient(last) || ctx.Err() != nil:
			return false, last
		}
		attempt++
		m.metrics.Retry(op)
		logging.Debug("Lifecycle", "Retrying %s after transient error (attempt %d): %v", op, attempt, last)
		return false, nil
	})
	if err != nil && last != nil {
		return last
	}
	return err
}

// sleep waits for d on the manager's clock. It reports false if ctx ended first.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := m.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-ctx.Done():
		return false
	}
}
