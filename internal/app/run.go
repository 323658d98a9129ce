package app

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"ephemcp/pkg/logging"
)

// shutdownGrace is added to the delete timeout when bounding shutdown.
const shutdownGrace = 10 * time.Second

// runServer starts the services, blocks until ctx is done and then shuts
// everything down in reverse order.
func runServer(ctx context.Context, s *Services) error {
	if err := s.Manager.Start(ctx); err != nil {
		logging.Error("App", err, "Failed to start lifecycle manager")
		return err
	}

	if err := s.Server.Start(ctx); err != nil {
		logging.Error("App", err, "Failed to start MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		return errors.Join(err, s.Manager.Shutdown(shutdownCtx), s.Events.Close(shutdownCtx))
	}

	var g errgroup.Group
	if s.Presets.Dir() != "" && s.Settings.Presets.Watch {
		g.Go(func() error {
			if err := s.Presets.Watch(ctx, 0, nil); err != nil {
				logging.Error("App", err, "Preset watcher stopped")
			}
			return nil
		})
	}

	notify(daemon.SdNotifyReady)
	logging.Info("App", "ephemcp is ready (transport %s). Press Ctrl+C to stop.", s.Settings.Server.Transport)

	<-ctx.Done()

	notify(daemon.SdNotifyStopping)
	logging.Info("App", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	var errs []error
	if err := s.Server.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := s.Manager.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := s.Events.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	if dropped := s.Events.Dropped(); dropped > 0 {
		logging.Warn("App", "Dropped %d lifecycle event(s) because the event queue was full", dropped)
	}
	return errors.Join(errs...)
}

func (s *Services) shutdownTimeout() time.Duration {
	return s.Settings.Lifecycle.DeleteTimeout + shutdownGrace
}

// notify sends a state to systemd when running under a unit with
// Type=notify. Outside systemd it is a no-op.
func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("App", "Failed to notify systemd (%s): %v", state, err)
		return
	}
	if sent {
		logging.Debug("App", "Notified systemd: %s", state)
	}
}
