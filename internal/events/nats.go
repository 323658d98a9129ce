package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"ephemcp/internal/api"
	"ephemcp/pkg/logging"
)

// NATSPublisher publishes state changes as JSON messages.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to url. Messages are published on
// "<subject>.<serverID>".
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("ephemcp"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn("Events", "NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("Events", "NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Subject returns the subject events for serverID are published on.
func (p *NATSPublisher) Subject(serverID string) string {
	return p.subject + "." + serverID
}

func (p *NATSPublisher) Publish(_ context.Context, ev api.StateChangeEvent) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.EventID, err)
	}
	return p.nc.Publish(p.Subject(ev.ServerID), payload)
}

func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	p.nc.Close()
	return err
}
