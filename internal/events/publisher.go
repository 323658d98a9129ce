package events

import (
	"context"
	"errors"

	"ephemcp/internal/api"
)

// Publisher delivers state changes to one sink.
type Publisher interface {
	Publish(ctx context.Context, ev api.StateChangeEvent) error
	Close() error
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, api.StateChangeEvent) error { return nil }
func (NopPublisher) Close() error                                        { return nil }

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, ev api.StateChangeEvent) error

func (f PublisherFunc) Publish(ctx context.Context, ev api.StateChangeEvent) error { return f(ctx, ev) }
func (f PublisherFunc) Close() error                                             { return nil }

// multiPublisher fans out to several publishers.
type multiPublisher []Publisher

// Multi returns a Publisher that publishes to every p in order. Errors are
// joined; one failing sink does not stop delivery to the others.
func Multi(publishers ...Publisher) Publisher {
	var out multiPublisher
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return NopPublisher{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multiPublisher) Publish(ctx context.Context, ev api.StateChangeEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
