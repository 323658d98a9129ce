// Package events distributes lifecycle state changes to external sinks.
//
// The lifecycle manager emits an api.StateChangeEvent for every transition.
// A Bus queues those events and delivers them from a single goroutine to the
// configured Publishers, so a slow sink never blocks a lifecycle operation.
// When the queue is full the event is dropped and a warning is logged.
//
// Available publishers:
//   - NATSPublisher publishes each event as JSON on a NATS subject.
//   - KubernetesRecorder records a core/v1 Event on the server's Job.
//   - NopPublisher discards everything.
//
// Human readable messages are rendered by a MessageTemplateEngine that maps
// each EventReason to a text/template.
package events
