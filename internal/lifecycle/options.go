package lifecycle

import (
	"fmt"

	"k8s.io/utils/clock"

	"ephemcp/internal/api"
	"ephemcp/internal/config"
	"ephemcp/internal/metrics"
	"ephemcp/internal/resolver"
	"ephemcp/internal/workload"
)

// Emitter receives state changes for external delivery. events.Bus
// implements it.
type Emitter interface {
	Emit(ev api.StateChangeEvent) bool
}

// IDGenerator returns a fresh logical server id.
type IDGenerator func() string

// Options configures a Manager.
type Options struct {
	// Translator and Resolver are required.
	Translator *workload.Translator
	Resolver   *resolver.Resolver

	Config      config.LifecycleConfig
	Clock       clock.WithTicker
	IDGenerator IDGenerator
	Metrics     metrics.Recorder
	Events      Emitter
}

func (o *Options) setDefaults() error {
	if o.Translator == nil {
		return fmt.Errorf("lifecycle: translator is required")
	}
	if o.Resolver == nil {
		return fmt.Errorf("lifecycle: resolver is required")
	}

	defaults := config.GetDefaultConfig().Lifecycle
	if o.Config.PollInterval <= 0 {
		o.Config.PollInterval = defaults.PollInterval
	}
	if o.Config.ReadyTimeout <= 0 {
		o.Config.ReadyTimeout = defaults.ReadyTimeout
	}
	if o.Config.CreateTimeout <= 0 {
		o.Config.CreateTimeout = defaults.CreateTimeout
	}
	if o.Config.DeleteTimeout <= 0 {
		o.Config.DeleteTimeout = defaults.DeleteTimeout
	}
	if o.Config.ReapInterval <= 0 {
		o.Config.ReapInterval = defaults.ReapInterval
	}
	if o.Config.TerminalRetention <= 0 {
		o.Config.TerminalRetention = defaults.TerminalRetention
	}
	if o.Config.Backoff.Steps <= 0 {
		o.Config.Backoff = defaults.Backoff
	}
	if o.Config.IDPrefix == "" {
		o.Config.IDPrefix = defaults.IDPrefix
	}

	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.IDGenerator == nil {
		prefix := o.Config.IDPrefix
		o.IDGenerator = func() string { return workload.GenerateID(prefix) }
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	return nil
}
