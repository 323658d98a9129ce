// Package app bootstraps and runs the ephemcp server.
//
// # Bootstrap
//
// NewApplication performs the startup sequence used by `ephemcp serve`:
//
//  1. Configures logging from the debug, log-level and log-format flags
//  2. Loads config.yaml from the configuration directory (defaults when absent)
//  3. Applies command line overrides and validates the result
//  4. Initializes the services (see InitializeServices)
//
// # Services
//
// InitializeServices connects to the cluster and wires the components:
//
//   - cluster.KubernetesClient scoped to the configured namespace, which must exist
//   - workload.Translator and resolver.Resolver built from the configuration
//   - metrics.Prometheus registry, served on the MCP listener
//   - events.Bus fanning state changes out to NATS and Kubernetes Events when enabled
//   - presets.Catalog with the built-in presets and the optional user directory
//   - lifecycle.Manager driving the servers
//   - server.Server exposing the MCP tools
//
// NewServices accepts pre-built cluster dependencies so tests can run the whole
// stack against the in-memory fake from internal/testing/mock.
//
// # Run
//
// Application.Run starts the lifecycle manager (initial reconciliation and the
// reaper), the MCP transport and the preset watcher, notifies systemd that the
// service is ready, and blocks until the context is cancelled or SIGINT/SIGTERM
// arrives. Shutdown stops the transport first so no new servers are spawned,
// then shuts the manager down (deleting live servers when cleanupOnShutdown is
// set) and finally drains the event bus.
//
// Example:
//
//	cfg := app.NewConfig(false, "/home/me/.config/ephemcp")
//	cfg.Overrides.Namespace = "mcp"
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
