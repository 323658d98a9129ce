// Package logging provides the structured logging facade used throughout ephemcp.
//
// It is a thin layer over log/slog. Every record carries a subsystem attribute
// and, for errors, an error attribute, so output can be filtered per component:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Lifecycle", "Spawned server %s (image %s)", id, spec.Image)
//	logging.Debug("Reaper", "Scanning %d entries", n)
//	logging.Warn("Cluster", "Namespace %s has no managed workloads", ns)
//	logging.Error("Lifecycle", err, "Failed to delete server %s", id)
//
// Subsystems in use: App, CLI, Cluster, Events, Lifecycle, Presets, Reaper,
// Reconcile, Server.
//
// # Controller-Runtime Integration
//
// Init also installs the same handler as the controller-runtime logger, so the
// Kubernetes client does not warn about an uninitialized logger and its output
// follows the configured level and format.
//
// All functions are safe for concurrent use.
package logging
