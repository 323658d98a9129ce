// Package metrics exposes lifecycle metrics in the Prometheus format.
//
// The lifecycle manager reports through the Recorder interface. The
// Prometheus implementation keeps its collectors in a private registry, so
// several managers can coexist in one process (tests) and Handler serves only
// ephemcp's own series plus the Go and process collectors.
//
// Series:
//
//	ephemcp_servers{state}                      gauge of registry entries per state
//	ephemcp_transitions_total{from,to}          lifecycle transitions
//	ephemcp_operations_total{operation,result}  Spawn/WaitUntilReady/Delete outcomes
//	ephemcp_ready_seconds                       time from Spawn to Ready
//	ephemcp_control_plane_retries_total{op}     retried transient control-plane calls
//	ephemcp_reaped_total{reason}                servers deleted by the reaper
package metrics
