// Package lifecycle owns the registry of ephemeral MCP servers and drives each
// one through its state machine:
//
//	Pending -> Waiting -> Ready -> Running -> Terminating -> Deleted
//	   \          \          \        \
//	    +----------+----------+--------+--> Failed
//
// Pending, Waiting, Ready and Running may also move straight to Terminating
// when a caller or the reaper deletes the server. Deleted and Failed are
// absorbing.
//
// # Concurrency
//
// The registry map is guarded by its own RWMutex that is only held for
// insert, lookup and removal. Every entry carries two locks:
//   - op serializes lifecycle operations on one server and is held across
//     control-plane calls (create, status polls, delete),
//   - mu guards the handle fields and is only held to copy or update them,
//     so List, Get and the reaper never wait behind network I/O.
//
// Concurrent Delete calls for one id share a single delete sequence through
// singleflight; later calls observe Deleted and return immediately.
//
// # Control-plane errors
//
// Calls that fail with a Transient error are retried with the configured
// exponential backoff. Backoff waits end early when the caller's context ends,
// and WaitUntilReady bounds them by its own deadline. Once the attempts are
// exhausted the Transient error is returned to the caller and recorded as the
// handle's last error. All other kinds are returned without retry.
//
// # Reaper
//
// Start runs ReapExpired every reapInterval. It deletes servers whose
// MaxLifetime (since creation) or IdleTimeout (since the last handed out
// endpoint or Touch) has elapsed, and evicts Deleted or Failed entries once
// they have been terminal for terminalRetention.
package lifecycle
