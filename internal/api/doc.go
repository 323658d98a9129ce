// Package api holds the data model shared by every ephemcp component: the
// caller-supplied ServerSpec, the read-only ServerHandle snapshots handed back
// by the lifecycle manager, the lifecycle State machine and the error taxonomy.
//
// The package has no dependencies on other internal packages so it can be
// imported from the resource translator, the cluster adapter, the lifecycle
// manager and the MCP front end alike.
//
// # Lifecycle States
//
//	Pending ──► Waiting ──► Ready ──► Running ──► Terminating ──► Deleted
//	   │           │          │          │
//	   └───────────┴──────────┴──────────┴──────► Failed
//
// Pending and Waiting may also move straight to Terminating when a caller
// deletes a server before it became ready. Deleted and Failed are terminal.
//
// # Errors
//
// Every error produced by the core is an *Error carrying an ErrorKind. Use the
// Is* helpers (IsInvalidSpec, IsTransient, IsReadinessTimeout, ...) rather than
// comparing strings; they unwrap through fmt.Errorf("%w") chains.
package api
