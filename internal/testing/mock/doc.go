// Package mock provides an in-memory implementation of cluster.Client for
// tests of the lifecycle manager, the MCP front end and the CLI.
//
// The fake behaves like the Kubernetes adapter: creates are idempotent,
// deletes of missing objects succeed, and gets of missing objects return an
// api NotFound error. On top of that a test can
//   - drive a workload through its phases (SetPhase, MarkReady, Fail),
//   - make a workload become ready after N status polls (ReadyAfterPolls),
//   - inject failures per operation (FailNext), including writes that are
//     applied but report a Transient error (ApplyThenFail),
//   - count calls per operation (Calls) to assert on side effects.
package mock
