// Package cluster is the orchestrator adapter: a narrow client over the
// Kubernetes API for the two object kinds ephemcp manages (batch/v1 Jobs as
// compute units, core/v1 Services as endpoints).
//
// The Client interface is what the lifecycle manager is written against. The
// production implementation, KubernetesClient, uses a controller-runtime
// client; tests substitute the in-memory fake in internal/testing/mock.
//
// Contract of every implementation:
//   - Create of an object that already exists is a success.
//   - Delete of an object that does not exist is a success.
//   - Get of a missing object returns an api NotFound error.
//   - Every other failure is an api Transient or Permanent error; Classify
//     decides which.
//
// The package also loads REST configuration the way kubectl does and can open
// a local port-forward to a server's pod.
package cluster
