// Package workload translates a ServerSpec into the two Kubernetes objects that
// back an ephemeral MCP server: a batch/v1 Job running the server container and
// a core/v1 Service giving it a stable in-cluster address.
//
// Translation is pure and deterministic. Object names derive from the server id
// through a Namer, so re-issuing a create for the same id always targets the
// same objects. Every object carries the app.kubernetes.io/managed-by=ephemcp
// label, which is how the lifecycle manager finds its own workloads again after
// a restart, plus annotations recording the parts of the spec that are not
// visible in the pod template (port, path, timeouts, proxy runtime).
//
// Jobs never restart a crashed server: restartPolicy is Never and backoffLimit
// is zero. Whether to try again is the lifecycle manager's call.
package workload
