package api

import (
	"fmt"
	"time"
)

// Resources carries optional Kubernetes resource requests and limits, keyed by
// resource name ("cpu", "memory") with quantity strings ("100m", "128Mi").
type Resources struct {
	Requests map[string]string `json:"requests,omitempty" yaml:"requests,omitempty"`
	Limits   map[string]string `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// Runtime describes a stdio MCP server that is started behind the SSE proxy
// sidecar, e.g. Exec "uvx" with Package "mcp-server-fetch".
type Runtime struct {
	Exec    string `json:"exec" yaml:"exec"`
	Package string `json:"package" yaml:"package"`
}

// ServerSpec is the caller-supplied description of an MCP server to spawn.
// It is treated as immutable once handed to the lifecycle manager.
type ServerSpec struct {
	// Image is the container image reference. When Runtime is set it may be
	// left empty and the configured proxy image is used instead.
	Image   string            `json:"image,omitempty" yaml:"image,omitempty"`
	Command []string          `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Port is the container port the MCP server listens on.
	Port int32 `json:"port,omitempty" yaml:"port,omitempty"`

	// Path is an optional HTTP path appended to the resolved endpoint.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	Resources *Resources `json:"resources,omitempty" yaml:"resources,omitempty"`
	Runtime   *Runtime   `json:"runtime,omitempty" yaml:"runtime,omitempty"`

	// MaxLifetime bounds the time since creation, IdleTimeout the time since
	// the last observed activity. Zero disables the respective limit.
	MaxLifetime time.Duration `json:"maxLifetime,omitempty" yaml:"maxLifetime,omitempty"`
	IdleTimeout time.Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
}

// IsProxied reports whether the server is fronted by the proxy sidecar.
func (s ServerSpec) IsProxied() bool {
	return s.Runtime != nil
}

// Endpoint is a resolved, externally usable address of a Ready server.
type Endpoint struct {
	Host string `json:"host"`
	Port int32  `json:"port"`
	Path string `json:"path,omitempty"`
}

// URL renders the endpoint as an http URL.
func (e Endpoint) URL() string {
	return fmt.Sprintf("http://%s:%d%s", e.Host, e.Port, e.Path)
}

// ServerHandle is a read-only snapshot of a managed server. Handles are copies;
// mutating one has no effect on the manager's registry.
type ServerHandle struct {
	ID              string     `json:"id"`
	State           State      `json:"state"`
	Spec            ServerSpec `json:"spec"`
	Namespace       string     `json:"namespace"`
	ComputeUnitName string     `json:"computeUnit"`
	EndpointName    string     `json:"endpointName"`
	Endpoint        *Endpoint  `json:"endpoint,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastObservedAt  time.Time  `json:"lastObservedAt,omitempty"`
	LastActivityAt  time.Time  `json:"lastActivityAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
}

// ServerSummary is the element type of List.
type ServerSummary struct {
	ID    string `json:"id"`
	State State  `json:"state"`
}

// StateChangeEvent is emitted for every lifecycle transition.
type StateChangeEvent struct {
	EventID   string    `json:"eventId"`
	ServerID  string    `json:"serverId"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
