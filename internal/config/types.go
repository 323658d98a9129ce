package config

import "time"

const (
	// MCPTransportStreamableHTTP is the streamable HTTP transport.
	MCPTransportStreamableHTTP = "streamable-http"
	// MCPTransportSSE is the Server-Sent Events transport.
	MCPTransportSSE = "sse"
	// MCPTransportStdio is the standard I/O transport.
	MCPTransportStdio = "stdio"
)

// Config is the top-level configuration structure for ephemcp.
type Config struct {
	Namespace   string          `yaml:"namespace"`
	Kubeconfig  string          `yaml:"kubeconfig,omitempty"`
	KubeContext string          `yaml:"kubeContext,omitempty"`
	Lifecycle   LifecycleConfig `yaml:"lifecycle"`
	Workload    WorkloadConfig  `yaml:"workload"`
	Resolver    ResolverConfig  `yaml:"resolver"`
	Server      ServerConfig    `yaml:"server"`
	Events      EventsConfig    `yaml:"events"`
	Presets     PresetsConfig   `yaml:"presets"`
}

// LifecycleConfig tunes the lifecycle manager.
type LifecycleConfig struct {
	IDPrefix          string        `yaml:"idPrefix"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	ReadyTimeout      time.Duration `yaml:"readyTimeout"`
	CreateTimeout     time.Duration `yaml:"createTimeout"`
	DeleteTimeout     time.Duration `yaml:"deleteTimeout"`
	ReapInterval      time.Duration `yaml:"reapInterval"`
	TerminalRetention time.Duration `yaml:"terminalRetention"`
	CleanupOnShutdown bool          `yaml:"cleanupOnShutdown"`
	Backoff           BackoffConfig `yaml:"backoff"`
}

// BackoffConfig configures retries of transient control-plane errors.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Factor  float64       `yaml:"factor"`
	Jitter  float64       `yaml:"jitter"`
	Steps   int           `yaml:"steps"`
	Cap     time.Duration `yaml:"cap"`
}

// WorkloadConfig holds defaults applied when building Jobs and Services.
type WorkloadConfig struct {
	ProxyImage         string               `yaml:"proxyImage"`
	ProxyCommand       []string             `yaml:"proxyCommand"`
	ProxyHost          string               `yaml:"proxyHost"`
	ProxyPort          int32                `yaml:"proxyPort"`
	ImagePullPolicy    string               `yaml:"imagePullPolicy"`
	ServiceAccountName string               `yaml:"serviceAccountName,omitempty"`
	Resources          ResourcesConfig      `yaml:"resources"`
	ReadinessProbe     ReadinessProbeConfig `yaml:"readinessProbe"`
	TTLAfterFinished   *time.Duration       `yaml:"ttlAfterFinished,omitempty"`
}

// ResourcesConfig carries quantity strings keyed by resource name.
type ResourcesConfig struct {
	Requests map[string]string `yaml:"requests"`
	Limits   map[string]string `yaml:"limits"`
}

// ReadinessProbeConfig configures the TCP readiness probe on the MCP port.
type ReadinessProbeConfig struct {
	InitialDelay     time.Duration `yaml:"initialDelay"`
	Period           time.Duration `yaml:"period"`
	Timeout          time.Duration `yaml:"timeout"`
	SuccessThreshold int32         `yaml:"successThreshold"`
	FailureThreshold int32         `yaml:"failureThreshold"`
}

// ResolverConfig controls how endpoints are rendered.
type ResolverConfig struct {
	HostTemplate  string `yaml:"hostTemplate"`
	PathTemplate  string `yaml:"pathTemplate,omitempty"`
	ClusterDomain string `yaml:"clusterDomain"`
	ProxyPath     string `yaml:"proxyPath"`
}

// ServerConfig defines the MCP front end.
type ServerConfig struct {
	Transport   string `yaml:"transport,omitempty"`
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	MetricsPath string `yaml:"metricsPath,omitempty"`
}

// EventsConfig enables publishing lifecycle events to NATS.
type EventsConfig struct {
	NATSURL string `yaml:"natsURL,omitempty"`
	Subject string `yaml:"subject"`
	// Kubernetes records transitions as core/v1 Events on the server's Job.
	Kubernetes bool `yaml:"kubernetes"`
	BufferSize int  `yaml:"bufferSize"`
}

// PresetsConfig points at an optional directory of user preset files.
type PresetsConfig struct {
	Directory string `yaml:"directory,omitempty"`
	Watch     bool   `yaml:"watch"`
}
