package config

import "time"

const (
	// DefaultProxyImage runs stdio MCP servers behind an SSE proxy.
	DefaultProxyImage = "ghcr.io/bobmerkus/mcp-ephemeral-k8s-proxy:latest"

	// DefaultHostTemplate renders the in-cluster DNS name of a server's Service.
	DefaultHostTemplate = "{{ .Name }}.{{ .Namespace }}.svc.{{ .ClusterDomain }}"
)

// GetDefaultConfig returns the built-in configuration.
func GetDefaultConfig() Config {
	return Config{
		Namespace: "default",
		Lifecycle: LifecycleConfig{
			IDPrefix:          "srv",
			PollInterval:      time.Second,
			ReadyTimeout:      60 * time.Second,
			CreateTimeout:     30 * time.Second,
			DeleteTimeout:     30 * time.Second,
			ReapInterval:      10 * time.Second,
			TerminalRetention: 5 * time.Minute,
			CleanupOnShutdown: true,
			Backoff: BackoffConfig{
				Initial: 200 * time.Millisecond,
				Factor:  2.0,
				Jitter:  0.5,
				Steps:   5,
				Cap:     5 * time.Second,
			},
		},
		Workload: WorkloadConfig{
			ProxyImage:      DefaultProxyImage,
			ProxyCommand:    []string{"mcp-proxy"},
			ProxyHost:       "0.0.0.0",
			ProxyPort:       8080,
			ImagePullPolicy: "IfNotPresent",
			Resources: ResourcesConfig{
				Requests: map[string]string{"cpu": "100m", "memory": "100Mi"},
				Limits:   map[string]string{"cpu": "200m", "memory": "200Mi"},
			},
			ReadinessProbe: ReadinessProbeConfig{
				InitialDelay:     5 * time.Second,
				Period:           time.Second,
				Timeout:          2 * time.Second,
				SuccessThreshold: 1,
				FailureThreshold: 10,
			},
		},
		Resolver: ResolverConfig{
			HostTemplate:  DefaultHostTemplate,
			ClusterDomain: "cluster.local",
			ProxyPath:     "/sse",
		},
		Server: ServerConfig{
			Transport:   MCPTransportStreamableHTTP,
			Host:        "localhost",
			Port:        8090,
			MetricsPath: "/metrics",
		},
		Events: EventsConfig{
			Subject:    "ephemcp.lifecycle",
			BufferSize: 256,
		},
		Presets: PresetsConfig{
			Watch: true,
		},
	}
}
