package app

import (
	"ephemcp/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of LogLevel.
	Debug bool

	// LogLevel and LogFormat select the logging handler.
	LogLevel  string
	LogFormat string

	// Silent discards all log output.
	Silent bool

	// ConfigPath is the directory holding config.yaml.
	ConfigPath string

	// Overrides are command line values that win over config.yaml.
	Overrides Overrides

	// Version is announced to MCP clients.
	Version string

	// Settings is the loaded configuration, filled in by NewApplication.
	Settings *config.Config
}

// Overrides carries the flags that override config.yaml. Zero values leave
// the loaded configuration untouched.
type Overrides struct {
	Namespace   string
	Kubeconfig  string
	KubeContext string
	Transport   string
	Host        string
	Port        int
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}

// Apply writes the non-zero overrides into cfg.
func (o Overrides) Apply(cfg *config.Config) {
	if o.Namespace != "" {
		cfg.Namespace = o.Namespace
	}
	if o.Kubeconfig != "" {
		cfg.Kubeconfig = o.Kubeconfig
	}
	if o.KubeContext != "" {
		cfg.KubeContext = o.KubeContext
	}
	if o.Transport != "" {
		cfg.Server.Transport = o.Transport
	}
	if o.Host != "" {
		cfg.Server.Host = o.Host
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
}
