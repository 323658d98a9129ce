package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ephemcp/internal/app"
)

type serveOptions struct {
	logFormat string
	overrides app.Overrides
}

// newServeCmd defines the serve command, the long-running lifecycle manager.
func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ephemcp lifecycle manager and MCP server",
		Long: `Starts the lifecycle manager and exposes it as an MCP server.

On startup ephemcp adopts servers it created earlier (Jobs labelled
app.kubernetes.io/managed-by=ephemcp in the namespace), starts the reaper
that enforces max lifetime and idle timeout, and serves the MCP tools over
the configured transport. Prometheus metrics are served on /metrics of the
same listener.

On SIGINT or SIGTERM the transport stops accepting requests and, unless
lifecycle.cleanupOnShutdown is false, every live server is deleted before
the process exits.

Configuration is read from config.yaml in --config-path; flags override it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	f.StringVarP(&opts.overrides.Namespace, "namespace", "n", "", "Namespace for server Jobs and Services")
	f.StringVar(&opts.overrides.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	f.StringVar(&opts.overrides.KubeContext, "context", "", "Kubeconfig context to use")
	f.StringVar(&opts.overrides.Transport, "transport", "", "MCP transport: streamable-http, sse or stdio")
	f.StringVar(&opts.overrides.Host, "host", "", "Listen host for HTTP transports")
	f.IntVar(&opts.overrides.Port, "port", 0, "Listen port for HTTP transports")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg := app.NewConfig(rootDebug, rootConfigPath)
	cfg.LogLevel = rootLogLevel
	cfg.LogFormat = opts.logFormat
	cfg.Overrides = opts.overrides
	cfg.Version = GetVersion()

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return application.Run(commandContext(cmd))
}
