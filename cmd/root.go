package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ephemcp/internal/api"
	"ephemcp/internal/app"
	"ephemcp/internal/cli"
	"ephemcp/internal/config"
	"ephemcp/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeNotReady indicates a server failed or did not become ready in time.
	ExitCodeNotReady = 2
	// ExitCodeNotFound indicates an unknown server or preset.
	ExitCodeNotFound = 3
)

// Global flags shared by all commands.
var (
	rootConfigPath string
	rootDebug      bool
	rootLogLevel   string
	rootEndpoint   string
	rootOutput     string
	rootNoHeaders  bool
	rootQuiet      bool
)

// rootCmd represents the base command for the ephemcp application.
var rootCmd = &cobra.Command{
	Use:   "ephemcp",
	Short: "Run ephemeral MCP servers on Kubernetes",
	Long: `ephemcp spawns short-lived MCP servers as Kubernetes Jobs, tracks them
through their lifecycle and tears them down when they are deleted, expire or
go idle.

Start the manager with 'ephemcp serve'. It exposes MCP tools that AI
assistants and the other ephemcp commands use to spawn, inspect and delete
servers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.ValidateOutputFormat(rootOutput); err != nil {
			return err
		}
		return app.InitLogging(&app.Config{Debug: rootDebug, LogLevel: rootLogLevel}, os.Stderr)
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "ephemcp version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps lifecycle error kinds to exit codes for scripting.
func getExitCode(err error) int {
	kind := api.KindOf(err)
	var toolErr *cli.ToolError
	if kind == "" && errors.As(err, &toolErr) {
		kind = kindFromMessage(toolErr.Message)
	}

	switch kind {
	case api.KindReadinessTimeout, api.KindWorkloadFailed, api.KindNotReady:
		return ExitCodeNotReady
	case api.KindNotFound:
		return ExitCodeNotFound
	default:
		return ExitCodeError
	}
}

// kindFromMessage recovers the error kind from a tool error, whose message
// starts with the kind.
func kindFromMessage(msg string) api.ErrorKind {
	for _, kind := range []api.ErrorKind{
		api.KindInvalidSpec, api.KindTransient, api.KindPermanent,
		api.KindReadinessTimeout, api.KindWorkloadFailed, api.KindNotReady, api.KindNotFound,
	} {
		if strings.HasPrefix(msg, string(kind)) {
			return kind
		}
	}
	return ""
}

// loadSettings reads the configuration used by client-side commands. A
// broken config file is reported; a missing one yields defaults.
func loadSettings(overrides app.Overrides) (config.Config, error) {
	cfg := app.NewConfig(rootDebug, rootConfigPath)
	cfg.Overrides = overrides
	return app.LoadSettings(cfg)
}

// resolveEndpoint picks the MCP endpoint of the running ephemcp server.
func resolveEndpoint() string {
	if rootEndpoint != "" {
		return rootEndpoint
	}
	settings, err := loadSettings(app.Overrides{})
	if err != nil {
		logging.Warn("CLI", "Using default endpoint: %v", err)
		settings = config.GetDefaultConfig()
	}
	return cli.GetDefaultEndpoint(settings.Server.Host, settings.Server.Port)
}

// withClient connects to the server, runs fn and closes the session.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *cli.Client) error) error {
	ctx := commandContext(cmd)
	c := cli.NewClient(resolveEndpoint())
	stop := cli.StartSpinner(cmd.ErrOrStderr(), rootQuiet || rootOutput != string(cli.OutputFormatTable), "Connecting to ephemcp server...")
	err := c.Connect(ctx)
	stop("")
	if err != nil {
		return fmt.Errorf("%w (is 'ephemcp serve' running?)", err)
	}
	defer c.Close()

	return fn(ctx, c)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newPrinter(cmd *cobra.Command) *cli.Printer {
	p := cli.NewPrinter(cmd.OutOrStdout(), cli.OutputFormat(rootOutput))
	p.NoHeaders = rootNoHeaders
	return p
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootConfigPath, "config-path", "", "Configuration directory (default ~/.config/ephemcp)")
	pf.BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&rootLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&rootEndpoint, "endpoint", "", "MCP endpoint of the ephemcp server (default from config or $"+cli.EndpointEnvVar+")")
	pf.StringVarP(&rootOutput, "output", "o", string(cli.OutputFormatTable), "Output format: table, json, yaml")
	pf.BoolVar(&rootNoHeaders, "no-headers", false, "Omit table headers")
	pf.BoolVarP(&rootQuiet, "quiet", "q", false, "Suppress progress output")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSpawnCmd())
	rootCmd.AddCommand(newWaitCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
