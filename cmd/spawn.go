package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ephemcp/internal/api"
	"ephemcp/internal/app"
	"ephemcp/internal/cli"
	"ephemcp/internal/cluster"
	"ephemcp/internal/server"
	"ephemcp/pkg/logging"
)

type spawnOptions struct {
	spec        specFlags
	wait        bool
	timeout     time.Duration
	portForward bool
	remove      bool
}

func newSpawnCmd() *cobra.Command {
	opts := &spawnOptions{}
	cmd := &cobra.Command{
		Use:   "spawn [IMAGE]",
		Short: "Spawn an ephemeral MCP server",
		Long: `Spawns an MCP server through the running ephemcp server.

A server is described by exactly one of a container image serving MCP over
HTTP, a runtime package started behind the SSE proxy, or a preset.

Examples:
  ephemcp spawn mcp/fetch --wait
  ephemcp spawn --exec uvx --package mcp-server-fetch
  ephemcp spawn --preset github -e GITHUB_PERSONAL_ACCESS_TOKEN=... --wait
  ephemcp spawn --preset time --port-forward --rm`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if opts.spec.image != "" {
					return fmt.Errorf("image given both as argument and --image")
				}
				opts.spec.image = args[0]
			}
			if opts.portForward {
				opts.wait = true
			}
			if opts.remove && !opts.portForward {
				return fmt.Errorf("--rm requires --port-forward")
			}
			return runSpawn(cmd, opts)
		},
	}

	f := cmd.Flags()
	opts.spec.register(f)
	f.BoolVarP(&opts.wait, "wait", "w", false, "Wait until the server is ready")
	f.DurationVar(&opts.timeout, "timeout", 0, "Readiness timeout (default from server configuration)")
	f.BoolVar(&opts.portForward, "port-forward", false, "Forward a local port to the server once it is ready (implies --wait)")
	f.BoolVar(&opts.remove, "rm", false, "Delete the server when the port-forward is interrupted")
	return cmd
}

func spawnArguments(opts *spawnOptions) map[string]interface{} {
	args := opts.spec.arguments()
	if opts.wait {
		args["wait_for_ready"] = true
		if opts.timeout > 0 {
			args["timeout"] = opts.timeout.String()
		}
	}
	return args
}

func runSpawn(cmd *cobra.Command, opts *spawnOptions) error {
	var result server.SpawnResult
	err := withClient(cmd, func(ctx context.Context, c *cli.Client) error {
		stop := cli.StartSpinner(cmd.ErrOrStderr(), rootQuiet || !opts.wait || rootOutput != string(cli.OutputFormatTable), "Waiting for MCP server to become ready...")
		err := c.CallToolJSON(ctx, server.ToolSpawn, spawnArguments(opts), &result)
		if err != nil {
			stop("")
			if partial, ok := partialSpawn(err); ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "Server %s was created and is %s; delete it with: ephemcp delete %s\n", partial.ID, partial.State, partial.ID)
			}
			return err
		}
		stop(fmt.Sprintf("%s %s", result.ID, cli.ColorState(result.State)))
		return nil
	})
	if err != nil {
		return err
	}

	if !opts.portForward {
		return printSpawnResult(cmd, result)
	}
	return portForward(cmd, result, opts.remove)
}

func printSpawnResult(cmd *cobra.Command, result server.SpawnResult) error {
	if rootOutput != string(cli.OutputFormatTable) {
		return newPrinter(cmd).Print(result)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.ID)
	if result.URL != "" && !rootQuiet {
		fmt.Fprintf(out, "URL: %s\n", result.URL)
	}
	return nil
}

// portForward tunnels a local port to the server until interrupted.
func portForward(cmd *cobra.Command, result server.SpawnResult, remove bool) error {
	if result.Endpoint == nil {
		return fmt.Errorf("server %s has no endpoint to forward", result.ID)
	}
	settings, err := loadSettings(app.Overrides{})
	if err != nil {
		return err
	}
	restConfig, err := cluster.LoadRESTConfig(settings.Kubeconfig, settings.KubeContext)
	if err != nil {
		return err
	}
	forwarder, err := cluster.NewPortForwarder(restConfig, settings.Namespace)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := forwarder.Forward(ctx, result.ID, result.Endpoint.Port)
	if err != nil {
		return err
	}
	local := api.Endpoint{Host: "127.0.0.1", Port: int32(session.LocalPort), Path: result.Endpoint.Path}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\nForwarding %s (press Ctrl+C to stop)\n", result.ID, local.URL())

	<-ctx.Done()
	if err := session.Close(); err != nil {
		logging.Debug("CLI", "Port-forward closed: %v", err)
	}

	if !remove {
		return nil
	}
	return withClient(cmd, func(ctx context.Context, c *cli.Client) error {
		_, err := c.CallToolText(context.WithoutCancel(ctx), server.ToolDelete, map[string]interface{}{"id": result.ID})
		if err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %s\n", result.ID)
		}
		return err
	})
}

// partialSpawn extracts the result of a spawn whose server was created but
// failed to become ready.
func partialSpawn(err error) (server.SpawnResult, bool) {
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || len(toolErr.Details) == 0 {
		return server.SpawnResult{}, false
	}
	var result server.SpawnResult
	if json.Unmarshal([]byte(toolErr.Details[0]), &result) != nil || result.ID == "" {
		return server.SpawnResult{}, false
	}
	return result, true
}
