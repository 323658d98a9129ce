package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ephemcp/internal/api"
	"ephemcp/internal/cli"
	"ephemcp/internal/server"
)

func newWaitCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait ID",
		Short: "Wait until a server is ready and print its URL",
		Long: `Blocks until the server is ready to accept MCP connections, then prints
its URL. Exits with status 2 if the server fails or the timeout elapses, and
with status 3 if the id is unknown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{"id": args[0]}
			if timeout > 0 {
				params["timeout"] = timeout.String()
			}

			var result server.SpawnResult
			err := withClient(cmd, func(ctx context.Context, c *cli.Client) error {
				stop := cli.StartSpinner(cmd.ErrOrStderr(), rootQuiet || rootOutput != string(cli.OutputFormatTable), fmt.Sprintf("Waiting for %s...", args[0]))
				defer stop("")
				return c.CallToolJSON(ctx, server.ToolWait, params, &result)
			})
			if err != nil {
				return err
			}
			if rootOutput != string(cli.OutputFormatTable) {
				return newPrinter(cmd).Print(result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.URL)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Maximum time to wait (default from server configuration)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status ID",
		Aliases: []string{"get", "describe"},
		Short:   "Show the state of a server",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var handle api.ServerHandle
			err := withClient(cmd, func(ctx context.Context, c *cli.Client) error {
				return c.CallToolJSON(ctx, server.ToolStatus, map[string]interface{}{"id": args[0]}, &handle)
			})
			if err != nil {
				return err
			}
			return newPrinter(cmd).PrintHandle(handle)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "ps"},
		Short:   "List managed servers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var servers []server.ServerInfo
			err := withClient(cmd, func(ctx context.Context, c *cli.Client) error {
				return c.CallToolJSON(ctx, server.ToolList, nil, &servers)
			})
			if err != nil {
				return err
			}
			return newPrinter(cmd).PrintServers(servers)
		},
	}
}

type deleteOptions struct {
	noWait bool
}

func newDeleteCmd() *cobra.Command {
	opts := &deleteOptions{}
	cmd := &cobra.Command{
		Use:     "delete ID...",
		Aliases: []string{"rm"},
		Short:   "Delete one or more servers",
		Long: `Deletes the Job and Service of each server. Deleting a server that is
already gone succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cli.Client) error {
				return deleteServers(ctx, cmd, c, args, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "Return once deletion has started")
	return cmd
}

// deleteServers deletes every id and reports the first failure after trying
// all of them.
func deleteServers(ctx context.Context, cmd *cobra.Command, c *cli.Client, ids []string, opts *deleteOptions) error {
	var results []server.DeleteResult
	var firstErr error
	for _, id := range ids {
		var result server.DeleteResult
		params := map[string]interface{}{"id": id, "wait_for_deletion": !opts.noWait}
		if err := c.CallToolJSON(ctx, server.ToolDelete, params, &result); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Failed to delete %s: %v\n", id, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, result)
	}

	if rootOutput != string(cli.OutputFormatTable) {
		if err := newPrinter(cmd).Print(results); err != nil {
			return err
		}
		return firstErr
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", r.ID, cli.ColorState(r.State))
	}
	return firstErr
}
