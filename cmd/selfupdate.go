package cmd

import (
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"ephemcp/internal/cli"
)

// defaultRepoSlug is the GitHub repository (owner/repo) releases are published to.
const defaultRepoSlug = "ephemcp/ephemcp"

type selfUpdateOptions struct {
	repo  string
	check bool
}

func newSelfUpdateCmd() *cobra.Command {
	opts := &selfUpdateOptions{}
	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update ephemcp to the latest release",
		Long: `Looks up the latest ephemcp release on GitHub and replaces the running
binary when it is newer. Development builds cannot be updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.repo, "repo", defaultRepoSlug, "GitHub repository to update from")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Only report whether an update is available")
	return cmd
}

func runSelfUpdate(cmd *cobra.Command, opts *selfUpdateOptions) error {
	current := GetVersion()
	if current == "" || current == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create updater: %w", err)
	}

	stop := cli.StartSpinner(cmd.ErrOrStderr(), rootQuiet, "Checking for updates...")
	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(opts.repo))
	stop("")
	if err != nil {
		return fmt.Errorf("error detecting latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s", opts.repo)
	}
	if !latest.GreaterThan(current) {
		fmt.Fprintf(out, "ephemcp %s is up to date\n", current)
		return nil
	}

	fmt.Fprintf(out, "New version available: %s (current %s, published %s)\n", latest.Version(), current, latest.PublishedAt.Format("2006-01-02"))
	if opts.check {
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}
	stop = cli.StartSpinner(cmd.ErrOrStderr(), rootQuiet, fmt.Sprintf("Updating %s...", exe))
	err = updater.UpdateTo(ctx, latest, exe)
	stop("")
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	fmt.Fprintf(out, "Updated to %s\n", latest.Version())
	return nil
}
