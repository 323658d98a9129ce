package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"ephemcp/internal/app"
	"ephemcp/internal/server"
	"ephemcp/internal/workload"
)

type renderOptions struct {
	spec       specFlags
	id         string
	presetsDir string
}

func newRenderCmd() *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render [IMAGE]",
		Short: "Print the Job and Service a spawn would create",
		Long: `Renders the Kubernetes manifests for a server spec without contacting
the cluster or a running ephemcp server. Takes the same flags as spawn.

Examples:
  ephemcp render mcp/fetch
  ephemcp render --preset git --id srv-demo | kubectl apply -f -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.spec.image = args[0]
			}
			out, err := renderManifests(opts)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	f := cmd.Flags()
	opts.spec.register(f)
	f.StringVar(&opts.id, "id", "", "Server id to render (default: generated)")
	f.StringVar(&opts.presetsDir, "presets-dir", "", "Presets directory (default from configuration)")
	return cmd
}

// renderManifests builds the multi-document YAML for opts.
func renderManifests(opts *renderOptions) ([]byte, error) {
	settings, err := loadSettings(app.Overrides{})
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(opts.presetsDir)
	if err != nil {
		return nil, err
	}
	spec, err := server.SpecFromArguments(opts.spec.arguments(), catalog)
	if err != nil {
		return nil, err
	}

	id := opts.id
	if id == "" {
		id = workload.GenerateID(settings.Lifecycle.IDPrefix)
	}
	translator := workload.NewTranslator(workload.OptionsFromConfig(settings), workload.DefaultNamer{})
	job, svc, err := translator.Build(spec, id)
	if err != nil {
		return nil, err
	}
	job.APIVersion, job.Kind = "batch/v1", "Job"
	svc.APIVersion, svc.Kind = "v1", "Service"

	jobYAML, err := yaml.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to render job: %w", err)
	}
	svcYAML, err := yaml.Marshal(svc)
	if err != nil {
		return nil, fmt.Errorf("failed to render service: %w", err)
	}

	out := append(jobYAML, []byte("---\n")...)
	return append(out, svcYAML...), nil
}
