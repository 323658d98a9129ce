package cmd

import (
	"github.com/spf13/cobra"

	"ephemcp/internal/app"
	"ephemcp/internal/cli"
	"ephemcp/internal/presets"
	"ephemcp/internal/server"
)

func newPresetsCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "presets [NAME]",
		Short: "List server presets, or show one",
		Long: `Lists the built-in presets and those found in the configured presets
directory. With a NAME, prints that preset including its server spec.

This command reads presets locally and does not need a running server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(dir)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if len(args) == 1 {
				preset, err := catalog.Get(args[0])
				if err != nil {
					return err
				}
				if p.Format == cli.OutputFormatTable {
					p.Format = cli.OutputFormatYAML
				}
				return p.Print(preset)
			}
			return p.PrintPresets(presetInfos(catalog.List()))
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Presets directory (default from configuration)")
	return cmd
}

// loadCatalog builds the preset catalog from dir, falling back to the
// configured presets directory.
func loadCatalog(dir string) (*presets.Catalog, error) {
	if dir == "" {
		settings, err := loadSettings(app.Overrides{})
		if err != nil {
			return nil, err
		}
		dir = settings.Presets.Directory
	}
	return presets.NewCatalog(dir)
}

func presetInfos(list []presets.Preset) []server.PresetInfo {
	out := make([]server.PresetInfo, 0, len(list))
	for _, p := range list {
		out = append(out, server.PresetInfo{
			Name:        p.Name,
			Description: p.Description,
			RequiredEnv: p.RequiredEnv,
			Source:      string(p.Source),
		})
	}
	return out
}
