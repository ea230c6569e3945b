package cmd

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/emofalling/img2arr/internal/config"
	"github.com/emofalling/img2arr/internal/registry"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List plug-ins discovered under the configured plugin root",
	RunE:  runPlugins,
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

func runPlugins(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return usageError(fmt.Errorf("loading config: %w", err))
	}

	reg, scanErrs := registry.Scan(cfg.Plugins.Root, featuresFromConfig(cfg), slog.Default())
	for _, se := range scanErrs {
		fmt.Printf("warning: %s\n", se.Error())
	}

	descs := reg.List()
	sort.Slice(descs, func(i, j int) bool {
		if descs[i].Stage != descs[j].Stage {
			return descs[i].Stage < descs[j].Stage
		}
		if descs[i].Category != descs[j].Category {
			return descs[i].Category < descs[j].Category
		}
		return descs[i].Key < descs[j].Key
	})

	for _, d := range descs {
		name := d.Info.Name
		if name == "" {
			name = d.Key
		}
		fmt.Printf("%-6s %-10s %-20s %s\n", d.Stage, d.Category, d.Key, name)
	}
	return nil
}

func featuresFromConfig(cfg *config.Config) []registry.Feature {
	var out []registry.Feature
	for _, f := range cfg.Plugins.Features {
		switch f {
		case "native":
			out = append(out, registry.FeatureNative)
		case "scripted_ui":
			out = append(out, registry.FeatureScriptedUI)
		}
	}
	if len(out) == 0 {
		out = []registry.Feature{registry.FeatureNative}
	}
	return out
}
