package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/linchenxuan/incidental/config"
)

// NewCheckCommand creates the check command
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list its definitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "task %s schedule %q\n", cfg.Task.Name, cfg.Task.Schedule)
			for _, d := range cfg.Definitions {
				def, err := d.Define()
				if err != nil {
					return err
				}
				opts := def.Options().WithDefaults()
				fmt.Fprintf(out, "  %s %s unit=%s resolution=%d\n",
					def.Name(), def.Aggregation(), opts.Unit, opts.Resolution)
			}

			types := make([]string, 0, len(cfg.Plugin))
			for typ := range cfg.Plugin {
				types = append(types, typ)
			}
			sort.Strings(types)
			for _, typ := range types {
				fmt.Fprintf(out, "plugin %s\n", typ)
			}
			return nil
		},
	}
}
