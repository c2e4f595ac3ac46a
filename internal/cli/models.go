package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/nomadictuba2005/claude-code-api/internal/config"

	"github.com/spf13/cobra"
)

func newModelsCmd(opts *Options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model aliases and the CLI models they map to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadYAML(opts.Config)
			if err != nil {
				return err
			}
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tCLI MODEL\tDEFAULT")
			for _, alias := range catalog.Aliases() {
				if !alias.Listed && !all {
					continue
				}
				def := ""
				if alias.ID == catalog.DefaultAlias() {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", alias.ID, alias.CLIModel, def)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include unlisted aliases")
	return cmd
}
