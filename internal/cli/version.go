package cli

import (
	"fmt"

	httpiface "github.com/nomadictuba2005/claude-code-api/interfaces/http"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), httpiface.ServiceVersion)
			return nil
		},
	}
}
