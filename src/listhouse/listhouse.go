package listhouse

import (
	"github.com/spf13/cobra"
)

// ListhouseCommand is the root of the CLI. Subcommands register themselves
// in their packages' init functions.
var ListhouseCommand = &cobra.Command{
	Use:   "lhn",
	Short: "Mailing list archive tools",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}
