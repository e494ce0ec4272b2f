package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cryguy/evaljs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and JavaScript engine",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "evaljs %s (%s)\n", version, evaljs.Backend())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
