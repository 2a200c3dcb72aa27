package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of poster-to-markdown",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("poster-to-markdown %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
