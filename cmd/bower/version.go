package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/bower"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of bower",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bower version %s\n", strings.TrimSpace(bower.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
