package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bower",
	Short: "Bower is a stateful session host for document applications",
	Long: `Bower hosts long-lived application sessions, each holding a structured
document, with lifecycle hooks, a callback scheduler, idle cleanup and
pluggable snapshot persistence.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "bower.yaml", "Path to the configuration file")
}
