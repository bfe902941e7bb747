package main

import (
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cockpit",
	Short: "Cockpit is a monorepo task runner",
	Long: `Cockpit resolves a task request into a dependency graph across
workspaces, runs it with bounded parallelism, and caches outputs so
repeat invocations replay instead of re-executing.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cockpit.yaml",
		"path to the workspace/task config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func newDiagnosticsLogger(verbose bool) hclog.Logger {
	level := hclog.Warn
	if verbose {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{Name: "cockpit", Level: level})
}
