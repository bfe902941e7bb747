package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cockpitdev/cockpit/internal/cache"
	"github.com/cockpitdev/cockpit/internal/cleanup"
	"github.com/cockpitdev/cockpit/internal/configadapter"
	"github.com/cockpitdev/cockpit/internal/taskid"
)

var (
	cleanupWorkspace string
	cleanupDryRun    bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <task>",
	Short: "Remove a task's declared outputs and invalidate its cache entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupWorkspace, "workspace", "", "workspace the task belongs to")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report matched paths without deleting them")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cat, err := configadapter.Load(configPath)
	if err != nil {
		return err
	}

	id := taskid.ID{Workspace: cleanupWorkspace, Name: args[0]}
	def, ok := cat.Lookup(id.Workspace, id.Name)
	if !ok {
		return fmt.Errorf("task not found: %q", id.String())
	}

	hclogger := newDiagnosticsLogger(false)
	cs, err := cache.New(filepath.Join(cat.RootAbsPath, ".cockpit", ".cache"), hclogger)
	if err != nil {
		return err
	}

	eng := &cleanup.Engine{Cache: cs}
	res := eng.Clean(id.String(), def, cat.WorkspacePath(id.Workspace), cleanupDryRun)

	for _, p := range res.Deleted {
		fmt.Println(p)
	}
	if res.Errors != nil {
		return res.Errors.ErrorOrNil()
	}
	return nil
}
