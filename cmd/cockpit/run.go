package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cockpitdev/cockpit/internal/cache"
	"github.com/cockpitdev/cockpit/internal/configadapter"
	"github.com/cockpitdev/cockpit/internal/graph"
	"github.com/cockpitdev/cockpit/internal/logger"
	"github.com/cockpitdev/cockpit/internal/process"
	"github.com/cockpitdev/cockpit/internal/runner"
	"github.com/cockpitdev/cockpit/internal/scheduler"
	"github.com/cockpitdev/cockpit/internal/taskid"
	"github.com/cockpitdev/cockpit/internal/workspace"
)

var (
	runWorkspace       string
	runAll             bool
	runTag             string
	runConcurrency     int
	runContinueOnError bool
	runForce           bool
	runDryRun          bool
	runVerbose         bool
	runOutputMode      string
)

var runCmd = &cobra.Command{
	Use:   "run <task> [-- extraArgs...]",
	Short: "Run a task and its dependencies",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "run the task in a single workspace")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run the task in every workspace that defines it")
	runCmd.Flags().StringVar(&runTag, "tag", "", "run the task in every workspace carrying this tag")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 10, "maximum number of tasks to run at once")
	runCmd.Flags().BoolVar(&runContinueOnError, "continue-on-error", false, "keep running independent tasks after a failure")
	runCmd.Flags().BoolVar(&runForce, "force", false, "bypass the cache")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "resolve the graph without executing anything")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "emit internal diagnostics")
	runCmd.Flags().StringVar(&runOutputMode, "output-mode", "full", "how to surface task output: full, hash-only, new-only, none")
}

func runRun(cmd *cobra.Command, args []string) error {
	taskName := args[0]
	dash := cmd.ArgsLenAtDash()
	extraArgs := []string{}
	if dash >= 0 {
		extraArgs = args[dash:]
		args = args[:1]
	}

	cat, err := configadapter.Load(configPath)
	if err != nil {
		return err
	}

	g, err := buildGraph(*cat, taskName, runWorkspace, runTag, runAll)
	if err != nil {
		return err
	}

	hclogger := newDiagnosticsLogger(runVerbose)
	cs, err := cache.New(filepath.Join(cat.RootAbsPath, ".cockpit", ".cache"), hclogger)
	if err != nil {
		return err
	}

	consoleLogger := logger.NewConsole(os.Getenv("FORCE_COLOR") != "")
	r := &runner.Runner{
		Catalog:    cat,
		Cache:      cs,
		Supervisor: process.NewSupervisor(hclogger, 0),
		Logger:     consoleLogger,
	}
	sched := &scheduler.Scheduler{Runner: r}

	if err := scheduler.ValidatePersistentDependencies(g, runConcurrency); err != nil {
		return err
	}

	mainTasks := make(map[string]bool, len(g.RootTasks))
	for _, id := range g.RootTasks {
		mainTasks[id] = true
	}

	start := time.Now()
	summary := sched.Run(g, scheduler.Options{
		Concurrency:     runConcurrency,
		ContinueOnError: runContinueOnError,
		RunnerOptions: runner.Options{
			Force:       runForce,
			DryRun:      runDryRun,
			ExtraArgs:   extraArgs,
			MainTaskIDs: mainTasks,
			ContextEnv:  map[string]string{},
			OutputMode:  runner.OutputMode(runOutputMode),
		},
	})

	consoleLogger.Summary(summarize(summary, time.Since(start)))

	if !summary.Success {
		if summary.Errors != nil {
			return summary.Errors.ErrorOrNil()
		}
		os.Exit(1)
	}
	return nil
}

// buildGraph picks a graph constructor based on the --all/--tag/--workspace
// flags: graph.BuildFanOut for --all, graph.Build over the tagged
// workspaces for --tag, and graph.BuildSingle otherwise.
func buildGraph(cat workspace.Catalog, taskName, ws, tag string, all bool) (*graph.TaskGraph, error) {
	switch {
	case all:
		return graph.BuildFanOut(cat, taskName)
	case tag != "":
		var roots []taskid.ID
		for id, info := range cat.Workspaces {
			if hasTag(info.Tags, tag) {
				roots = append(roots, taskid.ID{Workspace: id, Name: taskName})
			}
		}
		if len(roots) == 0 {
			return nil, fmt.Errorf("no workspace carries tag %q", tag)
		}
		return graph.Build(cat, roots)
	case ws != "":
		return graph.BuildSingle(cat, ws, taskName)
	default:
		return graph.BuildSingle(cat, cat.DefaultWorkspace, taskName)
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func summarize(s scheduler.Summary, duration time.Duration) logger.Summary {
	out := logger.Summary{Duration: duration.Round(time.Millisecond).String()}
	for _, r := range s.Results {
		switch r.Status {
		case runner.StatusSuccess:
			out.Success++
		case runner.StatusFailed:
			out.Failed++
		case runner.StatusCached:
			out.Cached++
		case runner.StatusSkipped:
			out.Skipped++
		}
	}
	return out
}
