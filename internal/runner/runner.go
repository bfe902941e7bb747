// Package runner implements the per-task state machine described in spec
// §4.7: resolve cwd, compose env, probe the cache, execute via the process
// supervisor, interpret the result, and commit to the cache on success.
//
// It is grounded on the teacher's internal/runcache.TaskCache, generalizing
// its RestoreOutputs/SaveOutputs/taskOutputMode split into the spec's
// explicit status-returning state machine.
package runner

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockpitdev/cockpit/internal/cache"
	"github.com/cockpitdev/cockpit/internal/graph"
	"github.com/cockpitdev/cockpit/internal/hashing"
	"github.com/cockpitdev/cockpit/internal/logger"
	"github.com/cockpitdev/cockpit/internal/process"
	"github.com/cockpitdev/cockpit/internal/workspace"
)

// Status is the outcome category reported for a single task run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusCached  Status = "cached"
)

// Result is the outcome of running one task.
type Result struct {
	TaskID   string
	Status   Status
	Error    error
	Duration time.Duration
}

// OutputMode controls how much of a task's captured output is surfaced to
// the logger, independent of what gets written to the cache. Grounded on
// the teacher's task output mode axis; supplements the logger contract's
// verbosity with a replay granularity knob.
type OutputMode string

const (
	// OutputFull replays every captured chunk on a cache hit (the default).
	OutputFull OutputMode = "full"
	// OutputHashOnly surfaces just the input hash on a cache hit instead of
	// replaying output.
	OutputHashOnly OutputMode = "hash-only"
	// OutputNewOnly suppresses replay entirely; only freshly executed tasks
	// produce visible output.
	OutputNewOnly OutputMode = "new-only"
	// OutputNone suppresses all task output, live or replayed.
	OutputNone OutputMode = "none"
)

func (m OutputMode) orDefault() OutputMode {
	if m == "" {
		return OutputFull
	}
	return m
}

// Options configures one invocation of Run.
type Options struct {
	Force       bool
	DryRun      bool
	ExtraArgs   []string
	MainTaskIDs map[string]bool
	ContextEnv  map[string]string
	OutputMode  OutputMode
}

// Runner executes individual tasks against a workspace catalog, a cache
// store, a process supervisor, and a logger.
type Runner struct {
	Catalog    *workspace.Catalog
	Cache      *cache.Store
	Supervisor *process.Supervisor
	Logger     logger.Logger
}

// Run executes the state machine for a single resolved task.
func (r *Runner) Run(task graph.ResolvedTask, opts Options) Result {
	start := time.Now()
	def := task.Definition

	// 1. Resolve working directory.
	wsPath := r.Catalog.WorkspacePath(string(task.Workspace))
	cwd := wsPath
	if def.Cwd != "" {
		cwd = filepath.Join(wsPath, def.Cwd)
	}

	// 2. Compose environment: context env, then workspace task-config env,
	// then the task's own env, each overlaying the last.
	env := map[string]string{}
	for k, v := range opts.ContextEnv {
		env[k] = v
	}
	if cfg, ok := r.Catalog.TaskConfigs[string(task.Workspace)]; ok {
		for k, v := range cfg.Env {
			env[k] = v
		}
	}
	for k, v := range def.Env {
		env[k] = v
	}

	// 3. Determine if caching applies.
	cacheEnabled := def.CacheEnabled() && r.Cache != nil

	var inputHash string
	if cacheEnabled {
		isMain := opts.MainTaskIDs != nil && opts.MainTaskIDs[task.ID.String()]
		h, err := hashing.Fingerprint(def, wsPath, opts.ExtraArgs, isMain)
		if err == nil {
			inputHash = h
		}
	}

	// 4. Cache probe.
	outputMode := opts.OutputMode.orDefault()
	if cacheEnabled && inputHash != "" && !opts.Force {
		if res := r.probeCache(task.ID.String(), inputHash, wsPath, outputMode); res != nil {
			res.Duration = time.Since(start)
			return *res
		}
	}

	// 5. Dry-run short-circuit.
	if opts.DryRun {
		r.Logger.Task(task.ID.String(), logger.StatusSkipped, "dry run")
		return Result{TaskID: task.ID.String(), Status: StatusSkipped, Duration: time.Since(start)}
	}

	// 6. Execute.
	r.Logger.Task(task.ID.String(), logger.StatusStarting, "")
	var chunks []cache.OutputChunk
	onOutput := func(stream string, data []byte) {
		var s cache.Stream
		if stream == "stdout" {
			s = cache.Stdout
			if outputMode != OutputNone {
				r.Logger.TaskStdout(task.ID.String(), data)
			}
		} else {
			s = cache.Stderr
			if outputMode != OutputNone {
				r.Logger.TaskStderr(task.ID.String(), data)
			}
		}
		chunks = append(chunks, cache.OutputChunk{Stream: s, Data: string(data)})
	}

	procResult := r.Supervisor.Spawn(process.SpawnInput{
		Command:   def.Command,
		ExtraArgs: opts.ExtraArgs,
		Env:       env,
		Cwd:       cwd,
		Timeout:   def.TimeoutOrDefault(),
		OnOutput:  onOutput,
	})

	// 7. Interpret result.
	result := r.interpret(task, procResult)
	result.Duration = time.Since(start)

	// 8. Commit cache.
	if result.Status == StatusSuccess && cacheEnabled && inputHash != "" {
		_ = r.Cache.Store(cache.StoreInput{
			TaskID:        task.ID.String(),
			InputHash:     inputHash,
			Outputs:       def.Outputs,
			WorkspacePath: wsPath,
			OutputChunks:  chunks,
		})
	}

	return result
}

// probeCache implements step 4; it returns nil when the caller should fall
// through to execution.
func (r *Runner) probeCache(taskID, inputHash, wsPath string, mode OutputMode) *Result {
	has, err := r.Cache.Has(taskID, inputHash)
	if err != nil || !has {
		return nil
	}

	onDisk, err := r.Cache.HasOutputsOnDisk(taskID, inputHash, wsPath)
	if err == nil && onDisk {
		r.replay(taskID, inputHash, mode)
		r.Logger.Task(taskID, logger.StatusCached, "")
		return &Result{TaskID: taskID, Status: StatusCached}
	}

	restored, err := r.Cache.RestoreOutputs(taskID, inputHash, wsPath)
	if err == nil && restored > 0 {
		r.replay(taskID, inputHash, mode)
		r.Logger.Task(taskID, logger.StatusRestored, "")
		return &Result{TaskID: taskID, Status: StatusCached}
	}

	r.Logger.Task(taskID, logger.StatusRunning, "cache hit but outputs missing, rebuilding")
	return nil
}

// replay surfaces a cache hit's captured output according to mode. full
// replays every chunk; hash-only surfaces just the input hash; new-only and
// none suppress replay entirely (new-only still lets freshly executed tasks
// produce output, which happens elsewhere since replay is only ever called
// on a cache hit).
func (r *Runner) replay(taskID, inputHash string, mode OutputMode) {
	switch mode {
	case OutputNewOnly, OutputNone:
		return
	case OutputHashOnly:
		r.Logger.Task(taskID, logger.StatusCached, "hash "+inputHash)
		return
	}

	chunks, err := r.Cache.GetOutputChunks(taskID, inputHash)
	if err != nil {
		return
	}
	for _, c := range chunks {
		data := []byte(c.Data)
		if c.Stream == cache.Stdout {
			r.Logger.TaskStdout(taskID, data)
		} else {
			r.Logger.TaskStderr(taskID, data)
		}
	}
}

func (r *Runner) interpret(task graph.ResolvedTask, pr *process.Result) Result {
	id := task.ID.String()
	def := task.Definition

	switch {
	case pr.Killed:
		r.Logger.Task(id, logger.StatusFailed, "timeout")
		return Result{
			TaskID: id,
			Status: StatusFailed,
			Error:  &TimeoutError{TaskID: id, TimeoutMS: int(def.TimeoutOrDefault() / time.Millisecond)},
		}
	case pr.ExitCode != 0 && def.AllowFailure:
		r.Logger.Task(id, logger.StatusSuccess, "exit "+strconv.Itoa(pr.ExitCode)+", allowed")
		return Result{TaskID: id, Status: StatusSuccess}
	case pr.ExitCode != 0:
		r.Logger.Task(id, logger.StatusFailed, "exit "+strconv.Itoa(pr.ExitCode))
		return Result{
			TaskID: id,
			Status: StatusFailed,
			Error:  &ExecutionError{TaskID: id, ExitCode: pr.ExitCode, StderrTail: tail(pr.Stderr, 500)},
		}
	default:
		r.Logger.Task(id, logger.StatusSuccess, "")
		return Result{TaskID: id, Status: StatusSuccess}
	}
}

