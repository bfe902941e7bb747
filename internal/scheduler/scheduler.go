// Package scheduler implements the parallel-level walk described in spec
// §4.8: bounded-concurrency dispatch within each level of a TaskGraph, with
// a failure cascade that skips downstream work when continueOnError is
// false.
//
// It is grounded on the teacher's internal/core engine, which also walks a
// graph's levels under a concurrency limit (there via util.Semaphore);
// here the limit is enforced with golang.org/x/sync/semaphore and the set
// of failed tasks uses github.com/deckarep/golang-set instead of a
// hand-rolled set.
package scheduler

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/cockpitdev/cockpit/internal/graph"
	"github.com/cockpitdev/cockpit/internal/runner"
)

// Options configures a single Run invocation.
type Options struct {
	Concurrency     int
	ContinueOnError bool
	RunnerOptions   runner.Options
}

// RunResult is one task's outcome as seen by the scheduler, always present
// 1:1 with graph.Tasks regardless of whether the task actually executed.
type RunResult struct {
	TaskID   string
	Status   runner.Status
	Error    error
	Duration time.Duration
}

// Summary is the aggregate outcome of a Run.
type Summary struct {
	RunID   string
	Success bool
	Results []RunResult
	Errors  *multierror.Error
}

// Scheduler dispatches a TaskGraph's levels against a Runner.
type Scheduler struct {
	Runner *runner.Runner
}

// ValidatePersistentDependencies rejects a graph where a non-persistent task
// depends on a persistent one but concurrency is too low for both to occupy
// a slot at once. A persistent task (a dev server, a watcher) never exits,
// so running it and anything depending on it requires at least two
// concurrent slots; with concurrency 1 the dependent would wait forever.
func ValidatePersistentDependencies(g *graph.TaskGraph, concurrency int) error {
	if concurrency > 1 {
		return nil
	}
	for id, task := range g.Tasks {
		if task.Definition.Persistent {
			continue
		}
		for _, dep := range task.Dependencies {
			depTask, ok := g.Tasks[dep.String()]
			if ok && depTask.Definition.Persistent {
				return &PersistentDependencyError{
					TaskID:           id,
					PersistentTaskID: dep.String(),
					Concurrency:      concurrency,
				}
			}
		}
	}
	return nil
}

// Run walks g.ParallelLevels in order, running each level's tasks
// concurrently under a semaphore of size opts.Concurrency, cascading
// failures into skips per spec §4.8.
func (s *Scheduler) Run(g *graph.TaskGraph, opts Options) Summary {
	runID := uuid.New().String()
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	failed := mapset.NewSet()
	anyFailed := false

	results := make([]RunResult, 0, len(g.Tasks))
	var errs *multierror.Error

	sem := semaphore.NewWeighted(int64(concurrency))
	ctx := context.Background()

	for _, level := range g.ParallelLevels {
		if anyFailed && !opts.ContinueOnError {
			for _, id := range level {
				results = append(results, RunResult{TaskID: id, Status: runner.StatusSkipped})
			}
			continue
		}

		var mu sync.Mutex
		var wg sync.WaitGroup

		for _, id := range level {
			id := id
			task := g.Tasks[id]

			if s.dependencyFailed(task, failed) && !opts.ContinueOnError {
				results = append(results, RunResult{TaskID: id, Status: runner.StatusSkipped})
				continue
			}

			_ = sem.Acquire(ctx, 1)
			wg.Add(1)
			go func() {
				defer sem.Release(1)
				defer wg.Done()

				res := s.Runner.Run(task, opts.RunnerOptions)

				mu.Lock()
				defer mu.Unlock()
				results = append(results, RunResult{
					TaskID:   id,
					Status:   res.Status,
					Error:    res.Error,
					Duration: res.Duration,
				})
				switch res.Status {
				case runner.StatusFailed:
					failed.Add(id)
					anyFailed = true
					if res.Error != nil {
						errs = multierror.Append(errs, res.Error)
					}
				}
			}()
		}
		wg.Wait()
	}

	return Summary{
		RunID:   runID,
		Success: !anyFailed,
		Results: results,
		Errors:  errs,
	}
}

// dependencyFailed reports whether any of task's dependencies are in the
// failed set.
func (s *Scheduler) dependencyFailed(task graph.ResolvedTask, failed mapset.Set) bool {
	for _, dep := range task.Dependencies {
		if failed.Contains(dep.String()) {
			return true
		}
	}
	return false
}
