// Package topo implements Kahn's topological sort, a fixed-point parallel
// level partition, and a DFS cycle witness, over a plain dependency map.
//
// This is deliberately hand-rolled rather than delegated to a generic graph
// library: the algorithm itself (Kahn ordering, fixed-point level
// assignment, DFS-recovered cycle witness) is what's being specified, not
// merely its result.
package topo

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set"
)

// CyclicDependencyError is returned when the dependency graph contains a
// cycle. Cycle is a closed walk: Cycle[0] == Cycle[len(Cycle)-1].
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency detected: %v", e.Cycle)
}

// Sort computes a topological order of the given node set using Kahn's
// algorithm. deps maps a node to the nodes it depends on (its dependencies
// must come out earlier in the order). Dependencies not present in the
// nodes set are ignored for ordering purposes.
//
// Nodes are visited off the FIFO queue in a deterministic order: the initial
// zero-in-degree nodes, and the nodes each visit makes ready, are enqueued
// in lexicographic order so that Sort is reproducible across runs.
func Sort(nodes []string, deps map[string][]string) ([]string, error) {
	nodeSet := mapset.NewSet()
	for _, n := range nodes {
		nodeSet.Add(n)
	}

	// indegree[n] counts dependencies of n that are also in nodeSet.
	indegree := make(map[string]int, len(nodes))
	// dependents[d] lists nodes that depend on d.
	dependents := make(map[string][]string)
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, n := range nodes {
		for _, d := range deps[n] {
			if !nodeSet.Contains(d) {
				continue
			}
			indegree[n]++
			dependents[d] = append(dependents[d], n)
		}
	}

	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		next := append([]string{}, dependents[n]...)
		sort.Strings(next)
		for _, m := range next {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if len(order) != len(nodes) {
		cycle := FindCycle(nodes, deps)
		return nil, &CyclicDependencyError{Cycle: cycle}
	}
	return order, nil
}

func insertSorted(queue []string, v string) []string {
	i := sort.SearchStrings(queue, v)
	queue = append(queue, "")
	copy(queue[i+1:], queue[i:])
	queue[i] = v
	return queue
}

// Levels partitions nodes into parallel levels: level k contains every
// remaining node whose dependencies (restricted to the node set) are all in
// levels < k. Returns CyclicDependencyError if any iteration stalls with
// nodes still remaining.
func Levels(nodes []string, deps map[string][]string) ([][]string, error) {
	nodeSet := mapset.NewSet()
	for _, n := range nodes {
		nodeSet.Add(n)
	}

	completed := mapset.NewSet()
	remaining := make([]string, len(nodes))
	copy(remaining, nodes)
	sort.Strings(remaining)

	var levels [][]string
	for len(remaining) > 0 {
		var level []string
		var stillRemaining []string
		for _, n := range remaining {
			ready := true
			for _, d := range deps[n] {
				if !nodeSet.Contains(d) {
					continue
				}
				if !completed.Contains(d) {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, n)
			} else {
				stillRemaining = append(stillRemaining, n)
			}
		}
		if len(level) == 0 {
			cycle := FindCycle(nodes, deps)
			return nil, &CyclicDependencyError{Cycle: cycle}
		}
		sort.Strings(level)
		levels = append(levels, level)
		for _, n := range level {
			completed.Add(n)
		}
		remaining = stillRemaining
	}
	return levels, nil
}

// FindCycle runs a DFS over the dependency map (restricted to nodes),
// tracking the recursion stack and the current path. The first back-edge
// found yields the cycle witness: the path slice from the target node to
// the current node, with the target node repeated at the end to close the
// walk.
func FindCycle(nodes []string, deps map[string][]string) []string {
	nodeSet := mapset.NewSet()
	for _, n := range nodes {
		nodeSet.Add(n)
	}

	visited := mapset.NewSet()
	onStack := mapset.NewSet()
	var path []string
	var witness []string

	sorted := append([]string{}, nodes...)
	sort.Strings(sorted)

	var visit func(n string) bool
	visit = func(n string) bool {
		visited.Add(n)
		onStack.Add(n)
		path = append(path, n)

		depList := append([]string{}, deps[n]...)
		sort.Strings(depList)
		for _, d := range depList {
			if !nodeSet.Contains(d) {
				continue
			}
			if onStack.Contains(d) {
				// Found the back-edge: slice the path from d's position.
				idx := indexOf(path, d)
				witness = append(append([]string{}, path[idx:]...), d)
				return true
			}
			if !visited.Contains(d) {
				if visit(d) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		onStack.Delete(n)
		return false
	}

	for _, n := range sorted {
		if !visited.Contains(n) {
			if visit(n) {
				return witness
			}
		}
	}
	return nil
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
