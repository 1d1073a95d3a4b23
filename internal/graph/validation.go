package graph

import (
	"strings"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// Validate checks the graph against construction-time invariants. Violations
// reject the graph with a specific error code; nothing is silently coerced.
// Checks run in order: task count, per-task fields, duplicate ids, dependency
// resolution, cycles.
func (g *BuildGraph) Validate() error {
	if len(g.Tasks) == 0 {
		return errors.New(errors.ErrCodeGraphTaskNotFound, "graph must contain at least one task")
	}

	if len(g.Tasks) > MaxTasks {
		return errors.Newf(errors.ErrCodeGraphTooManyTasks,
			"graph has %d tasks, maximum is %d", len(g.Tasks), MaxTasks)
	}

	seen := make(map[string]bool, len(g.Tasks))
	for i := range g.Tasks {
		task := &g.Tasks[i]

		if strings.TrimSpace(task.ID) == "" {
			return errors.Newf(errors.ErrCodeGraphTaskNotFound, "task at index %d has empty id", i)
		}

		if !task.Status.Valid() {
			return errors.Newf(errors.ErrCodeGraphInvalidStatus,
				"task %s has unknown status %q", task.ID, task.Status)
		}

		if len(task.FilesExpected) > MaxFilesPerTask {
			return errors.Newf(errors.ErrCodeGraphTooManyFiles,
				"task %s expects %d files, maximum is %d", task.ID, len(task.FilesExpected), MaxFilesPerTask)
		}

		if seen[task.ID] {
			return errors.Newf(errors.ErrCodeGraphDuplicateID, "duplicate task id %q at index %d", task.ID, i)
		}
		seen[task.ID] = true
	}

	for i := range g.Tasks {
		task := &g.Tasks[i]
		for _, dep := range task.DependsOn {
			if dep == task.ID {
				return errors.Newf(errors.ErrCodeGraphUnknownDep,
					"task %s depends on itself", task.ID)
			}
			if !seen[dep] {
				return errors.Newf(errors.ErrCodeGraphUnknownDep,
					"task %s depends on unknown task %q", task.ID, dep)
			}
		}
	}

	return g.checkCycles()
}

// checkCycles detects circular dependencies via DFS
func (g *BuildGraph) checkCycles() error {
	adjacency := make(map[string][]string, len(g.Tasks))
	for i := range g.Tasks {
		adjacency[g.Tasks[i].ID] = g.Tasks[i].DependsOn
	}

	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		visited[id] = true
		inStack[id] = true
		path = append(path, id)

		for _, dep := range adjacency[id] {
			if !visited[dep] {
				if err := visit(dep, path); err != nil {
					return err
				}
			} else if inStack[dep] {
				cycle := append(path, dep)
				return errors.Newf(errors.ErrCodeGraphCyclicDep,
					"circular dependency: %s", strings.Join(cycle, " -> "))
			}
		}

		inStack[id] = false
		return nil
	}

	for i := range g.Tasks {
		if !visited[g.Tasks[i].ID] {
			if err := visit(g.Tasks[i].ID, nil); err != nil {
				return err
			}
		}
	}

	return nil
}
