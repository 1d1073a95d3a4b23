// Package graph defines the task graph a build executes: an ordered list of
// generation tasks with dependencies, acceptance criteria, and per-task
// status tracked in place as the build advances.
package graph

import "encoding/json"

// Limits enforced at graph construction time.
const (
	// MaxTasks is the maximum number of tasks a single graph may contain.
	MaxTasks = 15

	// MaxFilesPerTask is the maximum number of expected file paths per task.
	MaxFilesPerTask = 5
)

// Status represents the lifecycle state of a single task
type Status string

const (
	StatusTodo    Status = "todo"
	StatusDoing   Status = "doing"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusBlocked Status = "blocked"
)

// Valid reports whether s is a known task status
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// Task represents a single unit of generation work in the graph
type Task struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Goal          string   `json:"goal"`
	Acceptance    []string `json:"acceptance,omitempty"`
	DependsOn     []string `json:"depends_on,omitempty"`
	FilesExpected []string `json:"files_expected,omitempty"`
	Status        Status   `json:"status"`
}

// BuildGraph is the dependency-ordered set of tasks for one build, plus
// free-text planner notes. Task order is the declared order and is the
// tie-break for task selection.
type BuildGraph struct {
	Tasks []Task `json:"tasks"`
	Notes string `json:"notes,omitempty"`
}

// Find returns a pointer to the task with the given id, or nil
func (g *BuildGraph) Find(id string) *Task {
	for i := range g.Tasks {
		if g.Tasks[i].ID == id {
			return &g.Tasks[i]
		}
	}
	return nil
}

// NextReady returns the first task in declared order whose status is todo
// and whose every dependency is done, or nil if none qualifies. Selection is
// deterministic: identical graph and statuses always yield the same task.
func (g *BuildGraph) NextReady() *Task {
	for i := range g.Tasks {
		task := &g.Tasks[i]
		if task.Status != StatusTodo {
			continue
		}
		if g.depsDone(task) {
			return task
		}
	}
	return nil
}

// depsDone reports whether every dependency of task has status done
func (g *BuildGraph) depsDone(task *Task) bool {
	for _, dep := range task.DependsOn {
		depTask := g.Find(dep)
		if depTask == nil || depTask.Status != StatusDone {
			return false
		}
	}
	return true
}

// AllDone reports whether every task in the graph has status done
func (g *BuildGraph) AllDone() bool {
	for i := range g.Tasks {
		if g.Tasks[i].Status != StatusDone {
			return false
		}
	}
	return len(g.Tasks) > 0
}

// Blocked reports whether the graph can make no further progress: no task is
// ready, no task is in flight, and not all tasks are done. A blocked graph is
// reported to the caller, never silently skipped.
func (g *BuildGraph) Blocked() bool {
	if g.AllDone() {
		return false
	}
	for i := range g.Tasks {
		if g.Tasks[i].Status == StatusDoing {
			return false
		}
	}
	return g.NextReady() == nil
}

// Counts returns the number of tasks per status
func (g *BuildGraph) Counts() map[Status]int {
	counts := make(map[Status]int)
	for i := range g.Tasks {
		counts[g.Tasks[i].Status]++
	}
	return counts
}

// Clone returns a deep copy of the graph
func (g *BuildGraph) Clone() *BuildGraph {
	if g == nil {
		return nil
	}
	clone := &BuildGraph{
		Tasks: make([]Task, len(g.Tasks)),
		Notes: g.Notes,
	}
	for i, task := range g.Tasks {
		t := task
		t.Acceptance = append([]string(nil), task.Acceptance...)
		t.DependsOn = append([]string(nil), task.DependsOn...)
		t.FilesExpected = append([]string(nil), task.FilesExpected...)
		clone.Tasks[i] = t
	}
	return clone
}

// ToJSON serializes the graph
func (g *BuildGraph) ToJSON() ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// FromJSON parses a graph from JSON. The result is not validated; callers
// must run Validate before accepting the graph into a build.
func FromJSON(data []byte) (*BuildGraph, error) {
	var g BuildGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
