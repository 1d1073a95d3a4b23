package build

import (
	"encoding/json"
	"time"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/graph"
)

// State is the orchestrator's unit of persistence and concurrency control.
// Exactly one State exists per build id; it is exclusively owned by the
// orchestrator during a step and by the store between steps.
type State struct {
	BuildID   string `json:"build_id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`

	Phase         Phase  `json:"phase"`
	CurrentTaskID string `json:"current_task_id,omitempty"`

	// Opaque structured inputs supplied by the product-doc collaborator.
	Brief      string          `json:"brief,omitempty"`
	BuildPlan  json.RawMessage `json:"build_plan,omitempty"`
	ProductDoc json.RawMessage `json:"product_doc,omitempty"`

	BuildGraph *graph.BuildGraph `json:"build_graph,omitempty"`

	PatchSets         []Patch            `json:"patch_sets,omitempty"`
	ValidationReports []ValidationReport `json:"validation_reports,omitempty"`
	CheckReports      []CheckReport      `json:"check_reports,omitempty"`
	ReviewReports     []ReviewReport     `json:"review_reports,omitempty"`
	AgentUsage        []AgentUsage       `json:"agent_usage,omitempty"`
	History           []Event            `json:"history,omitempty"`

	// TaskRetries counts review/patch rejections per task id.
	TaskRetries map[string]int `json:"task_retries,omitempty"`
	// PatchConflict holds the latest apply failure for the current task; it
	// is fed back to the implementer on retry and cleared on a clean apply.
	PatchConflict string `json:"patch_conflict,omitempty"`
	// PhaseAttempts counts retryable failures within the current phase.
	PhaseAttempts int `json:"phase_attempts,omitempty"`

	// SnapshotID is the checkpoint taken before the current task started,
	// used for rollback when the task fails.
	SnapshotID string `json:"snapshot_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewState creates a build state in the planning phase
func NewState(buildID, projectID, userID string) *State {
	now := time.Now().UTC()
	return &State{
		BuildID:     buildID,
		ProjectID:   projectID,
		UserID:      userID,
		Phase:       PhasePlanning,
		TaskRetries: make(map[string]int),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch updates the modification timestamp
func (s *State) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// AppendEvent records a history entry and touches the state
func (s *State) AppendEvent(kind, detail string) {
	s.History = append(s.History, Event{
		Kind:   kind,
		Detail: detail,
		TaskID: s.CurrentTaskID,
		At:     time.Now().UTC(),
	})
	s.Touch()
}

// SetPhase transitions the phase and resets the per-phase attempt counter
func (s *State) SetPhase(p Phase) {
	if s.Phase != p {
		s.PhaseAttempts = 0
	}
	s.Phase = p
	s.Touch()
}

// Complete transitions to a terminal phase, setting CompletedAt exactly once.
// Calling Complete with a non-terminal phase is an error.
func (s *State) Complete(p Phase) error {
	if !p.Terminal() {
		return errors.Newf(errors.ErrCodeBuildTerminal, "phase %s is not terminal", p)
	}
	s.SetPhase(p)
	if s.CompletedAt == nil {
		now := time.Now().UTC()
		s.CompletedAt = &now
	}
	return nil
}

// SetCurrentTask marks the task as doing and records it as current. The
// current task invariant holds: CurrentTaskID, if set, always references a
// task in the graph with status doing.
func (s *State) SetCurrentTask(taskID string) error {
	if s.BuildGraph == nil {
		return errors.New(errors.ErrCodeGraphTaskNotFound, "build has no graph")
	}
	task := s.BuildGraph.Find(taskID)
	if task == nil {
		return errors.Newf(errors.ErrCodeGraphTaskNotFound, "task %s not in graph", taskID)
	}
	task.Status = graph.StatusDoing
	s.CurrentTaskID = taskID
	s.Touch()
	return nil
}

// ClearCurrentTask drops the current task reference
func (s *State) ClearCurrentTask() {
	s.CurrentTaskID = ""
	s.Touch()
}

// CurrentTask returns the task referenced by CurrentTaskID, or nil
func (s *State) CurrentTask() *graph.Task {
	if s.CurrentTaskID == "" || s.BuildGraph == nil {
		return nil
	}
	return s.BuildGraph.Find(s.CurrentTaskID)
}

// RetryCount returns the retry count for a task
func (s *State) RetryCount(taskID string) int {
	if s.TaskRetries == nil {
		return 0
	}
	return s.TaskRetries[taskID]
}

// IncrementRetry bumps and returns the retry count for a task
func (s *State) IncrementRetry(taskID string) int {
	if s.TaskRetries == nil {
		s.TaskRetries = make(map[string]int)
	}
	s.TaskRetries[taskID]++
	s.Touch()
	return s.TaskRetries[taskID]
}

// RecordUsage appends an agent usage entry
func (s *State) RecordUsage(u AgentUsage) {
	s.AgentUsage = append(s.AgentUsage, u)
	s.Touch()
}

// TotalTokenUsage returns the element-wise sum over all recorded agent calls
func (s *State) TotalTokenUsage() TokenUsage {
	var total TokenUsage
	for _, u := range s.AgentUsage {
		total = total.Add(u.Usage)
	}
	return total
}

// LastAgentUsage returns the most recent agent usage entry, or nil
func (s *State) LastAgentUsage() *AgentUsage {
	if len(s.AgentUsage) == 0 {
		return nil
	}
	return &s.AgentUsage[len(s.AgentUsage)-1]
}

// LastPatch returns the most recent applied patch, or nil
func (s *State) LastPatch() *Patch {
	if len(s.PatchSets) == 0 {
		return nil
	}
	return &s.PatchSets[len(s.PatchSets)-1]
}

// LastValidation returns the most recent validation report, or nil
func (s *State) LastValidation() *ValidationReport {
	if len(s.ValidationReports) == 0 {
		return nil
	}
	return &s.ValidationReports[len(s.ValidationReports)-1]
}

// LastChecks returns the check reports recorded for the most recent checking
// pass: the trailing run of reports sharing the newest report's task id.
func (s *State) LastChecks() []CheckReport {
	if len(s.CheckReports) == 0 {
		return nil
	}
	last := s.CheckReports[len(s.CheckReports)-1]
	start := len(s.CheckReports) - 1
	for start > 0 && s.CheckReports[start-1].TaskID == last.TaskID {
		start--
	}
	return s.CheckReports[start:]
}

// LastReview returns the most recent review report, or nil
func (s *State) LastReview() *ReviewReport {
	if len(s.ReviewReports) == 0 {
		return nil
	}
	return &s.ReviewReports[len(s.ReviewReports)-1]
}

// Clone returns a deep copy of the state. Stores hand out clones so the
// orchestrator and the store never share mutable structures.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.BuildGraph = s.BuildGraph.Clone()
	clone.BuildPlan = append(json.RawMessage(nil), s.BuildPlan...)
	clone.ProductDoc = append(json.RawMessage(nil), s.ProductDoc...)
	clone.PatchSets = append([]Patch(nil), s.PatchSets...)
	clone.ValidationReports = append([]ValidationReport(nil), s.ValidationReports...)
	clone.CheckReports = append([]CheckReport(nil), s.CheckReports...)
	clone.ReviewReports = append([]ReviewReport(nil), s.ReviewReports...)
	clone.AgentUsage = append([]AgentUsage(nil), s.AgentUsage...)
	clone.History = append([]Event(nil), s.History...)
	if s.TaskRetries != nil {
		clone.TaskRetries = make(map[string]int, len(s.TaskRetries))
		for k, v := range s.TaskRetries {
			clone.TaskRetries[k] = v
		}
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}

// ToJSON serializes the state
func (s *State) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON parses a persisted state, rejecting unknown phases
func FromJSON(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileUnmarshal, "failed to parse build state", err)
	}
	if _, err := ParsePhase(string(s.Phase)); err != nil {
		return nil, err
	}
	return &s, nil
}
