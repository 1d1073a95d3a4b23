package build

import "time"

// Patch is the Implementer agent's output: a unified diff plus metadata.
// Patches are applied atomically against the build's sandboxed file tree.
type Patch struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	Diff         string    `json:"diff"`
	TouchedFiles []string  `json:"touched_files,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	// Rollback is the inverse of Diff, recorded at apply time so an applied
	// patch can be undone without replaying snapshots.
	Rollback  string    `json:"rollback,omitempty"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

// ValidationReport is the result of the structural validation gate
type ValidationReport struct {
	TaskID         string    `json:"task_id,omitempty"`
	OK             bool      `json:"ok"`
	Errors         []string  `json:"errors,omitempty"`
	NormalizedHTML string    `json:"normalized_html,omitempty"`
	JSValid        bool      `json:"js_valid"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// CheckReport is the result of one external build/typecheck invocation.
// A missing manifest or script yields OK with Skipped set; checks are
// best-effort and never a hard requirement for progress.
type CheckReport struct {
	TaskID    string    `json:"task_id,omitempty"`
	Kind      string    `json:"kind"` // typecheck or build
	OK        bool      `json:"ok"`
	Output    string    `json:"output,omitempty"`
	Skipped   bool      `json:"skipped,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Decision is the Reviewer agent's verdict on a task
type Decision string

const (
	DecisionApprove        Decision = "approve"
	DecisionRequestChanges Decision = "request_changes"
)

// Valid reports whether d is a known decision
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionRequestChanges
}

// ReviewReport is the Reviewer agent's structured output
type ReviewReport struct {
	TaskID        string    `json:"task_id,omitempty"`
	Decision      Decision  `json:"decision"`
	Reasons       []string  `json:"reasons,omitempty"`
	RequiredFixes []string  `json:"required_fixes,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// Event is one entry in a build's append-only history log
type Event struct {
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
	TaskID string    `json:"task_id,omitempty"`
	At     time.Time `json:"at"`
}
