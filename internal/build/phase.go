package build

import "github.com/TheSmartAz/zaoya-sub001/internal/errors"

// Phase represents the orchestrator's current stage within a build's
// lifecycle. Phases are persisted as strings; unknown values are rejected on
// load rather than coerced.
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseImplementing Phase = "implementing"
	PhaseValidating   Phase = "validating"
	PhaseChecking     Phase = "checking"
	PhaseReviewing    Phase = "reviewing"
	PhaseReady        Phase = "ready"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

var allPhases = map[Phase]bool{
	PhasePlanning:     true,
	PhaseImplementing: true,
	PhaseValidating:   true,
	PhaseChecking:     true,
	PhaseReviewing:    true,
	PhaseReady:        true,
	PhaseFailed:       true,
	PhaseCancelled:    true,
}

// ParsePhase parses a persisted phase string, rejecting unknown values
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !allPhases[p] {
		return "", errors.Newf(errors.ErrCodeBuildUnknownPhase, "unknown build phase %q", s)
	}
	return p, nil
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	return allPhases[p]
}

// Terminal reports whether p is a terminal phase. Terminal builds accept no
// further steps.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseReady, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// String returns the persisted representation
func (p Phase) String() string {
	return string(p)
}
