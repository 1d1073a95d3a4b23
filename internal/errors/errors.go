package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Graph errors (GRAPH-001 to GRAPH-099)
	ErrCodeGraphTooManyTasks  ErrorCode = "GRAPH-001"
	ErrCodeGraphDuplicateID   ErrorCode = "GRAPH-002"
	ErrCodeGraphUnknownDep    ErrorCode = "GRAPH-003"
	ErrCodeGraphTooManyFiles  ErrorCode = "GRAPH-004"
	ErrCodeGraphCyclicDep     ErrorCode = "GRAPH-005"
	ErrCodeGraphTaskNotFound  ErrorCode = "GRAPH-006"
	ErrCodeGraphInvalidStatus ErrorCode = "GRAPH-007"

	// Agent errors (AGENT-001 to AGENT-099)
	ErrCodeAgentMalformedOutput ErrorCode = "AGENT-001"
	ErrCodeAgentInvalidSchema   ErrorCode = "AGENT-002"
	ErrCodeAgentTimeout         ErrorCode = "AGENT-003"
	ErrCodeAgentCallFailed      ErrorCode = "AGENT-004"

	// Patch errors (PATCH-001 to PATCH-099)
	ErrCodePatchParseFailed   ErrorCode = "PATCH-001"
	ErrCodePatchApplyConflict ErrorCode = "PATCH-002"
	ErrCodePatchEmpty         ErrorCode = "PATCH-003"
	ErrCodePatchPathEscape    ErrorCode = "PATCH-004"

	// Validation errors (VALIDATE-001 to VALIDATE-099)
	ErrCodeValidateStructural ErrorCode = "VALIDATE-001"

	// Check errors (CHECK-001 to CHECK-099)
	ErrCodeCheckFailed  ErrorCode = "CHECK-001"
	ErrCodeCheckTimeout ErrorCode = "CHECK-002"

	// Build errors (BUILD-001 to BUILD-099)
	ErrCodeBuildNotFound     ErrorCode = "BUILD-001"
	ErrCodeBuildBlocked      ErrorCode = "BUILD-002"
	ErrCodeBuildTerminal     ErrorCode = "BUILD-003"
	ErrCodeBuildUnknownPhase ErrorCode = "BUILD-004"
	ErrCodeBuildRetryBudget  ErrorCode = "BUILD-005"

	// Session errors (SESSION-001 to SESSION-099)
	ErrCodeSessionBusy      ErrorCode = "SESSION-001"
	ErrCodeSessionClosed    ErrorCode = "SESSION-002"
	ErrCodeSessionCancelled ErrorCode = "SESSION-003"

	// Store errors (STORE-001 to STORE-099)
	ErrCodeStoreNotFound  ErrorCode = "STORE-001"
	ErrCodeStoreDuplicate ErrorCode = "STORE-002"

	// Snapshot errors (SNAP-001 to SNAP-099)
	ErrCodeSnapshotCreate  ErrorCode = "SNAP-001"
	ErrCodeSnapshotRestore ErrorCode = "SNAP-002"
	ErrCodeSnapshotMissing ErrorCode = "SNAP-003"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-004"
	ErrCodeFileMarshal     ErrorCode = "IO-005"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
)

// EngineError represents an enhanced error with code, cause, and suggestions
type EngineError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  - %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// New creates a new EngineError
func New(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new EngineError with a formatted message
func Newf(code ErrorCode, format string, args ...any) *EngineError {
	return &EngineError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new EngineError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *EngineError) WithSuggestions(suggestions ...string) *EngineError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// CodeOf returns the error code of the first EngineError in the chain,
// or "" if err carries none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if ee, ok := err.(*EngineError); ok {
			return ee.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// HasCode reports whether err carries the given error code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if ee, ok := err.(*EngineError); ok && ee.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether err represents a failure the orchestrator may
// retry within a phase budget. Fatal input errors and concurrency conflicts
// are not retryable.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeAgentMalformedOutput, ErrCodeAgentInvalidSchema, ErrCodeAgentTimeout,
		ErrCodeAgentCallFailed, ErrCodePatchParseFailed, ErrCodePatchApplyConflict,
		ErrCodePatchEmpty, ErrCodeCheckTimeout:
		return true
	}
	return false
}

// Common error constructors for frequently used errors

// NewBuildBusyError creates a concurrency-conflict error for a build that
// already has a step in flight.
func NewBuildBusyError(buildID string) *EngineError {
	return Newf(ErrCodeSessionBusy, "build %s is busy: a step is already executing", buildID).
		WithSuggestion("Retry after the current step completes").
		WithSuggestion("Attach to the stream instead of issuing concurrent steps")
}

// NewBuildNotFoundError creates a missing-build error
func NewBuildNotFoundError(buildID string) *EngineError {
	return Newf(ErrCodeBuildNotFound, "build not found: %s", buildID).
		WithSuggestion("Check the build id").
		WithSuggestion("Create the build before stepping it")
}

// NewMalformedAgentOutputError creates an unparsable-agent-output error
func NewMalformedAgentOutputError(agent string, cause error) *EngineError {
	return Wrap(ErrCodeAgentMalformedOutput, fmt.Sprintf("agent %s returned no extractable JSON object", agent), cause).
		WithSuggestion("The call is retried automatically within the phase retry budget")
}

// NewPathEscapeError creates a sandbox-escape error
func NewPathEscapeError(path string) *EngineError {
	return Newf(ErrCodePatchPathEscape, "path escapes the sandbox root: %s", path).
		WithSuggestion("Use paths relative to the project root, without '..'")
}
