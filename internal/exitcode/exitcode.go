package exitcode

import (
	"os"
	"strings"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// GraphError indicates an invalid or unsatisfiable task graph
	GraphError = 3

	// AgentError indicates an agent call failed or produced unusable output
	AgentError = 4

	// PatchError indicates a diff failed to parse or apply
	PatchError = 5

	// CheckError indicates build or typecheck tooling failed
	CheckError = 6

	// BusyError indicates the build is locked by another operation
	BusyError = 7

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Coded engine errors map by code family; anything else falls back to
// message inspection.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if code := errors.CodeOf(err); code != "" {
		switch {
		case strings.HasPrefix(string(code), "GRAPH-"):
			return GraphError
		case strings.HasPrefix(string(code), "AGENT-"):
			return AgentError
		case strings.HasPrefix(string(code), "PATCH-"):
			return PatchError
		case strings.HasPrefix(string(code), "CHECK-"),
			code == errors.ErrCodeValidateStructural:
			return CheckError
		case code == errors.ErrCodeSessionBusy:
			return BusyError
		case code == errors.ErrCodeSessionCancelled:
			return Interrupted
		case code == errors.ErrCodeConfigInvalid:
			return UsageError
		}
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "usage"), strings.Contains(errMsg, "unknown flag"):
		return UsageError
	case strings.Contains(errMsg, "busy"):
		return BusyError
	}
	return GeneralError
}
