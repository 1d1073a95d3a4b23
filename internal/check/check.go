// Package check runs the project's own build and typecheck tooling against
// a sandboxed tree. Projects without a package.json or without the relevant
// script are skipped rather than failed, since many generated sites are
// plain static files.
package check

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/config"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
)

// maxOutputBytes bounds the tool output stored in a report
const maxOutputBytes = 16 * 1024

// Tools runs configured check commands inside a project directory
type Tools struct {
	dir    string
	cfg    config.CheckConfig
	logger *log.Logger
}

// NewTools creates a check runner for the given project directory
func NewTools(dir string, cfg config.CheckConfig, logger *log.Logger) *Tools {
	return &Tools{dir: dir, cfg: cfg, logger: logger.With("component", "check")}
}

// Build runs the configured build command
func (t *Tools) Build(ctx context.Context, taskID string) *build.CheckReport {
	return t.run(ctx, taskID, "build", t.cfg.BuildCmd)
}

// Typecheck runs the configured typecheck command
func (t *Tools) Typecheck(ctx context.Context, taskID string) *build.CheckReport {
	return t.run(ctx, taskID, "typecheck", t.cfg.TypecheckCmd)
}

// All runs every applicable check in order, stopping at the first failure
func (t *Tools) All(ctx context.Context, taskID string) []*build.CheckReport {
	reports := []*build.CheckReport{t.Typecheck(ctx, taskID)}
	if !reports[0].OK {
		return reports
	}
	return append(reports, t.Build(ctx, taskID))
}

func (t *Tools) run(ctx context.Context, taskID, kind string, argv []string) *build.CheckReport {
	report := &build.CheckReport{
		TaskID:    taskID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}

	if len(argv) == 0 || !t.applicable(kind) {
		report.OK = true
		report.Skipped = true
		report.Output = "skipped"
		t.logger.Debug("check skipped", "kind", kind, "task_id", taskID)
		return report
	}

	runCtx := ctx
	if t.cfg.Timeout() > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.cfg.Timeout())
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = t.dir
	// don't wait on inherited pipes held open by orphaned grandchildren
	// after the context kills the command
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	report.Output = truncate(out.String())

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		report.OK = false
		report.Output = report.Output + "\n(timed out)"
		t.logger.Warn("check timed out", "kind", kind, "task_id", taskID, "elapsed", elapsed)
	case err != nil:
		report.OK = false
		t.logger.Info("check failed", "kind", kind, "task_id", taskID, "elapsed", elapsed)
	default:
		report.OK = true
		t.logger.Debug("check passed", "kind", kind, "task_id", taskID, "elapsed", elapsed)
	}
	return report
}

// applicable reports whether the project can run the given check. Both
// checks require a package.json; typecheck additionally requires a
// TypeScript config or a typecheck-capable setup.
func (t *Tools) applicable(kind string) bool {
	pkgPath := filepath.Join(t.dir, "package.json")
	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	if kind == "typecheck" {
		if _, err := os.Stat(filepath.Join(t.dir, "tsconfig.json")); err == nil {
			return true
		}
		var pkg struct {
			Scripts map[string]string `json:"scripts"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			_, ok := pkg.Scripts["typecheck"]
			return ok
		}
		return false
	}

	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts["build"]
	return ok
}

// Err converts a failed report into a coded error, or nil for passing and
// skipped reports
func Err(report *build.CheckReport) error {
	if report == nil || report.OK {
		return nil
	}
	return errors.Newf(errors.ErrCodeCheckFailed, "%s check failed", report.Kind).
		WithSuggestion("inspect the tool output in the check report")
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n... (truncated)"
}
