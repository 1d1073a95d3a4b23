package check

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSmartAz/zaoya-sub001/internal/config"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
)

func newProjectDir(t *testing.T, pkgJSON string) string {
	t.Helper()
	dir := t.TempDir()
	if pkgJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(pkgJSON), 0600))
	}
	return dir
}

func testCfg(buildCmd, typecheckCmd []string) config.CheckConfig {
	return config.CheckConfig{
		BuildCmd:       buildCmd,
		TypecheckCmd:   typecheckCmd,
		TimeoutSeconds: 10,
	}
}

func TestBuildSkippedWithoutPackageJSON(t *testing.T) {
	dir := newProjectDir(t, "")
	tools := NewTools(dir, testCfg([]string{"false"}, nil), log.Default())

	report := tools.Build(context.Background(), "t1")
	assert.True(t, report.OK)
	assert.True(t, report.Skipped)
	assert.Equal(t, "skipped", report.Output)
}

func TestBuildSkippedWithoutBuildScript(t *testing.T) {
	dir := newProjectDir(t, `{"scripts": {"start": "node server.js"}}`)
	tools := NewTools(dir, testCfg([]string{"false"}, nil), log.Default())

	report := tools.Build(context.Background(), "t1")
	assert.True(t, report.Skipped)
}

func TestBuildRunsAndPasses(t *testing.T) {
	dir := newProjectDir(t, `{"scripts": {"build": "noop"}}`)
	tools := NewTools(dir, testCfg([]string{"sh", "-c", "echo built"}, nil), log.Default())

	report := tools.Build(context.Background(), "t1")
	assert.True(t, report.OK)
	assert.False(t, report.Skipped)
	assert.Contains(t, report.Output, "built")
	assert.NoError(t, Err(report))
}

func TestBuildFailureCapturesOutput(t *testing.T) {
	dir := newProjectDir(t, `{"scripts": {"build": "noop"}}`)
	tools := NewTools(dir, testCfg([]string{"sh", "-c", "echo boom >&2; exit 1"}, nil), log.Default())

	report := tools.Build(context.Background(), "t1")
	assert.False(t, report.OK)
	assert.Contains(t, report.Output, "boom")

	err := Err(report)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCheckFailed))
}

func TestTypecheckRequiresTSConfigOrScript(t *testing.T) {
	dir := newProjectDir(t, `{"scripts": {"build": "noop"}}`)
	tools := NewTools(dir, testCfg(nil, []string{"sh", "-c", "exit 0"}), log.Default())

	report := tools.Typecheck(context.Background(), "t1")
	assert.True(t, report.Skipped)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tsconfig.json"), []byte("{}"), 0600))
	report = tools.Typecheck(context.Background(), "t1")
	assert.False(t, report.Skipped)
	assert.True(t, report.OK)
}

func TestTimeout(t *testing.T) {
	dir := newProjectDir(t, `{"scripts": {"build": "noop"}}`)
	cfg := config.CheckConfig{
		BuildCmd:       []string{"sh", "-c", "sleep 5"},
		TimeoutSeconds: 1,
	}
	tools := NewTools(dir, cfg, log.Default())

	start := time.Now()
	report := tools.Build(context.Background(), "t1")
	assert.False(t, report.OK)
	assert.Contains(t, report.Output, "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestAllStopsAfterTypecheckFailure(t *testing.T) {
	dir := newProjectDir(t, `{"scripts": {"build": "noop", "typecheck": "noop"}}`)
	tools := NewTools(dir, testCfg(
		[]string{"sh", "-c", "echo should not run"},
		[]string{"sh", "-c", "exit 1"},
	), log.Default())

	reports := tools.All(context.Background(), "t1")
	require.Len(t, reports, 1)
	assert.Equal(t, "typecheck", reports[0].Kind)
	assert.False(t, reports[0].OK)
}

func TestAllRunsBothWhenTypecheckPasses(t *testing.T) {
	dir := newProjectDir(t, `{"scripts": {"build": "noop", "typecheck": "noop"}}`)
	tools := NewTools(dir, testCfg(
		[]string{"sh", "-c", "exit 0"},
		[]string{"sh", "-c", "exit 0"},
	), log.Default())

	reports := tools.All(context.Background(), "t1")
	require.Len(t, reports, 2)
	assert.Equal(t, "typecheck", reports[0].Kind)
	assert.Equal(t, "build", reports[1].Kind)
	assert.True(t, reports[0].OK)
	assert.True(t, reports[1].OK)
}
