package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSmartAz/zaoya-sub001/internal/agent"
	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/check"
	"github.com/TheSmartAz/zaoya-sub001/internal/config"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/graph"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
	"github.com/TheSmartAz/zaoya-sub001/internal/repotool"
	"github.com/TheSmartAz/zaoya-sub001/internal/snapshot"
	"github.com/TheSmartAz/zaoya-sub001/internal/store"
	"github.com/TheSmartAz/zaoya-sub001/internal/validate"
)

// scriptGen replays canned responses, recording the prompts it was given;
// the last response repeats
type scriptGen struct {
	mu        sync.Mutex
	responses []string
	calls     int
	prompts   []string
}

func (g *scriptGen) Generate(_ context.Context, req agent.Request) (*agent.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, req.Prompt)
	idx := g.calls
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	g.calls++
	return &agent.Response{
		Content: g.responses[idx],
		Model:   "script",
		Usage:   build.TokenUsage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
	}, nil
}

func (g *scriptGen) Name() string { return "script" }

type rig struct {
	store *store.MemoryStore
	tree  *repotool.Tree
	orch  *Orchestrator
}

func newRig(t *testing.T, cfg *config.Config, planGen, implGen, revGen agent.TextGenerator) *rig {
	t.Helper()
	logger := log.Default()

	tree, err := repotool.NewTree(t.TempDir())
	require.NoError(t, err)
	snaps, err := snapshot.NewManager(tree, t.TempDir(), logger)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	orch := New(
		st,
		tree,
		agent.NewPlanner(planGen, logger, cfg.Retry.AgentAttempts, cfg.Agent.MaxTokens, cfg.Agent.Temperature),
		agent.NewImplementer(implGen, logger, cfg.Agent.MaxTokens, cfg.Agent.Temperature),
		agent.NewReviewer(revGen, logger, cfg.Agent.MaxTokens, cfg.Agent.Temperature),
		validate.NewRunner(),
		check.NewTools(tree.Root(), cfg.Check, logger),
		snaps,
		cfg,
		logger,
	)
	return &rig{store: st, tree: tree, orch: orch}
}

// planJSON builds a plan where each task creates one html file
func planJSON(n int) string {
	tasks := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		task := map[string]any{
			"id":             fmt.Sprintf("t%d", i),
			"title":          fmt.Sprintf("page %d", i),
			"goal":           fmt.Sprintf("create page %d", i),
			"acceptance":     []string{fmt.Sprintf("page%d.html exists", i)},
			"files_expected": []string{fmt.Sprintf("page%d.html", i)},
		}
		if i > 1 {
			task["depends_on"] = []string{fmt.Sprintf("t%d", i-1)}
		}
		tasks = append(tasks, task)
	}
	out, _ := json.Marshal(map[string]any{
		"product": map[string]string{"name": "site", "summary": "multi page site"},
		"tasks":   tasks,
	})
	return string(out)
}

// implJSON builds an implementer response creating one file
func implJSON(path, line string) string {
	diff := fmt.Sprintf("--- /dev/null\n+++ b/%s\n@@ -0,0 +1,1 @@\n+%s\n", path, line)
	out, _ := json.Marshal(map[string]string{"diff": diff})
	return string(out)
}

const approveJSON = `{"decision": "approve", "reasons": ["criteria met"]}`
const rejectJSON = `{"decision": "request_changes", "reasons": ["wrong"], "required_fixes": ["do it properly"]}`

func newBuild(t *testing.T, r *rig, buildID string) *build.State {
	t.Helper()
	s := build.NewState(buildID, "p1", "u1")
	s.Brief = "build a small site"
	require.NoError(t, r.store.Create(context.Background(), s))
	return s
}

// drive steps until the build reaches a terminal phase or the cap is hit
func drive(t *testing.T, r *rig, buildID string, maxSteps int) (*build.State, error) {
	t.Helper()
	var s *build.State
	var err error
	for i := 0; i < maxSteps; i++ {
		s, err = r.orch.Step(context.Background(), buildID, ModeStep)
		require.NotNil(t, s)
		if s.Phase.Terminal() {
			return s, err
		}
	}
	return s, err
}

func TestFiveTaskBuildReachesReady(t *testing.T) {
	cfg := config.Default()
	planGen := &scriptGen{responses: []string{planJSON(5)}}
	implResponses := make([]string, 5)
	for i := 1; i <= 5; i++ {
		implResponses[i-1] = implJSON(fmt.Sprintf("page%d.html", i), fmt.Sprintf("<html><body><h1>%d</h1></body></html>", i))
	}
	implGen := &scriptGen{responses: implResponses}
	revGen := &scriptGen{responses: []string{approveJSON}}

	r := newRig(t, cfg, planGen, implGen, revGen)
	newBuild(t, r, "b1")

	s, err := drive(t, r, "b1", 40)
	require.NoError(t, err)
	assert.Equal(t, build.PhaseReady, s.Phase)
	require.NotNil(t, s.CompletedAt)
	assert.True(t, s.BuildGraph.AllDone())
	assert.Empty(t, s.CurrentTaskID)

	// one patch per task, all applied to the tree
	assert.Len(t, s.PatchSets, 5)
	for i := 1; i <= 5; i++ {
		assert.True(t, r.tree.Exists(fmt.Sprintf("page%d.html", i)))
	}

	// usage accumulated across planner, implementers and reviewers
	assert.Equal(t, 11, len(s.AgentUsage))
	assert.Equal(t, 110, s.TotalTokenUsage().TotalTokens)

	// history records the lifecycle
	kinds := map[string]int{}
	for _, e := range s.History {
		kinds[e.Kind]++
	}
	assert.Equal(t, 5, kinds["task_started"])
	assert.Equal(t, 5, kinds["task_done"])
	assert.Equal(t, 1, kinds["build_ready"])
}

func TestPlanOnlyStopsAfterPlanning(t *testing.T) {
	cfg := config.Default()
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(2)}},
		&scriptGen{responses: []string{implJSON("page1.html", "<html></html>")}},
		&scriptGen{responses: []string{approveJSON}},
	)
	newBuild(t, r, "b1")

	s, err := r.orch.Step(context.Background(), "b1", ModePlanOnly)
	require.NoError(t, err)
	assert.Equal(t, build.PhaseImplementing, s.Phase)
	require.NotNil(t, s.BuildGraph)
	assert.Len(t, s.BuildGraph.Tasks, 2)
	assert.Equal(t, "t1", s.CurrentTaskID)

	// further plan_only steps are no-ops
	s2, err := r.orch.Step(context.Background(), "b1", ModePlanOnly)
	require.NoError(t, err)
	assert.Equal(t, build.PhaseImplementing, s2.Phase)
	assert.Empty(t, s2.PatchSets)
}

func TestRepeatedRejectionFailsBuild(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.ReviewCycles = 3

	implGen := &scriptGen{responses: []string{
		implJSON("page1.html", "<html><body>v1</body></html>"),
		`{"diff": "--- a/page1.html\n+++ b/page1.html\n@@ -1,1 +1,1 @@\n-<html><body>v1</body></html>\n+<html><body>v2</body></html>\n"}`,
		`{"diff": "--- a/page1.html\n+++ b/page1.html\n@@ -1,1 +1,1 @@\n-<html><body>v2</body></html>\n+<html><body>v3</body></html>\n"}`,
	}}
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		implGen,
		&scriptGen{responses: []string{rejectJSON}},
	)
	newBuild(t, r, "b1")

	s, err := drive(t, r, "b1", 40)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBuildRetryBudget))
	assert.Equal(t, build.PhaseFailed, s.Phase)

	review := s.LastReview()
	require.NotNil(t, review)
	assert.Equal(t, build.DecisionRequestChanges, review.Decision)
	assert.Equal(t, 3, s.RetryCount("t1"))
	assert.Equal(t, graph.StatusFailed, s.BuildGraph.Find("t1").Status)
}

func TestRequestChangesFeedsFixesBack(t *testing.T) {
	cfg := config.Default()
	implGen := &scriptGen{responses: []string{
		implJSON("page1.html", "<html><body>v1</body></html>"),
		// second attempt rewrites the file created by the first
		`{"diff": "--- a/page1.html\n+++ b/page1.html\n@@ -1,1 +1,1 @@\n-<html><body>v1</body></html>\n+<html><body>v2</body></html>\n"}`,
	}}
	revGen := &scriptGen{responses: []string{rejectJSON, approveJSON}}

	r := newRig(t, cfg, &scriptGen{responses: []string{planJSON(1)}}, implGen, revGen)
	newBuild(t, r, "b1")

	s, err := drive(t, r, "b1", 40)
	require.NoError(t, err)
	assert.Equal(t, build.PhaseReady, s.Phase)

	content, err := r.tree.ReadFile("page1.html")
	require.NoError(t, err)
	assert.Contains(t, content, "v2")

	// the retry attempt saw the reviewer's required fixes
	require.Equal(t, 2, implGen.calls)
	assert.Equal(t, 1, s.RetryCount("t1"))
}

func TestPatchConflictRetriesThenFails(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.TaskRetries = 1

	// diff modifies a file that does not exist, so it always conflicts
	badImpl := `{"diff": "--- a/missing.js\n+++ b/missing.js\n@@ -1,1 +1,1 @@\n-old\n+new\n"}`
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		&scriptGen{responses: []string{badImpl}},
		&scriptGen{responses: []string{approveJSON}},
	)
	newBuild(t, r, "b1")

	// planning
	s, err := r.orch.Step(context.Background(), "b1", ModeStep)
	require.NoError(t, err)
	assert.Equal(t, build.PhaseImplementing, s.Phase)

	// first conflict stays in implementing for a retry
	s, err = r.orch.Step(context.Background(), "b1", ModeStep)
	require.NoError(t, err)
	assert.Equal(t, build.PhaseImplementing, s.Phase)
	assert.Equal(t, 1, s.RetryCount("t1"))

	// second conflict exhausts the budget
	s, err = r.orch.Step(context.Background(), "b1", ModeStep)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBuildRetryBudget))
	assert.Equal(t, build.PhaseFailed, s.Phase)
	assert.Empty(t, s.PatchSets)
}

func TestPatchConflictFeedsBackToImplementer(t *testing.T) {
	cfg := config.Default()

	// the first diff targets a file that does not exist; the retry creates
	// the task's real file
	implGen := &scriptGen{responses: []string{
		`{"diff": "--- a/missing.js\n+++ b/missing.js\n@@ -1,1 +1,1 @@\n-old\n+new\n"}`,
		implJSON("page1.html", "<html></html>"),
	}}
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		implGen,
		&scriptGen{responses: []string{approveJSON}},
	)
	newBuild(t, r, "b1")

	s, err := drive(t, r, "b1", 40)
	require.NoError(t, err)
	assert.Equal(t, build.PhaseReady, s.Phase)

	// the retry prompt names the conflict instead of repeating the first one
	require.Len(t, implGen.prompts, 2)
	assert.NotEqual(t, implGen.prompts[0], implGen.prompts[1])
	assert.NotContains(t, implGen.prompts[0], "did not apply")
	assert.Contains(t, implGen.prompts[1], "did not apply")
	assert.Contains(t, implGen.prompts[1], "missing.js")

	// a clean apply clears the conflict; later tasks never see it
	assert.Empty(t, s.PatchConflict)
}

func TestCancelMakesBuildTerminal(t *testing.T) {
	cfg := config.Default()
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(2)}},
		&scriptGen{responses: []string{implJSON("page1.html", "<html></html>")}},
		&scriptGen{responses: []string{approveJSON}},
	)
	newBuild(t, r, "b1")

	// cancel mid-build, after planning
	_, err := r.orch.Step(context.Background(), "b1", ModeStep)
	require.NoError(t, err)

	s, err := r.orch.Cancel(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, build.PhaseCancelled, s.Phase)
	require.NotNil(t, s.CompletedAt)
	completedAt := *s.CompletedAt

	kinds := map[string]int{}
	for _, e := range s.History {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds["build_cancelled"])

	historyLen := len(s.History)

	// cancelling again is a no-op
	s, err = r.orch.Cancel(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, build.PhaseCancelled, s.Phase)
	assert.Equal(t, completedAt, *s.CompletedAt)
	assert.Len(t, s.History, historyLen)

	// so is stepping a cancelled build
	s, err = r.orch.Step(context.Background(), "b1", ModeStep)
	require.NoError(t, err)
	assert.Equal(t, build.PhaseCancelled, s.Phase)
	assert.Len(t, s.History, historyLen)
}

func TestCancelUnknownBuild(t *testing.T) {
	cfg := config.Default()
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		&scriptGen{responses: []string{implJSON("page1.html", "<html></html>")}},
		&scriptGen{responses: []string{approveJSON}},
	)

	_, err := r.orch.Cancel(context.Background(), "ghost")
	assert.True(t, errors.HasCode(err, errors.ErrCodeBuildNotFound))
}

func TestAppliedPatchRecordsRollback(t *testing.T) {
	cfg := config.Default()
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		&scriptGen{responses: []string{implJSON("page1.html", "<html></html>")}},
		&scriptGen{responses: []string{approveJSON}},
	)
	newBuild(t, r, "b1")

	s, err := drive(t, r, "b1", 40)
	require.NoError(t, err)
	require.Equal(t, build.PhaseReady, s.Phase)

	patch := s.LastPatch()
	require.NotNil(t, patch)
	require.NotEmpty(t, patch.Rollback)

	// the recorded inverse undoes the applied patch
	require.True(t, r.tree.Exists("page1.html"))
	_, err = r.tree.ApplyPatch(patch.Rollback)
	require.NoError(t, err)
	assert.False(t, r.tree.Exists("page1.html"))
}

func TestValidatingReportsUnreadableFile(t *testing.T) {
	cfg := config.Default()
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		&scriptGen{responses: []string{implJSON("page1.html", "<html></html>")}},
		&scriptGen{responses: []string{approveJSON}},
	)
	newBuild(t, r, "b1")

	// plan, then apply the patch
	_, err := r.orch.Step(context.Background(), "b1", ModeStep)
	require.NoError(t, err)
	s, err := r.orch.Step(context.Background(), "b1", ModeStep)
	require.NoError(t, err)
	require.Equal(t, build.PhaseValidating, s.Phase)

	// the touched file vanishes before validation runs
	require.NoError(t, r.tree.Remove("page1.html"))

	s, err = r.orch.Step(context.Background(), "b1", ModeStep)
	require.NoError(t, err)

	v := s.LastValidation()
	require.NotNil(t, v)
	assert.False(t, v.OK)
	require.NotEmpty(t, v.Errors)
	assert.Contains(t, v.Errors[len(v.Errors)-1], "page1.html")
}

func TestTerminalStepIsIdempotent(t *testing.T) {
	cfg := config.Default()
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		&scriptGen{responses: []string{implJSON("page1.html", "<html></html>")}},
		&scriptGen{responses: []string{approveJSON}},
	)
	newBuild(t, r, "b1")

	s, err := drive(t, r, "b1", 40)
	require.NoError(t, err)
	require.Equal(t, build.PhaseReady, s.Phase)
	completedAt := *s.CompletedAt
	historyLen := len(s.History)

	for i := 0; i < 3; i++ {
		s, err = r.orch.Step(context.Background(), "b1", ModeStep)
		require.NoError(t, err)
		assert.Equal(t, build.PhaseReady, s.Phase)
		assert.Equal(t, completedAt, *s.CompletedAt)
		assert.Len(t, s.History, historyLen)
	}
}

func TestStepUnknownBuild(t *testing.T) {
	cfg := config.Default()
	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		&scriptGen{responses: []string{implJSON("page1.html", "<html></html>")}},
		&scriptGen{responses: []string{approveJSON}},
	)

	_, err := r.orch.Step(context.Background(), "ghost", ModeStep)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBuildNotFound))
}

func TestValidationDefectsReachReviewer(t *testing.T) {
	cfg := config.Default()
	// the implementation carries an inline script body
	badHTML := `{"diff": "--- /dev/null\n+++ b/page1.html\n@@ -0,0 +1,1 @@\n+<html><body><script>alert(1)</script></body></html>\n"}`
	revGen := &scriptGen{responses: []string{approveJSON}}

	r := newRig(t, cfg,
		&scriptGen{responses: []string{planJSON(1)}},
		&scriptGen{responses: []string{badHTML}},
		revGen,
	)
	newBuild(t, r, "b1")

	s, err := drive(t, r, "b1", 40)
	require.NoError(t, err)

	v := s.LastValidation()
	require.NotNil(t, v)
	assert.False(t, v.OK)
	assert.NotEmpty(t, v.Errors)
	// validation defects do not block progress; the reviewer weighs them
	assert.Equal(t, build.PhaseReady, s.Phase)
}
