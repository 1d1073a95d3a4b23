// Package orchestrator advances builds through their phase state machine.
// Each Step performs exactly one transition: load state, dispatch on phase,
// run the phase's collaborators, persist. No goroutines run inside a step;
// concurrency control lives in the session layer above.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// Mode selects how far a build is driven
type Mode string

const (
	// ModeStep advances the build by one transition
	ModeStep Mode = "step"
	// ModePlanOnly steps only while the build is still planning
	ModePlanOnly Mode = "plan_only"
)

// Orchestrator owns one build's collaborators and drives its state machine
type Orchestrator struct {
	store       store.Store
	tree        *repotool.Tree
	planner     *agent.Planner
	implementer *agent.Implementer
	reviewer    *agent.Reviewer
	validator   *validate.Runner
	checks      *check.Tools
	snapshots   *snapshot.Manager
	cfg         *config.Config
	logger      *log.Logger
}

// New creates an orchestrator for one build's sandbox
func New(
	st store.Store,
	tree *repotool.Tree,
	planner *agent.Planner,
	implementer *agent.Implementer,
	reviewer *agent.Reviewer,
	validator *validate.Runner,
	checks *check.Tools,
	snapshots *snapshot.Manager,
	cfg *config.Config,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:       st,
		tree:        tree,
		planner:     planner,
		implementer: implementer,
		reviewer:    reviewer,
		validator:   validator,
		checks:      checks,
		snapshots:   snapshots,
		cfg:         cfg,
		logger:      logger.With("component", "orchestrator"),
	}
}

// Step advances the build by one phase transition and persists the result.
// Terminal builds are returned unchanged. A nil error with a non-terminal
// phase means the caller may step again; a scheduled retry after a
// recoverable failure also returns nil.
func (o *Orchestrator) Step(ctx context.Context, buildID string, mode Mode) (*build.State, error) {
	s, err := o.store.Get(ctx, buildID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeStoreNotFound) {
			return nil, errors.NewBuildNotFoundError(buildID)
		}
		return nil, err
	}

	if s.Phase.Terminal() {
		return s, nil
	}
	if mode == ModePlanOnly && s.Phase != build.PhasePlanning {
		return s, nil
	}

	logger := o.logger.WithBuild(buildID)
	logger.Debug("stepping build", "phase", s.Phase, "mode", mode)

	var stepErr error
	switch s.Phase {
	case build.PhasePlanning:
		stepErr = o.stepPlanning(ctx, s)
	case build.PhaseImplementing:
		stepErr = o.stepImplementing(ctx, s)
	case build.PhaseValidating:
		stepErr = o.stepValidating(s)
	case build.PhaseChecking:
		stepErr = o.stepChecking(ctx, s)
	case build.PhaseReviewing:
		stepErr = o.stepReviewing(ctx, s)
	default:
		return nil, errors.Newf(errors.ErrCodeBuildUnknownPhase, "unknown phase: %s", s.Phase)
	}

	if saveErr := o.store.Save(ctx, s); saveErr != nil {
		logger.WithError(saveErr).Error("failed to persist build state")
		if stepErr == nil {
			stepErr = saveErr
		}
	}
	return s, stepErr
}

// Cancel moves a build to the cancelled terminal phase and persists it.
// Cancelling an already terminal build is a no-op that returns the state
// unchanged.
func (o *Orchestrator) Cancel(ctx context.Context, buildID string) (*build.State, error) {
	s, err := o.store.Get(ctx, buildID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeStoreNotFound) {
			return nil, errors.NewBuildNotFoundError(buildID)
		}
		return nil, err
	}
	if s.Phase.Terminal() {
		return s, nil
	}

	s.AppendEvent("build_cancelled", "cancellation requested")
	if err := s.Complete(build.PhaseCancelled); err != nil {
		return nil, err
	}
	o.logger.WithBuild(buildID).Info("build cancelled", "previous_task", s.CurrentTaskID)
	if err := o.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// stepPlanning runs the planner and selects the first task
func (o *Orchestrator) stepPlanning(ctx context.Context, s *build.State) error {
	if s.SnapshotID == "" {
		id, err := o.snapshots.Create("pre-plan")
		if err != nil {
			return o.recoverOrFail(s, err)
		}
		s.SnapshotID = id
	}

	result, err := o.planner.Run(ctx, s.BuildID, s.Brief)
	if result != nil {
		s.RecordUsage(result.Usage)
	}
	if err != nil {
		return o.recoverOrFail(s, err)
	}

	planJSON, err := result.Graph.ToJSON()
	if err != nil {
		return o.recoverOrFail(s, err)
	}
	s.BuildGraph = result.Graph
	s.BuildPlan = planJSON
	if len(result.ProductDoc) > 0 {
		s.ProductDoc = result.ProductDoc
	}
	s.AppendEvent("planned", fmt.Sprintf("%d tasks", len(result.Graph.Tasks)))

	return o.startNextTask(s)
}

// stepImplementing asks the implementer for a patch and applies it
func (o *Orchestrator) stepImplementing(ctx context.Context, s *build.State) error {
	task := s.CurrentTask()
	if task == nil {
		return o.advanceTasks(s)
	}

	in := agent.ImplementInput{
		BuildID:     s.BuildID,
		Task:        task,
		FileContext: o.fileContext(task.FilesExpected),
	}
	if review := s.LastReview(); review != nil &&
		review.TaskID == task.ID && review.Decision == build.DecisionRequestChanges {
		in.RequiredFixes = review.RequiredFixes
	}
	if v := s.LastValidation(); v != nil && v.TaskID == task.ID && !v.OK {
		in.ValidationErrors = v.Errors
	}
	in.ApplyConflict = s.PatchConflict

	patch, usage, err := o.implementer.Run(ctx, in)
	if usage != nil {
		s.RecordUsage(*usage)
	}
	if err != nil {
		return o.recoverOrFail(s, err)
	}

	result, err := o.tree.ApplyPatch(patch.Diff)
	if err != nil {
		return o.patchFailure(s, task.ID, err)
	}
	s.PatchConflict = ""

	patch.TouchedFiles = result.Touched
	patch.AppliedAt = time.Now().UTC()
	if inverse, invErr := repotool.Invert(patch.Diff); invErr == nil {
		patch.Rollback = inverse
	}
	s.PatchSets = append(s.PatchSets, *patch)
	s.AppendEvent("patch_applied", fmt.Sprintf("%d files", len(result.Touched)))
	s.SetPhase(build.PhaseValidating)
	return nil
}

// stepValidating runs the structural gate on the files the patch touched.
// Defects do not stop progress; the review phase weighs them.
func (o *Orchestrator) stepValidating(s *build.State) error {
	taskID := s.CurrentTaskID

	var htmlSrc, jsSrc strings.Builder
	var readErrors []string
	if patch := s.LastPatch(); patch != nil {
		for _, path := range patch.TouchedFiles {
			content, err := o.tree.ReadFile(path)
			if err != nil {
				readErrors = append(readErrors, fmt.Sprintf("%s: unreadable after patch: %v", path, err))
				continue
			}
			switch {
			case strings.HasSuffix(path, ".html"):
				htmlSrc.WriteString(content)
				htmlSrc.WriteString("\n")
			case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".mjs"):
				jsSrc.WriteString(content)
				jsSrc.WriteString("\n")
			}
		}
	}

	report := o.validator.Run(taskID, htmlSrc.String(), jsSrc.String())
	if len(readErrors) > 0 {
		report.OK = false
		report.Errors = append(report.Errors, readErrors...)
	}
	s.ValidationReports = append(s.ValidationReports, *report)
	if report.OK {
		s.AppendEvent("validated", "")
	} else {
		s.AppendEvent("validation_defects", strings.Join(report.Errors, "; "))
	}
	s.SetPhase(build.PhaseChecking)
	return nil
}

// stepChecking runs the project's own tooling
func (o *Orchestrator) stepChecking(ctx context.Context, s *build.State) error {
	reports := o.checks.All(ctx, s.CurrentTaskID)
	for _, r := range reports {
		s.CheckReports = append(s.CheckReports, *r)
		detail := r.Kind
		if r.Skipped {
			detail += " skipped"
		} else if !r.OK {
			detail += " failed"
		}
		s.AppendEvent("checked", detail)
	}
	s.SetPhase(build.PhaseReviewing)
	return nil
}

// stepReviewing asks the reviewer for a verdict and routes the build
// accordingly
func (o *Orchestrator) stepReviewing(ctx context.Context, s *build.State) error {
	task := s.CurrentTask()
	if task == nil {
		return o.advanceTasks(s)
	}

	patch := s.LastPatch()
	if patch == nil {
		return o.failBuild(s, errors.New(errors.ErrCodePatchEmpty, "reviewing without an applied patch"))
	}

	in := agent.ReviewInput{
		BuildID:    s.BuildID,
		Task:       task,
		Diff:       patch.Diff,
		Validation: s.LastValidation(),
		Checks:     s.LastChecks(),
	}
	review, usage, err := o.reviewer.Run(ctx, in)
	if usage != nil {
		s.RecordUsage(*usage)
	}
	if err != nil {
		return o.recoverOrFail(s, err)
	}
	s.ReviewReports = append(s.ReviewReports, *review)

	if review.Decision == build.DecisionApprove {
		task.Status = graph.StatusDone
		s.AppendEvent("task_done", task.Title)
		s.ClearCurrentTask()
		return o.advanceTasks(s)
	}

	retries := s.IncrementRetry(task.ID)
	if retries >= o.cfg.Retry.ReviewCycles {
		task.Status = graph.StatusFailed
		s.AppendEvent("task_failed", fmt.Sprintf("%s: review budget exhausted", task.ID))
		o.restoreSnapshot(s)
		return o.failBuild(s, errors.Newf(errors.ErrCodeBuildRetryBudget,
			"task %s rejected %d times", task.ID, retries))
	}

	s.AppendEvent("changes_requested", strings.Join(review.RequiredFixes, "; "))
	s.SetPhase(build.PhaseImplementing)
	return nil
}

// startNextTask selects the next ready task and moves to implementing, or
// finishes the build when nothing remains
func (o *Orchestrator) startNextTask(s *build.State) error {
	next := s.BuildGraph.NextReady()
	if next == nil {
		return o.finishGraph(s)
	}

	id, err := o.snapshots.Create("pre-task " + next.ID)
	if err != nil {
		return o.recoverOrFail(s, err)
	}
	s.SnapshotID = id

	if err := s.SetCurrentTask(next.ID); err != nil {
		return o.failBuild(s, err)
	}
	s.PatchConflict = ""
	s.AppendEvent("task_started", next.Title)
	s.SetPhase(build.PhaseImplementing)
	return nil
}

// advanceTasks is startNextTask for mid-build states that lost their
// current task
func (o *Orchestrator) advanceTasks(s *build.State) error {
	if s.BuildGraph == nil {
		return o.failBuild(s, errors.New(errors.ErrCodeGraphTaskNotFound, "build has no graph"))
	}
	return o.startNextTask(s)
}

// finishGraph completes the build once no task is ready
func (o *Orchestrator) finishGraph(s *build.State) error {
	if s.BuildGraph.AllDone() {
		s.AppendEvent("build_ready", "")
		return s.Complete(build.PhaseReady)
	}
	blockedErr := errors.New(errors.ErrCodeBuildBlocked,
		"no task is ready and the graph is not complete").
		WithSuggestion("inspect task statuses; a failed task blocks its dependents")
	s.AppendEvent("build_blocked", blockedErr.Message)
	if err := s.Complete(build.PhaseFailed); err != nil {
		return err
	}
	return blockedErr
}

// patchFailure counts a patch defect against the task's retry budget. The
// conflict is kept on the state so the retry prompt asks for a corrected
// diff instead of replaying the same request.
func (o *Orchestrator) patchFailure(s *build.State, taskID string, cause error) error {
	retries := s.IncrementRetry(taskID)
	s.PatchConflict = cause.Error()
	s.AppendEvent("patch_rejected", cause.Error())
	o.logger.WithBuild(s.BuildID).Warn("patch rejected",
		"task_id", taskID, "retries", retries, "error", cause)

	if retries > o.cfg.Retry.TaskRetries {
		if task := s.BuildGraph.Find(taskID); task != nil {
			task.Status = graph.StatusFailed
		}
		o.restoreSnapshot(s)
		return o.failBuild(s, errors.Wrap(errors.ErrCodeBuildRetryBudget,
			fmt.Sprintf("task %s: patch budget exhausted", taskID), cause))
	}
	// stay in implementing; the next step retries with the defect on record
	return nil
}

// recoverOrFail counts a collaborator failure against the phase budget.
// Retryable failures under budget leave the phase unchanged so the next
// step retries; anything else fails the build.
func (o *Orchestrator) recoverOrFail(s *build.State, cause error) error {
	s.PhaseAttempts++
	s.AppendEvent("phase_error", cause.Error())

	if errors.Retryable(cause) && s.PhaseAttempts <= o.cfg.Retry.AgentAttempts {
		o.logger.WithBuild(s.BuildID).Warn("phase failure, will retry",
			"phase", s.Phase, "attempt", s.PhaseAttempts, "error", cause)
		return nil
	}
	return o.failBuild(s, cause)
}

// failBuild moves the build to the failed phase, preserving the cause
func (o *Orchestrator) failBuild(s *build.State, cause error) error {
	s.AppendEvent("build_failed", cause.Error())
	o.logger.WithBuild(s.BuildID).WithError(cause).Error("build failed")
	if err := s.Complete(build.PhaseFailed); err != nil {
		return err
	}
	return cause
}

// restoreSnapshot rolls the tree back to the pre-task checkpoint. Restore
// failures are recorded in history and logged, never silently dropped.
func (o *Orchestrator) restoreSnapshot(s *build.State) {
	if s.SnapshotID == "" {
		return
	}
	if _, err := o.snapshots.Restore(s.SnapshotID); err != nil {
		s.AppendEvent("restore_failed", err.Error())
		o.logger.WithBuild(s.BuildID).WithError(err).Error("snapshot restore failed")
		return
	}
	s.AppendEvent("restored", s.SnapshotID)
}

// fileContext loads the current content of the task's expected files;
// missing files appear with empty content so the prompt shows them as new
func (o *Orchestrator) fileContext(paths []string) map[string]string {
	files := make(map[string]string, len(paths))
	for _, path := range paths {
		content, err := o.tree.ReadFile(path)
		if err != nil {
			files[path] = ""
			continue
		}
		files[path] = content
	}
	return files
}
