package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/graph"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
)

const reviewerSystemPrompt = `You are a strict code reviewer for a small web project.
You receive one completed task, the diff that implemented it, and the
validation and check results. Judge whether the task's acceptance criteria
are met.

Respond with a JSON object only:

{
  "decision": "approve" or "request_changes",
  "reasons": ["why you decided this"],
  "required_fixes": ["concrete fix the implementer must make"]
}

Rules:
- approve only if every acceptance criterion is satisfied and validation
  and checks passed.
- On request_changes, required_fixes must be concrete and actionable.
- Do not request stylistic changes unrelated to the acceptance criteria.`

// ReviewInput is everything the reviewer sees for one verdict
type ReviewInput struct {
	BuildID    string
	Task       *graph.Task
	Diff       string
	Validation *build.ValidationReport
	Checks     []build.CheckReport
}

// Reviewer issues approve or request_changes verdicts on implemented tasks
type Reviewer struct {
	gen    TextGenerator
	logger *log.Logger
	maxTok int
	temp   float64
}

// NewReviewer creates a reviewer backed by the given generator
func NewReviewer(gen TextGenerator, logger *log.Logger, maxTokens int, temperature float64) *Reviewer {
	return &Reviewer{
		gen:    gen,
		logger: logger.With("agent", "reviewer"),
		maxTok: maxTokens,
		temp:   temperature,
	}
}

// reviewerOutput is the schema the reviewer must return
type reviewerOutput struct {
	Decision      string   `json:"decision"`
	Reasons       []string `json:"reasons,omitempty"`
	RequiredFixes []string `json:"required_fixes,omitempty"`
}

// Run reviews a task. Any decision other than approve or request_changes is
// a schema violation.
func (r *Reviewer) Run(ctx context.Context, in ReviewInput) (*build.ReviewReport, *build.AgentUsage, error) {
	if in.Task == nil {
		return nil, nil, errors.New(errors.ErrCodeGraphTaskNotFound, "reviewer called without a task")
	}

	start := time.Now()
	resp, err := r.gen.Generate(ctx, Request{
		System:      reviewerSystemPrompt,
		Prompt:      r.buildPrompt(in),
		MaxTokens:   r.maxTok,
		Temperature: r.temp,
		Metadata:    map[string]string{"build_id": in.BuildID, "task_id": in.Task.ID, "agent": "reviewer"},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeAgentTimeout, "reviewer call cancelled", err)
		}
		return nil, nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "reviewer call failed", err)
	}
	r.logger.Debug("reviewer responded", "build_id", in.BuildID, "task_id", in.Task.ID, "elapsed", time.Since(start))

	usage := &build.AgentUsage{Agent: "reviewer", Model: resp.Model, Usage: resp.Usage}

	var out reviewerOutput
	if err := decodeAgentJSON("reviewer", resp.Content, &out); err != nil {
		return nil, usage, err
	}

	decision := build.Decision(strings.TrimSpace(out.Decision))
	if decision != build.DecisionApprove && decision != build.DecisionRequestChanges {
		return nil, usage, errors.Newf(errors.ErrCodeAgentInvalidSchema,
			"reviewer returned unknown decision %q", out.Decision)
	}
	if decision == build.DecisionRequestChanges && len(out.RequiredFixes) == 0 {
		return nil, usage, errors.New(errors.ErrCodeAgentInvalidSchema,
			"request_changes verdict without required fixes")
	}

	return &build.ReviewReport{
		TaskID:        in.Task.ID,
		Decision:      decision,
		Reasons:       out.Reasons,
		RequiredFixes: out.RequiredFixes,
		CreatedAt:     time.Now().UTC(),
	}, usage, nil
}

func (r *Reviewer) buildPrompt(in ReviewInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task %s: %s\n\nGoal: %s\n", in.Task.ID, in.Task.Title, in.Task.Goal)
	if len(in.Task.Acceptance) > 0 {
		b.WriteString("\nAcceptance criteria:\n")
		for _, a := range in.Task.Acceptance {
			b.WriteString("- " + a + "\n")
		}
	}

	b.WriteString("\nImplementing diff:\n```diff\n" + in.Diff + "\n```\n")

	if in.Validation != nil {
		if in.Validation.OK {
			b.WriteString("\nStructural validation: passed\n")
		} else {
			b.WriteString("\nStructural validation FAILED:\n")
			for _, e := range in.Validation.Errors {
				b.WriteString("- " + e + "\n")
			}
		}
	}
	for _, c := range in.Checks {
		switch {
		case c.Skipped:
			fmt.Fprintf(&b, "\n%s check: skipped\n", c.Kind)
		case c.OK:
			fmt.Fprintf(&b, "\n%s check: passed\n", c.Kind)
		default:
			fmt.Fprintf(&b, "\n%s check FAILED:\n%s\n", c.Kind, c.Output)
		}
	}
	return b.String()
}
