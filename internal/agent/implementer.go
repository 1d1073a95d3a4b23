package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/graph"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
)

const implementerSystemPrompt = `You are a careful implementer working on a small web project.
You receive one task with its goal, acceptance criteria and the current content
of relevant files. Produce the complete change as a unified diff.

Respond with a JSON object only:

{
  "diff": "unified diff text (--- a/path, +++ b/path, @@ hunks); use /dev/null for new files",
  "notes": "optional short implementation notes"
}

Rules:
- Touch only files this task is expected to touch.
- The diff must apply cleanly to the file contents you were shown.
- No inline <script> bodies in HTML; JavaScript lives in .js files.
- Keep the change minimal and complete for this one task.`

// ImplementInput is everything the implementer sees for one attempt
type ImplementInput struct {
	BuildID string
	Task    *graph.Task
	// FileContext maps repo-relative paths to their current content, empty
	// content for files the task will create
	FileContext map[string]string
	// RequiredFixes carries reviewer feedback from a request_changes verdict
	RequiredFixes []string
	// ValidationErrors carries structural findings from the last validation
	ValidationErrors []string
	// ApplyConflict carries the reason the previous diff failed to apply
	ApplyConflict string
}

// Implementer produces patches that complete one task at a time
type Implementer struct {
	gen    TextGenerator
	logger *log.Logger
	maxTok int
	temp   float64
}

// NewImplementer creates an implementer backed by the given generator
func NewImplementer(gen TextGenerator, logger *log.Logger, maxTokens int, temperature float64) *Implementer {
	return &Implementer{
		gen:    gen,
		logger: logger.With("agent", "implementer"),
		maxTok: maxTokens,
		temp:   temperature,
	}
}

// implementerOutput is the schema the implementer must return
type implementerOutput struct {
	Diff  string `json:"diff"`
	Notes string `json:"notes,omitempty"`
}

// Run produces a patch for the task. The returned patch is unparsed; the
// caller applies it through the repo tool and owns conflict handling.
func (im *Implementer) Run(ctx context.Context, in ImplementInput) (*build.Patch, *build.AgentUsage, error) {
	if in.Task == nil {
		return nil, nil, errors.New(errors.ErrCodeGraphTaskNotFound, "implementer called without a task")
	}

	start := time.Now()
	resp, err := im.gen.Generate(ctx, Request{
		System:      implementerSystemPrompt,
		Prompt:      im.buildPrompt(in),
		MaxTokens:   im.maxTok,
		Temperature: im.temp,
		Metadata:    map[string]string{"build_id": in.BuildID, "task_id": in.Task.ID, "agent": "implementer"},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeAgentTimeout, "implementer call cancelled", err)
		}
		return nil, nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "implementer call failed", err)
	}
	im.logger.Debug("implementer responded", "build_id", in.BuildID, "task_id", in.Task.ID, "elapsed", time.Since(start))

	usage := &build.AgentUsage{Agent: "implementer", Model: resp.Model, Usage: resp.Usage}

	var out implementerOutput
	if err := decodeAgentJSON("implementer", resp.Content, &out); err != nil {
		return nil, usage, err
	}
	if strings.TrimSpace(out.Diff) == "" {
		return nil, usage, errors.New(errors.ErrCodePatchEmpty, "implementer returned an empty diff")
	}

	return &build.Patch{
		ID:     uuid.New().String(),
		TaskID: in.Task.ID,
		Diff:   out.Diff,
		Notes:  out.Notes,
	}, usage, nil
}

func (im *Implementer) buildPrompt(in ImplementInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task %s: %s\n\nGoal: %s\n", in.Task.ID, in.Task.Title, in.Task.Goal)
	if len(in.Task.Acceptance) > 0 {
		b.WriteString("\nAcceptance criteria:\n")
		for _, a := range in.Task.Acceptance {
			b.WriteString("- " + a + "\n")
		}
	}
	if len(in.Task.FilesExpected) > 0 {
		b.WriteString("\nFiles this task may touch:\n")
		for _, f := range in.Task.FilesExpected {
			b.WriteString("- " + f + "\n")
		}
	}

	if len(in.FileContext) > 0 {
		b.WriteString("\nCurrent file contents:\n")
		paths := make([]string, 0, len(in.FileContext))
		for path := range in.FileContext {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			content := in.FileContext[path]
			if strings.TrimSpace(content) == "" {
				fmt.Fprintf(&b, "\n--- %s (does not exist yet) ---\n", path)
				continue
			}
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", path, content)
		}
	}

	if in.ApplyConflict != "" {
		b.WriteString("\nYour previous diff did not apply to the current files:\n")
		b.WriteString("- " + in.ApplyConflict + "\n")
		b.WriteString("Produce a corrected diff against the file contents shown above.\n")
	}
	if len(in.RequiredFixes) > 0 {
		b.WriteString("\nA reviewer requested changes. You must address every one of these:\n")
		for _, fix := range in.RequiredFixes {
			b.WriteString("- " + fix + "\n")
		}
	}
	if len(in.ValidationErrors) > 0 {
		b.WriteString("\nStructural validation found these problems in the previous attempt:\n")
		for _, e := range in.ValidationErrors {
			b.WriteString("- " + e + "\n")
		}
	}

	return b.String()
}
