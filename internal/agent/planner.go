package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/graph"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
)

const plannerSystemPrompt = `You are a senior technical planner for small web projects.
Given a project brief, produce a build plan as a JSON object with this shape:

{
  "product": { "name": "...", "summary": "...", "pages": ["..."] },
  "tasks": [
    {
      "id": "t1",
      "title": "short imperative title",
      "goal": "what this task achieves",
      "acceptance": ["verifiable acceptance criterion"],
      "depends_on": [],
      "files_expected": ["index.html"]
    }
  ],
  "notes": "optional planning notes"
}

Rules:
- At most %d tasks; each task touches at most %d files.
- Task ids must be unique; depends_on may only reference earlier task ids.
- Order tasks so that every task's dependencies precede it.
- Every task must be independently verifiable through its acceptance criteria.
- Respond with the JSON object only.`

// plannerOutput is the schema the planner must return
type plannerOutput struct {
	Product json.RawMessage `json:"product,omitempty"`
	Tasks   []graph.Task    `json:"tasks"`
	Notes   string          `json:"notes,omitempty"`
}

// PlanResult is a validated plan produced from a brief
type PlanResult struct {
	Graph      *graph.BuildGraph
	ProductDoc json.RawMessage
	Usage      build.AgentUsage
}

// Planner turns a project brief into a validated task graph
type Planner struct {
	gen      TextGenerator
	logger   *log.Logger
	attempts int
	maxTok   int
	temp     float64
}

// NewPlanner creates a planner backed by the given generator. attempts is
// the budget for malformed or invalid model output.
func NewPlanner(gen TextGenerator, logger *log.Logger, attempts, maxTokens int, temperature float64) *Planner {
	if attempts < 1 {
		attempts = 1
	}
	return &Planner{
		gen:      gen,
		logger:   logger.With("agent", "planner"),
		attempts: attempts,
		maxTok:   maxTokens,
		temp:     temperature,
	}
}

// Run plans a build from the brief. Output that fails to parse or violates
// graph constraints is retried with the violation appended to the prompt,
// up to the attempt budget.
func (p *Planner) Run(ctx context.Context, buildID, brief string) (*PlanResult, error) {
	system := fmt.Sprintf(plannerSystemPrompt, graph.MaxTasks, graph.MaxFilesPerTask)
	prompt := "Project brief:\n\n" + brief

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		start := time.Now()
		resp, err := p.gen.Generate(ctx, Request{
			System:      system,
			Prompt:      prompt,
			MaxTokens:   p.maxTok,
			Temperature: p.temp,
			Metadata:    map[string]string{"build_id": buildID, "agent": "planner"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(errors.ErrCodeAgentTimeout, "planner call cancelled", err)
			}
			return nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "planner call failed", err)
		}
		p.logger.Debug("planner responded", "build_id", buildID, "attempt", attempt, "elapsed", time.Since(start))

		var out plannerOutput
		if err := decodeAgentJSON("planner", resp.Content, &out); err != nil {
			lastErr = err
			prompt = retryPrompt(prompt, err)
			continue
		}

		g := &graph.BuildGraph{Tasks: out.Tasks, Notes: out.Notes}
		for i := range g.Tasks {
			if g.Tasks[i].Status == "" {
				g.Tasks[i].Status = graph.StatusTodo
			}
		}
		if err := g.Validate(); err != nil {
			lastErr = errors.Wrap(errors.ErrCodeAgentInvalidSchema, "planner produced an invalid task graph", err)
			prompt = retryPrompt(prompt, err)
			p.logger.Warn("plan rejected", "build_id", buildID, "attempt", attempt, "error", err)
			continue
		}

		return &PlanResult{
			Graph:      g,
			ProductDoc: out.Product,
			Usage: build.AgentUsage{
				Agent: "planner",
				Model: resp.Model,
				Usage: resp.Usage,
			},
		}, nil
	}
	return nil, lastErr
}

// retryPrompt appends the previous failure to the prompt so the model can
// correct itself
func retryPrompt(prompt string, err error) string {
	return prompt + "\n\nYour previous response was rejected: " + err.Error() +
		"\nRespond again with a corrected JSON object only."
}
