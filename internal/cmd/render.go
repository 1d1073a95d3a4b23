package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/graph"
	"github.com/TheSmartAz/zaoya-sub001/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)
)

// phaseColor returns the ANSI color code for a build phase
func phaseColor(p build.Phase) string {
	switch p {
	case build.PhaseReady:
		return "2" // Green
	case build.PhaseFailed:
		return "1" // Red
	case build.PhaseCancelled:
		return "3" // Yellow
	default:
		return "12" // Blue
	}
}

// renderPhase returns a phase name colored by outcome
func renderPhase(p build.Phase) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(phaseColor(p))).Render(string(p))
}

// renderGraph formats a task graph as an indented task list
func renderGraph(g *graph.BuildGraph) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Task Graph") + "\n\n")
	b.WriteString(fmt.Sprintf("Total Tasks: %s\n\n", countStyle.Render(fmt.Sprintf("%d", len(g.Tasks)))))

	for i, task := range g.Tasks {
		b.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, task.ID, task.Title))
		if len(task.DependsOn) > 0 {
			b.WriteString(labelStyle.Render(fmt.Sprintf("     depends on: %s", strings.Join(task.DependsOn, ", "))) + "\n")
		}
		if len(task.FilesExpected) > 0 {
			b.WriteString(labelStyle.Render(fmt.Sprintf("     files: %s", strings.Join(task.FilesExpected, ", "))) + "\n")
		}
	}

	if g.Notes != "" {
		b.WriteString("\n" + labelStyle.Render("Notes: ") + g.Notes + "\n")
	}

	return b.String()
}

// renderEvent formats one progress event as a single line
func renderEvent(ev session.Event) string {
	switch ev.Type {
	case "task_started":
		return fmt.Sprintf("%s %s", labelStyle.Render("▶ task"), ev.TaskID)
	case "task_done":
		return fmt.Sprintf("%s %s", okStyle.Render("✓ done"), ev.TaskID)
	case "card":
		if ev.Card == nil {
			return ""
		}
		line := fmt.Sprintf("%s v%d %s", countStyle.Render("◆ card"), ev.Card.Version, ev.Card.Title)
		if len(ev.Card.Files) > 0 {
			line += labelStyle.Render(fmt.Sprintf(" (%s)", strings.Join(ev.Card.Files, ", ")))
		}
		return line
	case "error":
		return fmt.Sprintf("%s %s", failStyle.Render("✗ error"), ev.Err)
	case "done":
		return fmt.Sprintf("%s %s", labelStyle.Render("■ finished"), renderPhase(ev.Phase))
	default:
		return fmt.Sprintf("%s %s", labelStyle.Render("·"), ev.Type)
	}
}

// renderSummary formats a finished build's outcome
func renderSummary(s *build.State) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("\nBuild %s: %s\n", s.BuildID, renderPhase(s.Phase)))

	if s.BuildGraph != nil {
		counts := s.BuildGraph.Counts()
		b.WriteString(labelStyle.Render(fmt.Sprintf("Tasks: %d done, %d failed of %d\n",
			counts[graph.StatusDone], counts[graph.StatusFailed], len(s.BuildGraph.Tasks))))
	}

	usage := s.TotalTokenUsage()
	if usage.TotalTokens > 0 {
		b.WriteString(labelStyle.Render(fmt.Sprintf("Tokens: %d prompt, %d completion, %d total\n",
			usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)))
	}

	return b.String()
}
