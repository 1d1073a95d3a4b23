package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/orchestrator"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a build without implementing it",
	Long: `Create a build from a project brief and run the planning phase only.

The planner agent turns the brief into a dependency-ordered task graph,
which is printed and persisted. Run 'zaoya run' afterwards to implement
the planned tasks.`,
	RunE: runPlan,
}

var (
	planBrief     string
	planBriefFile string
	planBuildID   string
)

func init() {
	planCmd.Flags().StringVar(&planBrief, "brief", "", "project brief text")
	planCmd.Flags().StringVarP(&planBriefFile, "file", "f", "", "read the project brief from a file")
	planCmd.Flags().StringVar(&planBuildID, "build", "", "build id (generated when empty)")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	brief, err := resolveBrief(planBrief, planBriefFile)
	if err != nil {
		return err
	}

	buildID := planBuildID
	if buildID == "" {
		buildID = uuid.New().String()
	}

	eng, err := newEngine(buildID)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	state := build.NewState(buildID, "", "")
	state.Brief = brief
	if err := eng.store.Create(ctx, state); err != nil {
		return err
	}

	fmt.Printf("Planning build %s\n\n", buildID)

	// Planning is a single transition but a persistence hiccup can leave
	// the phase unchanged, so step until the build leaves planning.
	for i := 0; i < 3 && state.Phase == build.PhasePlanning; i++ {
		state, err = eng.sessions.Step(ctx, buildID, orchestrator.ModePlanOnly)
		if err != nil {
			return err
		}
	}

	if state.Phase == build.PhaseFailed {
		fmt.Println(renderSummary(state))
		return errors.Newf(errors.ErrCodeAgentInvalidSchema, "planning failed for build %s", buildID)
	}
	fmt.Println(renderGraph(state.BuildGraph))
	fmt.Printf("Next: zaoya run --build %s\n", buildID)
	return nil
}

// resolveBrief reads the brief from the --brief flag or a --file path
func resolveBrief(brief, file string) (string, error) {
	if brief != "" && file != "" {
		return "", errors.New(errors.ErrCodeConfigInvalid, "use either --brief or --file, not both")
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read brief file", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if strings.TrimSpace(brief) == "" {
		return "", errors.New(errors.ErrCodeConfigInvalid, "a project brief is required (--brief or --file)")
	}
	return strings.TrimSpace(brief), nil
}
