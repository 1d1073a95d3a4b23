package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheSmartAz/zaoya-sub001/internal/orchestrator"
)

var stepCmd = &cobra.Command{
	Use:   "step <build-id>",
	Short: "Advance a build by one transition",
	Long: `Advance an existing build by exactly one phase transition and print the
resulting phase. Useful for inspecting the engine one move at a time; a
terminal build is left unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runStep,
}

func init() {
	rootCmd.AddCommand(stepCmd)
}

func runStep(cmd *cobra.Command, args []string) error {
	buildID := args[0]

	eng, err := newEngine(buildID)
	if err != nil {
		return err
	}

	state, err := eng.sessions.Step(cmd.Context(), buildID, orchestrator.ModeStep)
	if err != nil {
		return err
	}

	fmt.Printf("Build %s is now %s", buildID, renderPhase(state.Phase))
	if state.CurrentTaskID != "" {
		fmt.Printf(" (task %s)", state.CurrentTaskID)
	}
	fmt.Println()
	return nil
}
