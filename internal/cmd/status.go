package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <build-id>",
	Short: "Show a build's current state",
	Long: `Print a build's phase, task progress and token usage without advancing
it. With --json the full persisted state is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the full state as JSON")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	buildID := args[0]

	eng, err := newEngine(buildID)
	if err != nil {
		return err
	}

	state, err := eng.store.Get(cmd.Context(), buildID)
	if err != nil {
		return err
	}

	if statusJSON {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal build state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(renderSummary(state))
	if state.CurrentTaskID != "" {
		fmt.Printf("Current task: %s\n", state.CurrentTaskID)
	}
	if state.BuildGraph != nil {
		fmt.Println()
		fmt.Println(renderGraph(state.BuildGraph))
	}
	return nil
}
