package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <build-id>",
	Short: "Cancel a build",
	Long: `Move a build to the cancelled terminal phase. The sandbox is left as
the last applied patch wrote it; a build that already finished is left
unchanged. A build currently mid-step is reported busy; stop the running
stream first.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	buildID := args[0]

	eng, err := newEngine(buildID)
	if err != nil {
		return err
	}

	state, err := eng.sessions.Cancel(cmd.Context(), buildID)
	if err != nil {
		return err
	}

	fmt.Printf("Build %s is now %s\n", buildID, renderPhase(state.Phase))
	return nil
}
