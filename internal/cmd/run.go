package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a build to completion",
	Long: `Drive a build through planning, implementation, validation, checks and
review until it reaches a terminal phase, streaming progress as it goes.

With --brief a new build is created first; with --build an existing build
(for example one created by 'zaoya plan') is resumed from its current
phase.`,
	RunE: runRun,
}

var (
	runBrief     string
	runBriefFile string
	runBuildID   string
)

func init() {
	runCmd.Flags().StringVar(&runBrief, "brief", "", "project brief text (creates a new build)")
	runCmd.Flags().StringVarP(&runBriefFile, "file", "f", "", "read the project brief from a file")
	runCmd.Flags().StringVar(&runBuildID, "build", "", "resume an existing build")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	buildID := runBuildID
	if buildID == "" {
		buildID = uuid.New().String()
	}

	eng, err := newEngine(buildID)
	if err != nil {
		return err
	}

	state, err := eng.store.Get(ctx, buildID)
	switch {
	case errors.HasCode(err, errors.ErrCodeStoreNotFound):
		brief, briefErr := resolveBrief(runBrief, runBriefFile)
		if briefErr != nil {
			return briefErr
		}
		state = build.NewState(buildID, "", "")
		state.Brief = brief
		if err := eng.store.Create(ctx, state); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	if state.Phase.Terminal() {
		fmt.Println(renderSummary(state))
		return nil
	}

	fmt.Printf("Running build %s\n\n", buildID)

	events, err := eng.sessions.StreamProgress(ctx, buildID, orchestrator.ModeStep)
	if err != nil {
		return err
	}

	var failed string
	for ev := range events {
		if line := renderEvent(ev); line != "" {
			fmt.Println(line)
		}
		if ev.Type == "error" {
			failed = ev.Err
		}
	}
	if ctx.Err() != nil {
		// the run was interrupted mid-build; mark the build cancelled so it
		// lands in a terminal phase instead of dangling
		if _, cancelErr := eng.sessions.Cancel(context.Background(), buildID); cancelErr != nil {
			eng.logger.WithBuild(buildID).WithError(cancelErr).Warn("failed to cancel interrupted build")
		}
		return errors.New(errors.ErrCodeSessionCancelled, "build cancelled before completion")
	}

	final, err := eng.store.Get(ctx, buildID)
	if err != nil {
		return err
	}
	fmt.Println(renderSummary(final))

	if final.Phase == build.PhaseFailed {
		if failed != "" {
			return fmt.Errorf("build %s failed: %s", buildID, failed)
		}
		return fmt.Errorf("build %s failed", buildID)
	}
	return nil
}
