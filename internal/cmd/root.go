// Package cmd implements the zaoya CLI commands
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zaoya",
	Short: "AI build orchestration engine for web projects",
	Long: `zaoya turns a project brief into a working multi-file web project by
planning a task graph and driving planner, implementer and reviewer agents
through an iterative apply-validate-check-review loop.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgFile   string
	agentCmd  []string
	apiKey    string
	baseURL   string
	modelName string
)

// ExecuteContext runs the root command with the given context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringSliceVar(&agentCmd, "agent-cmd", nil, "external command to use as the model (argv, comma separated)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for the model provider (or ZAOYA_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "base URL of an OpenAI-compatible API")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "model name to request")
}
