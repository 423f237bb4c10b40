package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/pkg/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "agentlab",
	Short: "Plan-and-execute LLM agents",
	Long: `agentlab breaks a task into a short ordered plan with a language model,
carries out each step with tools (web search, page reading, a workspace),
and reports the result of the last step.

Runs are checkpointed to SQLite and resumed after a restart. The same agents
are available from the command line, over HTTP and from chat gateways.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print structured events to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(marketingCmd)
	rootCmd.AddCommand(collegesCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(configCmd)
}
