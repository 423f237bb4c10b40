package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/internal/agent"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the available agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, info := range a.agents.Info() {
			name := info.Key
			if name == agent.DefaultAgent {
				name += " (default)"
			}
			heading.Println(name)
			fmt.Println("  " + info.Description)
		}
		return nil
	},
}
