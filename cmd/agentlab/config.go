package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s. Set OPENAI_API_KEY (or edit the providers section) before running.\n", configPath)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name, p := cfg.GetDefaultProvider()
		fmt.Printf("OK: provider %s (%s), database %s\n", name, p.Model, cfg.Memory.Path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
}
