package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/internal/marketing"
)

var (
	marketingHint     string
	marketingPersonas int
)

var marketingCmd = &cobra.Command{
	Use:   "marketing <app-url>",
	Short: "Build a marketing plan for a web app",
	Long: `Read the app's website, draft buyer personas and keywords, research
competitors (when --competitors is given) and suggest marketing strategies
and subreddits. The plan is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		plan, err := a.marketing.Run(ctx, marketing.Input{
			AppURL:         args[0],
			CompetitorHint: marketingHint,
			MaxPersonas:    marketingPersonas,
		})
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	marketingCmd.Flags().StringVar(&marketingHint, "competitors", "", "Describe the kind of product to search competitors for")
	marketingCmd.Flags().IntVar(&marketingPersonas, "personas", marketing.DefaultMaxPersonas, "Maximum number of buyer personas")
}
