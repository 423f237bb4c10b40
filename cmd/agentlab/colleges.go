package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/internal/college"
)

var collegeInput college.Input

var collegesCmd = &cobra.Command{
	Use:   "colleges [major]",
	Short: "Find colleges that match a major, location and budget",
	Long: `Search the web for colleges, extract them from the top results, drop
those known to be over budget or below the minimum acceptance rate and ask
for recommendations. The result is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		in := collegeInput
		in.Major = strings.Join(args, " ")
		res, err := a.colleges.Run(ctx, in)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	f := collegesCmd.Flags()
	f.StringVarP(&collegeInput.Location, "location", "l", "", "Preferred location or region")
	f.IntVar(&collegeInput.MaxTuition, "max-tuition", 0, "Maximum yearly tuition in dollars")
	f.Float64Var(&collegeInput.MinAcceptanceRate, "min-acceptance", 0, "Minimum acceptance rate in percent")
	f.IntVarP(&collegeInput.MaxColleges, "max", "n", college.DefaultMaxColleges, "Number of colleges to return")
	f.IntVar(&collegeInput.SATScore, "sat", 0, "The student's SAT score")
}
