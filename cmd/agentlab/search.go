package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/internal/search"
)

var (
	searchLinks bool
	searchMax   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the web with DuckDuckGo",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ddg, err := search.NewDuckDuckGo(searchMax)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		query := strings.Join(args, " ")
		if !searchLinks {
			text, err := ddg.Search(ctx, query)
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		}

		results, err := search.Links(ctx, ddg, query)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return errors.New("no results")
		}
		for i, r := range results {
			heading.Printf("%d. %s\n", i+1, r.Title)
			faint.Println("   " + r.URL)
			if r.Description != "" {
				fmt.Println("   " + r.Description)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVarP(&searchLinks, "links", "l", false, "Print parsed results instead of the raw answer")
	searchCmd.Flags().IntVarP(&searchMax, "max", "m", 10, "Maximum number of results")
}
