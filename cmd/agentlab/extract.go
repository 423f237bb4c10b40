package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/schema"

	"github.com/rahul/agentlab/internal/extract"
	"github.com/rahul/agentlab/internal/loader"
)

const (
	extractChunkSize    = 8000
	extractChunkOverlap = 200
)

var extractSchema string

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Extract structured data from a web page",
	Long: `Load a page and extract structured data from it with the model.

Schemas:
  site      app name, description, key features and value proposition
  colleges  every college listed on the page; long pages are read in chunks
            and the results merged by name`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractSchema, "schema", "s", "site", "What to extract: site or colleges")
}

func runExtract(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	var out any
	switch extractSchema {
	case "site":
		var info extract.SiteInfo
		if err := a.extractor.FromURL(ctx, a.loader, args[0], extract.SiteInfoInstructions, &info); err != nil {
			return err
		}
		out = info
	case "colleges":
		docs, err := a.loader.Load(ctx, args[0])
		if err != nil {
			return err
		}
		chunks, err := loader.Split(docs, extractChunkSize, extractChunkOverlap)
		if err != nil {
			return err
		}
		var colleges []extract.College
		for i, chunk := range chunks {
			var list extract.CollegeList
			if err := a.extractor.Extract(ctx, []schema.Document{chunk}, extract.CollegeInstructions, &list); err != nil {
				log.Printf("Skipping chunk %d/%d: %v", i+1, len(chunks), err)
				continue
			}
			colleges = extract.MergeColleges(colleges, list.Colleges)
		}
		for _, c := range colleges {
			if missing := c.Missing(); len(missing) > 0 {
				log.Printf("%s is missing %v", c.Name, missing)
			}
		}
		out = extract.CollegeList{Colleges: colleges}
	default:
		return fmt.Errorf("unknown schema %q (want site or colleges)", extractSchema)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
