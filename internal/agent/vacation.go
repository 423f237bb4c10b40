package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/agentlab/internal/workflow"
)

// VacationHouseAgent is the registry key of the vacation house search.
const VacationHouseAgent = "vacation-house"

const (
	vacationCities = 1
	vacationHomes  = 2
)

// VacationHousePlan is a Decomposer that always returns the vacation house
// pipeline for the task, without a model call.
func VacationHousePlan() workflow.Decomposer {
	return workflow.DecomposerFunc(func(ctx context.Context, task string) ([]string, error) {
		return VacationHouseSteps(task), nil
	})
}

// VacationHouseSteps lists the five research steps for query: candidate
// towns, homes for sale, listing checks, nearby businesses and a summary.
// Each step repeats what later steps need, since a step only sees the
// result of the one before it.
func VacationHouseSteps(query string) []string {
	return []string{
		fmt.Sprintf("Find up to %d towns that best match this vacation house request: %s. "+
			"Focus on location and price limits, use several sources and check each town for short term rental restrictions. "+
			"Answer with each town, why it matches and its rental restrictions.", vacationCities, query),
		fmt.Sprintf("For each town in the previous result, find up to %d single family homes for sale within the budget of this request: %s. "+
			"Prefer the most bedrooms and bathrooms. Answer with the town, address, price, why it matches and a link to each home.", vacationHomes, query),
		"Verify each home in the previous result: open its link with read_page, check that the page is a for sale listing of the same address " +
			"and that the price is within budget. Search for the address to replace wrong links and drop homes that cannot be verified. " +
			"Answer with the verified homes in the same format, keeping the town details.",
		"For each verified home in the previous result, find the closest bars, restaurants and coffee shops and describe how walkable the area is. " +
			"Answer with the homes in the same format, adding each business with its name, address, type and distance in miles.",
		fmt.Sprintf("Summarize the vacation house search for this request: %s. Cover which towns were picked and why, "+
			"the homes found with prices and links, the local businesses near each home and any recommendations.", query),
	}
}

// VacationHouse runs the vacation house pipeline. Input is either the
// request text or JSON with a "query" field.
type VacationHouse struct {
	*PlanExecute
}

func (v *VacationHouse) Invoke(ctx context.Context, input string) (string, error) {
	query, err := parseQuery(input)
	if err != nil {
		return "", err
	}
	return v.PlanExecute.Invoke(ctx, query)
}

func parseQuery(input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "{") {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(input), &req); err != nil {
			return "", err
		}
		input = strings.TrimSpace(req.Query)
	}
	if input == "" {
		return "", errors.New("agent: query is required")
	}
	return input, nil
}
