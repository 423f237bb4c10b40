package extract

// SiteInfo describes a product website.
type SiteInfo struct {
	AppName          string   `json:"app_name" jsonschema:"description=Name of the app or product"`
	Description      string   `json:"description" jsonschema:"description=What the product is and does"`
	KeyFeatures      []string `json:"key_features" jsonschema:"description=Key features as a list"`
	ValueProposition string   `json:"value_proposition" jsonschema:"description=The main value proposition"`
}

// SiteInfoInstructions lists the SiteInfo fields for an extraction prompt.
const SiteInfoInstructions = `- App name
- Description
- Key features (as a list)
- Value proposition`

// College is a school found while researching colleges.
type College struct {
	Name             string   `json:"name" jsonschema:"description=Name of the college"`
	Location         string   `json:"location" jsonschema:"description=Location of the college"`
	Description      string   `json:"description" jsonschema:"description=Brief description of the college"`
	AcceptanceRate   string   `json:"acceptance_rate,omitempty" jsonschema:"description=Acceptance rate of the college if available"`
	Tuition          string   `json:"tuition,omitempty" jsonschema:"description=Tuition cost of the college if available"`
	Enrollment       string   `json:"enrollment,omitempty" jsonschema:"description=Undergraduate enrollment if available"`
	DormPercentage   string   `json:"dorm_percentage,omitempty" jsonschema:"description=Percentage of students who live in dorms if available"`
	SATScores        string   `json:"sat_scores,omitempty" jsonschema:"description=SAT scores if available"`
	Programs         []string `json:"programs,omitempty" jsonschema:"description=Notable programs or majors"`
	URL              string   `json:"url,omitempty" jsonschema:"description=URL of the college website if available"`
	HasMissingFields bool     `json:"has_missing_fields,omitempty" jsonschema:"-"`
}

// CollegeList wraps colleges for structured output, which needs an object root.
type CollegeList struct {
	Colleges []College `json:"colleges"`
}

const CollegeInstructions = `- Every college mentioned, with:
  - name, location and a brief description
  - acceptance rate, tuition, undergraduate enrollment, dorm percentage and SAT scores if available
  - notable programs or majors
  - the college website URL if available`

// Missing lists the optional fields that are still empty.
func (c College) Missing() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		empty bool
	}{
		{"acceptance_rate", c.AcceptanceRate == ""},
		{"tuition", c.Tuition == ""},
		{"enrollment", c.Enrollment == ""},
		{"dorm_percentage", c.DormPercentage == ""},
		{"sat_scores", c.SATScores == ""},
		{"programs", len(c.Programs) == 0},
		{"url", c.URL == ""},
	} {
		if f.empty {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// MergeColleges applies update to current: a college with a known name
// replaces the existing entry in place, new names are appended. Neither
// input is modified.
func MergeColleges(current, update []College) []College {
	result := make([]College, len(current), len(current)+len(update))
	copy(result, current)

	for _, c := range update {
		c.HasMissingFields = len(c.Missing()) > 0
		found := false
		for i := range result {
			if result[i].Name == c.Name {
				result[i] = c
				found = true
				break
			}
		}
		if !found {
			result = append(result, c)
		}
	}
	return result
}
