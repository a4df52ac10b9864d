package cohort

import (
	"fmt"
	"strings"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/terminology"
	"github.com/kaicode/barts-cohort-tool/cmd/cohort/types"
)

// CohortDefinition is the submitted request payload: demographic filters,
// terminology-code inclusion/exclusion criteria and an optional admission
// time window.
type CohortDefinition struct {
	Title               string            `json:"title"`
	Gender              DemographicFilter `json:"gender"`
	Ethnicity           DemographicFilter `json:"ethnicity"`
	AgeRange            AgeRange          `json:"ageRange"`
	TimeRange           *TimeRange        `json:"timeRange,omitempty"`
	MustHaveFindings    []Finding         `json:"mustHaveFindings,omitempty"`
	MustNotHaveFindings []Finding         `json:"mustNotHaveFindings,omitempty"`
}

// AgeRange bounds are inclusive and always applied to the query.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// TimeRange filters on admission date. The filter is only applied when both
// ends are present; a half-open range applies no filter at all.
type TimeRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Bounded reports whether both ends of the range were submitted.
func (r *TimeRange) Bounded() bool {
	return r != nil && r.Start != "" && r.End != ""
}

// Finding is one inclusion or exclusion criterion. Code holds the concept
// the user selected in the terminology search; CodesWithDetails, when
// present, is the already-expanded set of codes to filter on.
type Finding struct {
	Code             []terminology.Coding `json:"code,omitempty"`
	Count            int                  `json:"count,omitempty"`
	CodesWithDetails []CodeDetail         `json:"codesWithDetails,omitempty"`
}

// CodeDetail is one expanded concept within a finding selection.
type CodeDetail struct {
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// RootCode returns the top-level selected concept, when one was submitted.
func (f Finding) RootCode() (string, bool) {
	if len(f.Code) == 0 || f.Code[0].Code == "" {
		return "", false
	}
	return f.Code[0].Code, true
}

// Validate rejects definitions the warehouse query could only answer with
// degenerate results.
func (def CohortDefinition) Validate() error {
	if strings.TrimSpace(def.Title) == "" {
		return &types.ValidationError{Field: "title", Message: "title is required"}
	}
	if def.AgeRange.Min > def.AgeRange.Max {
		return &types.ValidationError{
			Field:   "ageRange",
			Message: fmt.Sprintf("min %d exceeds max %d", def.AgeRange.Min, def.AgeRange.Max),
		}
	}
	return nil
}
