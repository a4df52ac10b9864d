package cohort

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/terminology"
)

// The wire sentinel meaning "no demographic filter".
const allSentinel = "ALL"

// DemographicFilter is the gender/ethnicity selection: either every category
// (the "ALL" sentinel on the wire) or an explicit list of coded categories.
// It is resolved once when the request is decoded; downstream code only ever
// asks All() or Displays(). The zero value selects every category, so an
// omitted JSON field behaves like "ALL".
type DemographicFilter struct {
	all     bool
	choices []terminology.Coding
}

func AllCategories() DemographicFilter {
	return DemographicFilter{all: true}
}

func ExplicitCategories(choices ...terminology.Coding) DemographicFilter {
	if len(choices) == 0 {
		return AllCategories()
	}
	return DemographicFilter{choices: choices}
}

// All reports whether the filter places no restriction on the column.
func (f DemographicFilter) All() bool {
	return f.all || len(f.choices) == 0
}

// Displays returns the display strings matched against the warehouse's text
// column, in selection order.
func (f DemographicFilter) Displays() []string {
	displays := make([]string, len(f.choices))
	for i, choice := range f.choices {
		displays[i] = choice.Display
	}
	return displays
}

func (f DemographicFilter) Choices() []terminology.Coding {
	return f.choices
}

func (f *DemographicFilter) UnmarshalJSON(data []byte) error {
	var sentinel string
	if err := json.Unmarshal(data, &sentinel); err == nil {
		if !strings.EqualFold(sentinel, allSentinel) {
			return fmt.Errorf("unsupported demographic filter value %q", sentinel)
		}
		*f = AllCategories()
		return nil
	}

	var choices []terminology.Coding
	if err := json.Unmarshal(data, &choices); err != nil {
		return fmt.Errorf("demographic filter must be %q or a list of codings: %w", allSentinel, err)
	}
	*f = ExplicitCategories(choices...)
	return nil
}

func (f DemographicFilter) MarshalJSON() ([]byte, error) {
	if f.All() {
		return json.Marshal(allSentinel)
	}
	return json.Marshal(f.choices)
}
