package cohort

import (
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/datasource"
	"github.com/kaicode/barts-cohort-tool/util"
)

// ageBand is one fixed reporting bucket; min inclusive, max exclusive.
// The last band is open-ended.
type ageBand struct {
	label string
	min   int
	max   int
}

var ageBands = []ageBand{
	{"18-29", 18, 30},
	{"30-39", 30, 40},
	{"40-49", 40, 50},
	{"50-59", 50, 60},
	{"60-69", 60, 70},
	{"70-79", 70, 80},
	{"80-89", 80, 90},
	{"90-99", 90, 100},
	{"100+", 100, 0},
}

const topDiagnosesLimit = 5

type CountByGender struct {
	Gender string `json:"gender"`
	Count  int    `json:"count"`
}

type CountByAgeGroup struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

type CountByEthnicity struct {
	Ethnicity string `json:"ethnicity"`
	Count     int    `json:"count"`
}

type CountByDiagnosis struct {
	Diagnosis string `json:"diagnosis"`
	Count     int    `json:"count"`
}

// CohortResultView is the response payload: the aggregate views derived from
// one executed cohort query, plus the raw grouped rows.
type CohortResultView struct {
	Title           string                 `json:"title,omitempty"`
	TotalPatients   int                    `json:"total_patients"`
	UniqueDiagnoses int                    `json:"uniqueDiagnoses"`
	MinAge          *int                   `json:"minAge"`
	MaxAge          *int                   `json:"maxAge"`
	GenderCounts    []CountByGender        `json:"genderCounts"`
	AgeGroups       []CountByAgeGroup      `json:"ageGroups"`
	EthnicityCounts []CountByEthnicity     `json:"ethnicityCounts"`
	TopDiagnoses    []CountByDiagnosis     `json:"topDiagnoses"`
	Results         []datasource.CohortRow `json:"results"`
}

// Aggregate reshapes the raw warehouse groups into the presentation views.
// It is a pure function of its input apart from reading the current year,
// which mirrors the year the warehouse derived ages against.
func Aggregate(rows []datasource.CohortRow, def CohortDefinition) CohortResultView {
	return aggregate(rows, def, time.Now().Year())
}

func aggregate(rows []datasource.CohortRow, def CohortDefinition, currentYear int) CohortResultView {
	view := CohortResultView{
		Title:           def.Title,
		GenderCounts:    []CountByGender{},
		EthnicityCounts: []CountByEthnicity{},
		TopDiagnoses:    []CountByDiagnosis{},
		Results:         rows,
	}
	if view.Results == nil {
		view.Results = []datasource.CohortRow{}
	}

	genderTotals := make(map[string]int)
	ethnicityTotals := make(map[string]int)
	diagnosisTotals := make(map[string]int)
	bandTotals := make(map[string]int)
	distinctCodes := make(map[string]struct{})

	for _, row := range rows {
		view.TotalPatients += row.Count
		genderTotals[row.Gender] += row.Count
		ethnicityTotals[row.Ethnicity] += row.Count
		distinctCodes[row.DiagnosisCode] = struct{}{}

		diagnosis := row.DiagnosisDisplay
		if diagnosis == "" {
			diagnosis = row.DiagnosisCode
		}
		diagnosisTotals[diagnosis] += row.Count

		// A missing birth year leaves the row's age undefined; it counts
		// towards no band and neither age extreme.
		if row.YearOfBirth <= 0 {
			continue
		}
		age := currentYear - row.YearOfBirth

		if band, ok := bandFor(age); ok {
			bandTotals[band.label] += row.Count
		}
		if view.MinAge == nil || age < *view.MinAge {
			view.MinAge = util.IntPtr(age)
		}
		if view.MaxAge == nil || age > *view.MaxAge {
			view.MaxAge = util.IntPtr(age)
		}
	}

	for _, gender := range sortedKeys(genderTotals) {
		view.GenderCounts = append(view.GenderCounts, CountByGender{Gender: gender, Count: genderTotals[gender]})
	}
	for _, ethnicity := range sortedKeys(ethnicityTotals) {
		view.EthnicityCounts = append(view.EthnicityCounts, CountByEthnicity{Ethnicity: ethnicity, Count: ethnicityTotals[ethnicity]})
	}

	// Every band label is present in the output, zero-filled when no row
	// fell into it.
	view.AgeGroups = make([]CountByAgeGroup, len(ageBands))
	for i, band := range ageBands {
		view.AgeGroups[i] = CountByAgeGroup{Range: band.label, Count: bandTotals[band.label]}
	}

	view.UniqueDiagnoses = len(distinctCodes)
	view.TopDiagnoses = topDiagnoses(diagnosisTotals)

	return view
}

func bandFor(age int) (ageBand, bool) {
	for _, band := range ageBands {
		if age >= band.min && (band.max == 0 || age < band.max) {
			return band, true
		}
	}
	return ageBand{}, false
}

func topDiagnoses(totals map[string]int) []CountByDiagnosis {
	diagnoses := make([]CountByDiagnosis, 0, len(totals))
	for diagnosis, count := range totals {
		diagnoses = append(diagnoses, CountByDiagnosis{Diagnosis: diagnosis, Count: count})
	}

	slices.SortFunc(diagnoses, func(a, b CountByDiagnosis) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Diagnosis, b.Diagnosis)
	})

	if len(diagnoses) > topDiagnosesLimit {
		diagnoses = diagnoses[:topDiagnosesLimit]
	}
	return diagnoses
}

func sortedKeys(totals map[string]int) []string {
	keys := maps.Keys(totals)
	slices.Sort(keys)
	return keys
}
