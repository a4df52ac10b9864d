package cohort

import (
	"strings"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/terminology"
)

func testDefinition() CohortDefinition {
	return CohortDefinition{
		Title:     "T1",
		Gender:    AllCategories(),
		Ethnicity: AllCategories(),
		AgeRange:  AgeRange{Min: 18, Max: 99},
	}
}

// whereClause extracts the WHERE section of a generated statement, since the
// fixed projection and grouping also mention the filterable columns.
func whereClause(t *testing.T, query string) string {
	t.Helper()
	_, after, found := strings.Cut(query, "\nWHERE ")
	if !found {
		t.Fatalf("generated statement has no WHERE clause:\n%s", query)
	}
	before, _, _ := strings.Cut(after, "\nGROUP BY")
	return before
}

func TestBuildQueryAgeAndDiagnosisOnly(t *testing.T) {
	g := NewWithT(t)

	query, params := BuildQuery(testDefinition(), []string{"73211009"}, nil)

	where := whereClause(t, query)
	predicates := strings.Split(where, "\n  AND ")
	g.Expect(predicates).To(HaveLen(2))
	g.Expect(predicates[0]).To(Equal("(EXTRACT(YEAR FROM CURRENT_DATE) - p.year_of_birth) BETWEEN ? AND ?"))
	g.Expect(predicates[1]).To(Equal("d.diagnosis_code IN (?)"))

	g.Expect(params).To(Equal([]any{18, 99, "73211009"}))
}

func TestBuildQueryGenderAllOmitsPredicate(t *testing.T) {
	g := NewWithT(t)

	query, _ := BuildQuery(testDefinition(), nil, nil)

	where := whereClause(t, query)
	g.Expect(where).NotTo(ContainSubstring("p.gender"))
	g.Expect(where).NotTo(ContainSubstring("p.ethnicity"))
}

func TestBuildQueryExplicitGenderParamsInOrder(t *testing.T) {
	g := NewWithT(t)

	def := testDefinition()
	def.Gender = ExplicitCategories(
		terminology.Coding{Code: "1", Display: "Male"},
		terminology.Coding{Code: "2", Display: "Female"},
		terminology.Coding{Code: "3", Display: "Non-binary"},
	)

	query, params := BuildQuery(def, nil, nil)

	where := whereClause(t, query)
	g.Expect(where).To(ContainSubstring("p.gender IN (?,?,?)"))
	// Display strings are the matched values, in selection order, ahead of
	// the age parameters.
	g.Expect(params).To(Equal([]any{"Male", "Female", "Non-binary", 18, 99}))
}

func TestBuildQueryEmptyCodeListsEmitNoFragment(t *testing.T) {
	g := NewWithT(t)

	query, params := BuildQuery(testDefinition(), nil, nil)

	where := whereClause(t, query)
	g.Expect(where).NotTo(ContainSubstring("IN ()"))
	g.Expect(where).NotTo(ContainSubstring("d.diagnosis_code"))
	g.Expect(where).NotTo(ContainSubstring("NOT IN"))
	g.Expect(params).To(Equal([]any{18, 99}))
}

func TestBuildQueryExclusionCodes(t *testing.T) {
	g := NewWithT(t)

	query, params := BuildQuery(testDefinition(), []string{"73211009", "44054006"}, []string{"46635009"})

	where := whereClause(t, query)
	g.Expect(where).To(ContainSubstring("d.diagnosis_code IN (?,?)"))
	g.Expect(where).To(ContainSubstring("d.diagnosis_code NOT IN (?)"))
	g.Expect(strings.Index(where, "NOT IN")).To(BeNumerically(">", strings.Index(where, "diagnosis_code IN")))
	g.Expect(params).To(Equal([]any{18, 99, "73211009", "44054006", "46635009"}))
}

func TestBuildQueryTimeRangeRequiresBothEnds(t *testing.T) {
	g := NewWithT(t)

	def := testDefinition()
	def.TimeRange = &TimeRange{Start: "2020-01-01"}
	query, params := BuildQuery(def, nil, nil)
	g.Expect(whereClause(t, query)).NotTo(ContainSubstring("admission_date"))
	g.Expect(params).To(HaveLen(2))

	def.TimeRange = &TimeRange{Start: "2020-01-01", End: "2021-12-31"}
	query, params = BuildQuery(def, nil, nil)
	g.Expect(whereClause(t, query)).To(ContainSubstring("a.admission_date >= ? AND a.admission_date <= ?"))
	g.Expect(params).To(Equal([]any{18, 99, "2020-01-01", "2021-12-31"}))
}

func TestBuildQueryFixedPredicateOrder(t *testing.T) {
	g := NewWithT(t)

	def := testDefinition()
	def.Gender = ExplicitCategories(terminology.Coding{Code: "2", Display: "Female"})
	def.Ethnicity = ExplicitCategories(terminology.Coding{Code: "A", Display: "White - British"})
	def.TimeRange = &TimeRange{Start: "2019-06-01", End: "2024-06-01"}

	query, params := BuildQuery(def, []string{"195967001"}, []string{"233604007"})

	where := whereClause(t, query)
	predicates := strings.Split(where, "\n  AND ")
	g.Expect(predicates).To(HaveLen(6))
	g.Expect(predicates[0]).To(HavePrefix("p.gender IN"))
	g.Expect(predicates[1]).To(HavePrefix("p.ethnicity IN"))
	g.Expect(predicates[2]).To(ContainSubstring("BETWEEN ? AND ?"))
	g.Expect(predicates[3]).To(HavePrefix("a.admission_date"))
	g.Expect(predicates[4]).To(Equal("d.diagnosis_code IN (?)"))
	g.Expect(predicates[5]).To(Equal("d.diagnosis_code NOT IN (?)"))

	g.Expect(params).To(Equal([]any{
		"Female", "White - British", 18, 99, "2019-06-01", "2024-06-01", "195967001", "233604007",
	}))
}

func TestBuildQueryFixedGrouping(t *testing.T) {
	g := NewWithT(t)

	query, _ := BuildQuery(testDefinition(), nil, nil)

	g.Expect(query).To(ContainSubstring("COUNT(*) AS patient_count"))
	g.Expect(query).To(ContainSubstring("GROUP BY p.gender, p.ethnicity, d.diagnosis_code, a.admission_date, d.diagnosis_display, p.year_of_birth"))
}
