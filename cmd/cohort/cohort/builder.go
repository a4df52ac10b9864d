package cohort

import (
	"fmt"
	"strings"
)

// The projection, joins and grouping are fixed: the aggregator depends on
// exactly this grouping granularity. Diagnosis codes are cast to text so
// every downstream consumer sees them as strings.
const baseQuery = `SELECT p.gender, p.ethnicity, CAST(d.diagnosis_code AS TEXT) AS diagnosis_code, a.admission_date, d.diagnosis_display, p.year_of_birth, COUNT(*) AS patient_count
FROM admissions a
JOIN patients p ON p.person_id = a.person_id
JOIN diagnoses d ON d.person_id = p.person_id`

const groupByClause = `GROUP BY p.gender, p.ethnicity, d.diagnosis_code, a.admission_date, d.diagnosis_display, p.year_of_birth`

// predicate is one WHERE fragment paired with the positional parameters it
// consumes. Fragments are concatenated in the order they were appended, so
// parameter order is load-bearing.
type predicate struct {
	clause string
	params []any
}

// BuildQuery assembles the aggregate cohort statement and its positional
// parameter list. Placeholders are '?'; the executor rebinds them to the
// driver's bindvar style. Predicates are appended in a fixed order: gender,
// ethnicity, age, admission date, inclusion codes, exclusion codes. Only the
// age predicate is unconditional, so the WHERE clause is never empty.
func BuildQuery(def CohortDefinition, haveCodes, notHaveCodes []string) (string, []any) {
	var predicates []predicate

	if !def.Gender.All() {
		predicates = append(predicates, listPredicate("p.gender", "IN", def.Gender.Displays()))
	}
	if !def.Ethnicity.All() {
		predicates = append(predicates, listPredicate("p.ethnicity", "IN", def.Ethnicity.Displays()))
	}

	// Age is derived against the warehouse's notion of the current year.
	predicates = append(predicates, predicate{
		clause: "(EXTRACT(YEAR FROM CURRENT_DATE) - p.year_of_birth) BETWEEN ? AND ?",
		params: []any{def.AgeRange.Min, def.AgeRange.Max},
	})

	if def.TimeRange.Bounded() {
		predicates = append(predicates, predicate{
			clause: "a.admission_date >= ? AND a.admission_date <= ?",
			params: []any{def.TimeRange.Start, def.TimeRange.End},
		})
	}

	if len(haveCodes) > 0 {
		predicates = append(predicates, listPredicate("d.diagnosis_code", "IN", haveCodes))
	}
	if len(notHaveCodes) > 0 {
		predicates = append(predicates, listPredicate("d.diagnosis_code", "NOT IN", notHaveCodes))
	}

	var query strings.Builder
	query.WriteString(baseQuery)
	query.WriteString("\nWHERE ")

	var params []any
	for i, pred := range predicates {
		if i > 0 {
			query.WriteString("\n  AND ")
		}
		query.WriteString(pred.clause)
		params = append(params, pred.params...)
	}

	query.WriteString("\n")
	query.WriteString(groupByClause)

	return query.String(), params
}

// listPredicate builds "column IN (?,?,...)" with one placeholder per value.
// Callers must never pass an empty list: "IN ()" is not valid SQL, so empty
// lists mean the whole predicate is omitted.
func listPredicate(column, operator string, values []string) predicate {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")

	params := make([]any, len(values))
	for i, value := range values {
		params[i] = value
	}

	return predicate{
		clause: fmt.Sprintf("%s %s (%s)", column, operator, placeholders),
		params: params,
	}
}
