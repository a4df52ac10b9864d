package terminology

// Coding is a single concept returned by a ValueSet expansion.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// ValueSetExpansion mirrors the expansion section of an expanded FHIR ValueSet.
type ValueSetExpansion struct {
	Total    int      `json:"total,omitempty"`
	Offset   int      `json:"offset,omitempty"`
	Contains []Coding `json:"contains,omitempty"`
}

// ValueSet is the subset of the FHIR ValueSet resource the $expand operation
// returns that this service consumes.
type ValueSet struct {
	ResourceType string             `json:"resourceType,omitempty"`
	Expansion    *ValueSetExpansion `json:"expansion,omitempty"`
}

// SNOMED CT root concepts behind the search endpoints.
const (
	ClinicalFindingRoot = "404684003"
	ProcedureRoot       = "71388002"
)

// DescendantsAndSelf returns the ECL expression matching code and everything
// below it in the hierarchy.
func DescendantsAndSelf(code string) string {
	return "<<" + code
}

// Descendants returns the ECL expression matching strictly the concepts below
// code.
func Descendants(code string) string {
	return "<" + code
}
