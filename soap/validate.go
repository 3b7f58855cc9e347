package soap

import "github.com/jafffy/medical-kg/schema"

// ConfidenceStats summarizes entity confidences within one category.
type ConfidenceStats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Summary reports how a categorized entity set distributed across the four
// SOAP sections, with per-category confidence statistics and warnings
// about distributions that usually mean categorization went wrong.
type Summary struct {
	Total      int                                     `json:"total"`
	ByCategory map[schema.SOAPCategory]int             `json:"by_category"`
	Confidence map[schema.SOAPCategory]ConfidenceStats `json:"confidence"`
	Issues     []string                                `json:"issues,omitempty"`
}

// Validate inspects categorized entities and builds a Summary. A complete
// clinical note has entities in every section; an empty subjective,
// assessment, or plan section is flagged, as is an objective section that
// outweighs the other three combined.
func Validate(entities []*schema.MedicalEntity) Summary {
	s := Summary{
		Total:      len(entities),
		ByCategory: make(map[schema.SOAPCategory]int),
		Confidence: make(map[schema.SOAPCategory]ConfidenceStats),
	}

	sums := make(map[schema.SOAPCategory]float64)
	for _, e := range entities {
		cat := e.SOAPCategory
		st := s.Confidence[cat]
		if s.ByCategory[cat] == 0 || e.Confidence < st.Min {
			st.Min = e.Confidence
		}
		if s.ByCategory[cat] == 0 || e.Confidence > st.Max {
			st.Max = e.Confidence
		}
		s.Confidence[cat] = st
		sums[cat] += e.Confidence
		s.ByCategory[cat]++
	}
	for cat, n := range s.ByCategory {
		st := s.Confidence[cat]
		st.Mean = sums[cat] / float64(n)
		s.Confidence[cat] = st
	}

	if s.Total == 0 {
		return s
	}
	if s.ByCategory[schema.Subjective] == 0 {
		s.Issues = append(s.Issues, "no subjective entities: patient complaints may be missing")
	}
	if s.ByCategory[schema.Assessment] == 0 {
		s.Issues = append(s.Issues, "no assessment entities: diagnoses may be missing")
	}
	if s.ByCategory[schema.Plan] == 0 {
		s.Issues = append(s.Issues, "no plan entities: treatments may be missing")
	}
	rest := s.ByCategory[schema.Subjective] + s.ByCategory[schema.Assessment] + s.ByCategory[schema.Plan]
	if s.ByCategory[schema.Objective] > rest {
		s.Issues = append(s.Issues, "objective entities outnumber the other sections combined")
	}
	return s
}
