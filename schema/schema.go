// Package schema defines the core data model for the SOAP knowledge graph:
// medical entities, typed relations between them, and per-patient SOAP notes.
package schema

import "github.com/google/uuid"

// SOAPCategory is one of the four sections of a SOAP clinical note.
type SOAPCategory string

const (
	Subjective SOAPCategory = "subjective"
	Objective  SOAPCategory = "objective"
	Assessment SOAPCategory = "assessment"
	Plan       SOAPCategory = "plan"
)

// SOAPCategories lists all categories in their canonical note order.
func SOAPCategories() []SOAPCategory {
	return []SOAPCategory{Subjective, Objective, Assessment, Plan}
}

// ParseSOAPCategory maps a string to a SOAPCategory. The second return value
// reports whether the input named a valid category.
func ParseSOAPCategory(s string) (SOAPCategory, bool) {
	switch SOAPCategory(lower(s)) {
	case Subjective:
		return Subjective, true
	case Objective:
		return Objective, true
	case Assessment:
		return Assessment, true
	case Plan:
		return Plan, true
	}
	return Objective, false
}

// EntityType classifies an extracted medical entity.
type EntityType string

const (
	Disease     EntityType = "disease"
	Symptom     EntityType = "symptom"
	Medication  EntityType = "medication"
	Procedure   EntityType = "procedure"
	Anatomy     EntityType = "anatomy"
	LabValue    EntityType = "lab_value"
	VitalSign   EntityType = "vital_sign"
	Treatment   EntityType = "treatment"
	Demographic EntityType = "demographic"
)

// EntityTypes lists all known entity types.
func EntityTypes() []EntityType {
	return []EntityType{
		Disease, Symptom, Medication, Procedure, Anatomy,
		LabValue, VitalSign, Treatment, Demographic,
	}
}

// EntityTypeOf maps a raw type string (any case) to an EntityType.
// Unrecognized strings land in the treatment bucket rather than failing:
// extraction sources emit free-form type labels and a candidate with an odd
// label is still worth keeping.
func EntityTypeOf(s string) EntityType {
	switch EntityType(lower(s)) {
	case Disease:
		return Disease
	case Symptom:
		return Symptom
	case Medication:
		return Medication
	case Procedure:
		return Procedure
	case Anatomy:
		return Anatomy
	case LabValue:
		return LabValue
	case VitalSign:
		return VitalSign
	case Treatment:
		return Treatment
	case Demographic:
		return Demographic
	}
	return Treatment
}

// RelationType classifies a directed relation between two entities.
type RelationType string

const (
	Treats        RelationType = "treats"
	Causes        RelationType = "causes"
	Indicates     RelationType = "indicates"
	MeasuredBy    RelationType = "measured_by"
	LocatedIn     RelationType = "located_in"
	HasSymptom    RelationType = "has_symptom"
	PrescribedFor RelationType = "prescribed_for"
	DiagnosedWith RelationType = "diagnosed_with"
	PartOf        RelationType = "part_of"
	Follows       RelationType = "follows"
)

// RelationTypes lists all known relation types.
func RelationTypes() []RelationType {
	return []RelationType{
		Treats, Causes, Indicates, MeasuredBy, LocatedIn,
		HasSymptom, PrescribedFor, DiagnosedWith, PartOf, Follows,
	}
}

// RelationTypeOf maps a raw relation string (any case) to a RelationType,
// defaulting to treats for unrecognized labels.
func RelationTypeOf(s string) RelationType {
	switch RelationType(lower(s)) {
	case Treats:
		return Treats
	case Causes:
		return Causes
	case Indicates:
		return Indicates
	case MeasuredBy:
		return MeasuredBy
	case LocatedIn:
		return LocatedIn
	case HasSymptom:
		return HasSymptom
	case PrescribedFor:
		return PrescribedFor
	case DiagnosedWith:
		return DiagnosedWith
	case PartOf:
		return PartOf
	case Follows:
		return Follows
	}
	return Treats
}

// NewID returns a fresh globally unique identifier for an entity or relation.
func NewID() string {
	return uuid.NewString()
}

// MedicalEntity is a typed span of clinical meaning extracted from text.
// The ID is immutable once assigned; SOAPCategory is set to a default at
// extraction time and rewritten once by the categorizer.
type MedicalEntity struct {
	ID           string            `json:"id"`
	Text         string            `json:"text"`
	Type         EntityType        `json:"entity_type"`
	SOAPCategory SOAPCategory      `json:"soap_category"`
	Confidence   float64           `json:"confidence"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// MedicalRelation is a directed, typed link between two entities. Source and
// target are entity ids held as plain identifiers, not references: the
// entities may be absent from any given store, and existence is checked at
// the point of use.
type MedicalRelation struct {
	ID           string            `json:"id"`
	SourceEntity string            `json:"source_entity"`
	TargetEntity string            `json:"target_entity"`
	Type         RelationType      `json:"relation_type"`
	Confidence   float64           `json:"confidence"`
	SOAPContext  SOAPCategory      `json:"soap_context"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SOAPNote is the result of one patient-processing pass: the extracted
// entities grouped by SOAP category plus the relations between them.
type SOAPNote struct {
	PatientID   string             `json:"patient_id"`
	AdmissionID string             `json:"admission_id,omitempty"`
	Subjective  []*MedicalEntity   `json:"subjective"`
	Objective   []*MedicalEntity   `json:"objective"`
	Assessment  []*MedicalEntity   `json:"assessment"`
	Plan        []*MedicalEntity   `json:"plan"`
	Relations   []*MedicalRelation `json:"relations"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// AllEntities returns the union of the four category lists in canonical
// note order (subjective, objective, assessment, plan).
func (n *SOAPNote) AllEntities() []*MedicalEntity {
	out := make([]*MedicalEntity, 0,
		len(n.Subjective)+len(n.Objective)+len(n.Assessment)+len(n.Plan))
	out = append(out, n.Subjective...)
	out = append(out, n.Objective...)
	out = append(out, n.Assessment...)
	out = append(out, n.Plan...)
	return out
}

// EntitiesByType filters the note's entities by entity type.
func (n *SOAPNote) EntitiesByType(t EntityType) []*MedicalEntity {
	var out []*MedicalEntity
	for _, e := range n.AllEntities() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// lower is an ASCII-only lowercase; type labels never contain non-ASCII.
func lower(s string) string {
	b := []byte(s)
	changed := false
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
			changed = true
		}
	}
	if !changed {
		return s
	}
	return string(b)
}
