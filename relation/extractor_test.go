package relation

import (
	"context"
	"testing"

	"github.com/jafffy/medical-kg/schema"
)

func entity(text string, typ schema.EntityType, cat schema.SOAPCategory) *schema.MedicalEntity {
	return &schema.MedicalEntity{
		ID:           schema.NewID(),
		Text:         text,
		Type:         typ,
		SOAPCategory: cat,
		Confidence:   0.7,
	}
}

func hasRelation(rels []*schema.MedicalRelation, sourceID, targetID string, typ schema.RelationType) *schema.MedicalRelation {
	for _, r := range rels {
		if r.SourceEntity == sourceID && r.TargetEntity == targetID && r.Type == typ {
			return r
		}
	}
	return nil
}

func TestDomainRuleMedicationTreatsDisease(t *testing.T) {
	med := entity("aspirin", schema.Medication, schema.Plan)
	dis := entity("hypertension", schema.Disease, schema.Assessment)

	rels := New(nil).Extract(context.Background(), "note text", []*schema.MedicalEntity{med, dis}, false)

	r := hasRelation(rels, med.ID, dis.ID, schema.Treats)
	if r == nil {
		t.Fatalf("missing treats relation, got %v", rels)
	}
	if r.Confidence != domainRuleConfidence {
		t.Errorf("confidence = %v, want %v", r.Confidence, domainRuleConfidence)
	}
	if r.ID == "" {
		t.Error("relation has no id")
	}
}

func TestCooccurrenceAcrossCategories(t *testing.T) {
	symptom := entity("chest pain", schema.Symptom, schema.Subjective)
	// Anatomy in assessment so only the category rule applies, not a
	// type-pair rule.
	finding := entity("heart", schema.Anatomy, schema.Assessment)

	rels := New(nil).Extract(context.Background(), "note", []*schema.MedicalEntity{symptom, finding}, false)

	r := hasRelation(rels, symptom.ID, finding.ID, schema.Indicates)
	if r == nil {
		t.Fatalf("missing subjective->assessment indicates relation, got %v", rels)
	}
	if r.Confidence != cooccurrenceConfidence {
		t.Errorf("confidence = %v, want %v", r.Confidence, cooccurrenceConfidence)
	}
}

func TestPatternRelation(t *testing.T) {
	med := entity("lisinopril", schema.Medication, schema.Plan)
	dis := entity("hypertension", schema.Disease, schema.Assessment)
	text := "lisinopril prescribed for hypertension"

	rels := New(nil).Extract(context.Background(), text, []*schema.MedicalEntity{med, dis}, false)

	r := hasRelation(rels, med.ID, dis.ID, schema.Treats)
	if r == nil {
		t.Fatal("missing treats relation from pattern match")
	}
	// Both the pattern and the domain rule fire; the higher confidence wins.
	if r.Confidence != patternConfidence {
		t.Errorf("confidence = %v, want %v (pattern)", r.Confidence, patternConfidence)
	}
	if r.Metadata["extraction_method"] != "pattern" {
		t.Errorf("extraction_method = %q", r.Metadata["extraction_method"])
	}
}

func TestTripletDeduplication(t *testing.T) {
	med := entity("aspirin", schema.Medication, schema.Plan)
	dis := entity("stroke", schema.Disease, schema.Assessment)
	text := "aspirin prescribed for stroke"

	rels := New(nil).Extract(context.Background(), text, []*schema.MedicalEntity{med, dis}, false)

	count := 0
	for _, r := range rels {
		if r.SourceEntity == med.ID && r.TargetEntity == dis.ID && r.Type == schema.Treats {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d aspirin-treats-stroke relations, want 1", count)
	}
}

func TestNoSelfRelations(t *testing.T) {
	a := entity("aspirin", schema.Medication, schema.Plan)
	b := entity("warfarin", schema.Medication, schema.Plan)

	rels := New(nil).Extract(context.Background(), "aspirin and warfarin", []*schema.MedicalEntity{a, b}, false)
	for _, r := range rels {
		if r.SourceEntity == r.TargetEntity {
			t.Errorf("self relation: %+v", r)
		}
	}
}

func TestFewerThanTwoEntities(t *testing.T) {
	one := entity("aspirin", schema.Medication, schema.Plan)
	if rels := New(nil).Extract(context.Background(), "aspirin", []*schema.MedicalEntity{one}, false); rels != nil {
		t.Errorf("single entity produced relations: %v", rels)
	}
	if rels := New(nil).Extract(context.Background(), "text", nil, false); rels != nil {
		t.Errorf("no entities produced relations: %v", rels)
	}
}

func TestCooccurrencePairCap(t *testing.T) {
	// 60 subjective x 40 assessment entities form 2400 candidate pairs for
	// the subjective->assessment rule; the stage must stop at the cap.
	// Anatomy carries no domain rule here, so co-occurrence is the only
	// contributing stage.
	var ents []*schema.MedicalEntity
	for i := 0; i < 60; i++ {
		ents = append(ents, entity(schema.NewID(), schema.Symptom, schema.Subjective))
	}
	for i := 0; i < 40; i++ {
		ents = append(ents, entity(schema.NewID(), schema.Anatomy, schema.Assessment))
	}

	rels := New(nil).Extract(context.Background(), "note", ents, false)
	if len(rels) != maxPairs {
		t.Errorf("got %d relations, want %d (pair cap)", len(rels), maxPairs)
	}
}

func TestEntityCapApplies(t *testing.T) {
	ents := make([]*schema.MedicalEntity, maxEntities+20)
	for i := range ents {
		ents[i] = entity(schema.NewID(), schema.Medication, schema.Plan)
	}
	// Should complete without touching entities beyond the cap; just
	// exercise the bound.
	New(nil).Extract(context.Background(), "text", ents, false)
}
