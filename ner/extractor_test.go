package ner

import (
	"context"
	"testing"

	"github.com/jafffy/medical-kg/schema"
)

func extractRuleBased(t *testing.T, text string) []*schema.MedicalEntity {
	t.Helper()
	ents, err := New(nil).Extract(context.Background(), text, false)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return ents
}

func findEntity(ents []*schema.MedicalEntity, text string) *schema.MedicalEntity {
	for _, e := range ents {
		if e.Text == text {
			return e
		}
	}
	return nil
}

func TestExtractRuleBased(t *testing.T) {
	ents := extractRuleBased(t, "Patient complains of chest pain. Started aspirin 81 mg. History of hypertension.")

	tests := []struct {
		text string
		typ  schema.EntityType
	}{
		{"chest pain", schema.Symptom},
		{"aspirin", schema.Medication},
		{"hypertension", schema.Disease},
	}
	for _, tt := range tests {
		e := findEntity(ents, tt.text)
		if e == nil {
			t.Errorf("entity %q not extracted", tt.text)
			continue
		}
		if e.Type != tt.typ {
			t.Errorf("%q type = %s, want %s", tt.text, e.Type, tt.typ)
		}
		if e.ID == "" {
			t.Errorf("%q has no id", tt.text)
		}
	}
}

func TestExtractStructuredBeatsRules(t *testing.T) {
	// "aspirin 81 mg" triggers both the dose pattern (0.8) and the name
	// pattern (0.7); the structured candidate must win the merge.
	ents := extractRuleBased(t, "Continue aspirin 81 mg daily.")

	e := findEntity(ents, "aspirin")
	if e == nil {
		t.Fatal("aspirin not extracted")
	}
	if e.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8 (structured)", e.Confidence)
	}
	if e.Metadata["extraction_method"] != "structured" {
		t.Errorf("extraction_method = %q, want structured", e.Metadata["extraction_method"])
	}
	if e.Metadata["dose"] != "81" || e.Metadata["unit"] != "mg" {
		t.Errorf("dose metadata = %v", e.Metadata)
	}
}

func TestExtractDeduplicatesCaseInsensitively(t *testing.T) {
	ents := extractRuleBased(t, "Aspirin given. aspirin helped. ASPIRIN continued.")

	count := 0
	for _, e := range ents {
		if findEntityKey(e.Text) == "aspirin" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d aspirin entities, want 1 after dedup", count)
	}
}

func findEntityKey(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func TestExtractDefaultsToObjective(t *testing.T) {
	ents := extractRuleBased(t, "Patient has pneumonia.")
	if len(ents) == 0 {
		t.Fatal("no entities extracted")
	}
	for _, e := range ents {
		if e.SOAPCategory != schema.Objective {
			t.Errorf("%q category = %s, want objective before categorization", e.Text, e.SOAPCategory)
		}
	}
}

func TestExtractEmptyText(t *testing.T) {
	ents := extractRuleBased(t, "   ")
	if len(ents) != 0 {
		t.Errorf("blank text produced %d entities", len(ents))
	}
}

func TestRuleConfidence(t *testing.T) {
	ents := extractRuleBased(t, "Diagnosis of sepsis.")
	e := findEntity(ents, "sepsis")
	if e == nil {
		t.Fatal("sepsis not extracted")
	}
	if e.Confidence != ruleConfidence {
		t.Errorf("confidence = %v, want %v", e.Confidence, ruleConfidence)
	}
}
