package preprocess

import (
	"strings"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "patient   has\n\tfever", "patient has fever"},
		{"strips junk characters", "fever @@ 101##", "fever 101"},
		{"drops single letters", "a fever q noted", "fever noted"},
		{"empty input", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpandAbbreviations(t *testing.T) {
	got := ExpandAbbreviations("Pt c/o SOB and CP")
	for _, want := range []string{"patient", "complains of", "shortness of breath", "chest pain"} {
		if !strings.Contains(got, want) {
			t.Errorf("expanded text %q missing %q", got, want)
		}
	}
}

func TestExtractVitalSigns(t *testing.T) {
	text := "BP 120/80, HR 72, temp 98.6 F, O2 sat 95%"
	vitals := ExtractVitalSigns(text)

	byType := make(map[string]string)
	for _, v := range vitals {
		byType[v.Type] = v.Value
	}

	checks := map[string]string{
		"systolic_bp":       "120",
		"diastolic_bp":      "80",
		"heart_rate":        "72",
		"temperature":       "98.6",
		"oxygen_saturation": "95",
	}
	for kind, want := range checks {
		if got := byType[kind]; got != want {
			t.Errorf("%s = %q, want %q (all: %v)", kind, got, want, vitals)
		}
	}
}

func TestExtractMedications(t *testing.T) {
	meds := ExtractMedications("Started aspirin 81 mg daily and metformin 500mg twice daily.")
	if len(meds) != 2 {
		t.Fatalf("got %d medications, want 2: %v", len(meds), meds)
	}
	if meds[0].Name != "aspirin" || meds[0].Dose != "81" || meds[0].Unit != "mg" {
		t.Errorf("first medication = %+v", meds[0])
	}
	if meds[1].Name != "metformin" || meds[1].Dose != "500" {
		t.Errorf("second medication = %+v", meds[1])
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Patient has fever. Started antibiotics! Follow up in one week?")
	if len(got) != 3 {
		t.Fatalf("got %d sentences, want 3: %v", len(got), got)
	}
	if got[1] != "Started antibiotics" {
		t.Errorf("second sentence = %q", got[1])
	}
}

func TestProcessEmptyText(t *testing.T) {
	doc := Process("   ")
	if doc.CleanedText != "" || len(doc.Sentences) != 0 {
		t.Errorf("blank input should produce empty document, got %+v", doc)
	}
}

func TestProcessKeepsStructuredFieldsFromOriginal(t *testing.T) {
	doc := Process("BP: 140/90. Pt started on lisinopril 10 mg.")
	if len(doc.VitalSigns) == 0 {
		t.Error("expected vitals from original text")
	}
	if len(doc.Medications) != 1 || doc.Medications[0].Name != "lisinopril" {
		t.Errorf("medications = %+v", doc.Medications)
	}
	if !strings.Contains(doc.CleanedText, "blood pressure") {
		t.Errorf("cleaned text %q should expand bp", doc.CleanedText)
	}
}
