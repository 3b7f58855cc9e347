package medicalkg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jafffy/medical-kg/schema"
)

func newRulePipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	cfg.UseLLM = false
	cfg.LLM.APIKey = ""
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestProcessTextRuleBased(t *testing.T) {
	p := newRulePipeline(t)

	note, err := p.ProcessText(context.Background(), "p1", "a1",
		"Patient presents with chest pain. Assessment: acute myocardial infarction. Plan: aspirin 325mg.")
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}

	var chestPain, aspirin *schema.MedicalEntity
	for _, e := range note.AllEntities() {
		switch e.Text {
		case "chest pain":
			chestPain = e
		case "aspirin":
			aspirin = e
		}
	}
	if chestPain == nil {
		t.Fatal("chest pain not extracted")
	}
	if chestPain.Type != schema.Symptom {
		t.Errorf("chest pain type = %s, want symptom", chestPain.Type)
	}
	if chestPain.SOAPCategory != schema.Subjective {
		t.Errorf("chest pain category = %s, want subjective", chestPain.SOAPCategory)
	}
	if aspirin == nil {
		t.Fatal("aspirin not extracted")
	}
	if aspirin.Type != schema.Medication {
		t.Errorf("aspirin type = %s, want medication", aspirin.Type)
	}
	if aspirin.SOAPCategory != schema.Plan {
		t.Errorf("aspirin category = %s, want plan", aspirin.SOAPCategory)
	}

	if p.Graph().EntityCount() == 0 || p.Graph().NoteCount() != 1 {
		t.Errorf("graph = %d entities %d notes", p.Graph().EntityCount(), p.Graph().NoteCount())
	}
}

func TestProcessTextEmptyInput(t *testing.T) {
	p := newRulePipeline(t)
	if _, err := p.ProcessText(context.Background(), "p1", "", "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("got %v, want ErrEmptyText", err)
	}
	if p.Processed() != 0 {
		t.Errorf("processed = %d after failed input", p.Processed())
	}
}

func TestTwoPatientsGetDistinctEntities(t *testing.T) {
	p := newRulePipeline(t)
	ctx := context.Background()

	n1, err := p.ProcessText(ctx, "p1", "", "Patient has hypertension.")
	if err != nil {
		t.Fatal(err)
	}
	n2, err := p.ProcessText(ctx, "p2", "", "Patient has hypertension.")
	if err != nil {
		t.Fatal(err)
	}

	ids := make(map[string]bool)
	for _, e := range append(n1.AllEntities(), n2.AllEntities()...) {
		if ids[e.ID] {
			t.Errorf("entity id %s shared across patients", e.ID)
		}
		ids[e.ID] = true
	}
	if p.Graph().NoteCount() != 2 {
		t.Errorf("notes = %d, want 2", p.Graph().NoteCount())
	}

	if _, err := p.Note("p1"); err != nil {
		t.Errorf("Note(p1): %v", err)
	}
	if _, err := p.Note("missing"); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("Note(missing) = %v, want ErrPatientNotFound", err)
	}
}

func TestProcessTextBuildsRelations(t *testing.T) {
	p := newRulePipeline(t)

	note, err := p.ProcessText(context.Background(), "p1", "",
		"Assessment: hypertension. Plan: start lisinopril for hypertension.")
	if err != nil {
		t.Fatal(err)
	}
	if len(note.Relations) == 0 {
		t.Fatal("expected at least one relation")
	}

	ids := make(map[string]bool)
	for _, e := range note.AllEntities() {
		ids[e.ID] = true
	}
	for _, r := range note.Relations {
		if !ids[r.SourceEntity] || !ids[r.TargetEntity] {
			t.Errorf("relation %s references entity outside the note", r.ID)
		}
		if r.SourceEntity == r.TargetEntity {
			t.Errorf("self relation %s", r.ID)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("use_llm: false\ndata_dir: /tmp/mimic\ncheckpoint_every: 5\nllm:\n  model: test-model\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.UseLLM {
		t.Error("use_llm should be false")
	}
	if cfg.DataDir != "/tmp/mimic" || cfg.CheckpointEvery != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LLM.Model != "test-model" {
		t.Errorf("llm model = %q", cfg.LLM.Model)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheckpointEvery = -1
	if _, err := NewPipeline(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}

func TestRunWithoutDataset(t *testing.T) {
	p := newRulePipeline(t)
	if _, err := p.Run(context.Background()); !errors.Is(err, ErrNoDataset) {
		t.Errorf("got %v, want ErrNoDataset", err)
	}
}
