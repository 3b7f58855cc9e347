package llm

import (
	"context"
	"strings"
	"testing"
)

// fakeProvider returns canned content and records the last request.
type fakeProvider struct {
	content string
	lastReq ChatRequest
}

func (f *fakeProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	f.lastReq = req
	return &ChatResponse{Content: f.content}, nil
}

func TestExtractEntitiesParsesResponse(t *testing.T) {
	fake := &fakeProvider{content: `[
		{"text": "chest pain", "type": "SYMPTOM", "confidence": 0.9},
		{"text": "aspirin", "type": "MEDICATION", "confidence": 0.85}
	]`}
	client := NewMedicalClientWithProvider(fake)

	got, err := client.ExtractEntities(context.Background(), "Patient with chest pain, given aspirin.")
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Text != "chest pain" || got[0].Type != "SYMPTOM" {
		t.Errorf("first candidate = %+v", got[0])
	}
	if !strings.Contains(fake.lastReq.Messages[0].Content, "chest pain") {
		t.Error("prompt does not include the clinical text")
	}
}

func TestExtractEntitiesNoKey(t *testing.T) {
	client := NewMedicalClient(NewOpenRouter(Config{}))
	if client.Available() {
		t.Fatal("client without key should not be available")
	}
	got, err := client.ExtractEntities(context.Background(), "some text")
	if err != nil {
		t.Fatalf("keyless extraction should not error: %v", err)
	}
	if got != nil {
		t.Errorf("keyless extraction should return nil, got %v", got)
	}
}

func TestCategorizeSOAPAlwaysHasFourKeys(t *testing.T) {
	fake := &fakeProvider{content: `{"subjective": [{"text": "chest pain"}]}`}
	client := NewMedicalClientWithProvider(fake)

	got, err := client.CategorizeSOAP(context.Background(), "text", []EntityCandidate{{Text: "chest pain"}})
	if err != nil {
		t.Fatalf("CategorizeSOAP: %v", err)
	}
	for _, key := range []string{"subjective", "objective", "assessment", "plan"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing category %q", key)
		}
	}
	if len(got["subjective"]) != 1 {
		t.Errorf("subjective = %v, want one entry", got["subjective"])
	}
}

func TestParseRelationResponse(t *testing.T) {
	raw := "```json\n[{\"source\": \"aspirin\", \"target\": \"chest pain\", \"relation\": \"TREATS\", \"confidence\": 0.8}]\n```"
	got, err := ParseRelationResponse(raw)
	if err != nil {
		t.Fatalf("ParseRelationResponse: %v", err)
	}
	if len(got) != 1 || got[0].Relation != "TREATS" {
		t.Errorf("got %+v", got)
	}
}

func TestTruncateWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 3000)
	got := truncate(long)
	if len(got) > maxPromptChars {
		t.Errorf("truncated length %d exceeds limit %d", len(got), maxPromptChars)
	}
	if strings.HasSuffix(got, " wor") {
		t.Error("truncation split a word")
	}
}
