package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// EntityCandidate is a raw entity produced by an extraction source before
// conversion to a schema.MedicalEntity.
type EntityCandidate struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// RelationCandidate is a raw relationship produced by an extraction source.
type RelationCandidate struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
}

// SOAPResult groups entity candidates by SOAP category, keyed by the
// lowercase category name. All four keys are always present.
type SOAPResult map[string][]EntityCandidate

// emptySOAPResult returns a SOAPResult with all four categories present
// and empty.
func emptySOAPResult() SOAPResult {
	return SOAPResult{
		"subjective": nil,
		"objective":  nil,
		"assessment": nil,
		"plan":       nil,
	}
}

const entityExtractionPrompt = `Extract medical entities from the following clinical text.
Return ONLY a valid JSON array with this exact format:
[
  {"text": "entity_text", "type": "MEDICATION", "confidence": 0.9},
  {"text": "entity_text", "type": "DISEASE", "confidence": 0.8}
]

Valid types: DISEASE, SYMPTOM, MEDICATION, PROCEDURE, ANATOMY, LAB_VALUE, VITAL_SIGN, TREATMENT

Clinical text: %s

IMPORTANT:
- Return ONLY the JSON array, no explanation or markdown
- Use double quotes for all strings
- Include confidence between 0.0 and 1.0
- If no entities found, return []`

const soapCategorizationPrompt = `Categorize the following medical entities into SOAP categories based on the clinical text context.

Clinical text: %s

Entities: %s

Return ONLY a valid JSON object with this exact format:
{
    "subjective": [],
    "objective": [],
    "assessment": [],
    "plan": []
}

SOAP definitions:
- subjective: Patient symptoms, complaints, history, what patient says
- objective: Vital signs, lab results, physical exam findings, measurable data
- assessment: Diagnoses, impressions, evaluations, clinical judgment
- plan: Treatments, medications, procedures, follow-up actions

IMPORTANT:
- Return ONLY the JSON object, no explanation or markdown
- Use double quotes for all strings
- Each array should contain the relevant entities from the input
- All four keys must be present even if arrays are empty`

const relationExtractionPrompt = `Extract relationships between medical entities from the clinical text.

Clinical text: %s

Entities: %s

Return ONLY a valid JSON array with this exact format:
[
  {
    "source": "entity1_text",
    "target": "entity2_text",
    "relation": "TREATS",
    "confidence": 0.9
  }
]

Valid relations: TREATS, CAUSES, INDICATES, MEASURED_BY, LOCATED_IN, HAS_SYMPTOM, PRESCRIBED_FOR, DIAGNOSED_WITH

IMPORTANT:
- Return ONLY the JSON array, no explanation or markdown
- Use double quotes for all strings
- Only include relationships explicitly supported by the text
- Include confidence between 0.0 and 1.0
- If no relationships found, return []`

// maxPromptChars bounds the clinical text included in a prompt; longer
// inputs are truncated on a word boundary before the request is built.
const maxPromptChars = 10000

// MedicalClient wraps a chat Provider with the three medical NLP operations.
// Every operation returns an empty result immediately, without a network
// call, when the underlying client has no credentials: the rule-based
// pipeline is the fallback.
type MedicalClient struct {
	provider Provider
	hasKey   bool
}

// NewMedicalClient creates a medical NLP client over an OpenRouter client.
func NewMedicalClient(or *OpenRouter) *MedicalClient {
	return &MedicalClient{provider: or, hasKey: or.HasAPIKey()}
}

// NewMedicalClientWithProvider wraps an arbitrary Provider; used by tests
// and by callers with a non-OpenRouter backend.
func NewMedicalClientWithProvider(p Provider) *MedicalClient {
	return &MedicalClient{provider: p, hasKey: true}
}

// Available reports whether LLM-backed extraction can be attempted.
func (m *MedicalClient) Available() bool {
	return m.hasKey
}

// ExtractEntities extracts medical entity candidates from clinical text.
func (m *MedicalClient) ExtractEntities(ctx context.Context, text string) ([]EntityCandidate, error) {
	if !m.hasKey {
		slog.Info("llm: no API key configured, skipping entity extraction")
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(entityExtractionPrompt, truncate(text))
	resp, err := m.provider.Chat(ctx, ChatRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   1500,
	})
	if err != nil {
		return nil, fmt.Errorf("entity extraction chat: %w", err)
	}

	return ParseEntityResponse(resp.Content)
}

// CategorizeSOAP asks the model to place the given entities into SOAP
// categories. The result always has all four keys.
func (m *MedicalClient) CategorizeSOAP(ctx context.Context, text string, entities []EntityCandidate) (SOAPResult, error) {
	if !m.hasKey {
		slog.Info("llm: no API key configured, skipping SOAP categorization")
		return emptySOAPResult(), nil
	}
	if strings.TrimSpace(text) == "" {
		return emptySOAPResult(), nil
	}

	entitiesJSON, _ := json.Marshal(entities)
	prompt := fmt.Sprintf(soapCategorizationPrompt, truncate(text), string(entitiesJSON))
	resp, err := m.provider.Chat(ctx, ChatRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	if err != nil {
		return emptySOAPResult(), fmt.Errorf("soap categorization chat: %w", err)
	}

	return ParseSOAPResponse(resp.Content)
}

// ExtractRelationships extracts relationship candidates between the given
// entities from clinical text.
func (m *MedicalClient) ExtractRelationships(ctx context.Context, text string, entities []EntityCandidate) ([]RelationCandidate, error) {
	if !m.hasKey {
		slog.Info("llm: no API key configured, skipping relationship extraction")
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	entitiesJSON, _ := json.Marshal(entities)
	prompt := fmt.Sprintf(relationExtractionPrompt, truncate(text), string(entitiesJSON))
	resp, err := m.provider.Chat(ctx, ChatRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, fmt.Errorf("relationship extraction chat: %w", err)
	}

	return ParseRelationResponse(resp.Content)
}

// ParseEntityResponse recovers entity candidates from raw model output.
func ParseEntityResponse(raw string) ([]EntityCandidate, error) {
	jsonStr, err := extractJSONArray(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing entity response: %w", err)
	}
	var out []EntityCandidate
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return nil, fmt.Errorf("unmarshalling entity response: %w", err)
	}
	return out, nil
}

// ParseSOAPResponse recovers a SOAPResult from raw model output; categories
// missing from the output are present and empty in the result.
func ParseSOAPResponse(raw string) (SOAPResult, error) {
	jsonStr, err := extractJSONObject(raw)
	if err != nil {
		return emptySOAPResult(), fmt.Errorf("parsing soap response: %w", err)
	}
	var parsed map[string][]EntityCandidate
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return emptySOAPResult(), fmt.Errorf("unmarshalling soap response: %w", err)
	}

	out := emptySOAPResult()
	for k, v := range parsed {
		k = strings.ToLower(strings.TrimSpace(k))
		if _, ok := out[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// ParseRelationResponse recovers relationship candidates from raw model
// output.
func ParseRelationResponse(raw string) ([]RelationCandidate, error) {
	jsonStr, err := extractJSONArray(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing relationship response: %w", err)
	}
	var out []RelationCandidate
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return nil, fmt.Errorf("unmarshalling relationship response: %w", err)
	}
	return out, nil
}

// truncate cuts text to maxPromptChars on a word boundary.
func truncate(text string) string {
	if len(text) <= maxPromptChars {
		return text
	}
	cut := strings.LastIndex(text[:maxPromptChars], " ")
	if cut <= 0 {
		cut = maxPromptChars
	}
	return text[:cut]
}
