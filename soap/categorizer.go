// Package soap assigns extracted entities to the four sections of a SOAP
// clinical note. Categorization cascades: LLM output when available, then
// sentence-context scoring against per-category keyword patterns, then a
// default derived from the entity type.
package soap

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jafffy/medical-kg/llm"
	"github.com/jafffy/medical-kg/preprocess"
	"github.com/jafffy/medical-kg/schema"
)

// categoryPatterns are the keyword recognizers used for sentence-context
// scoring, per SOAP category.
var categoryPatterns = map[schema.SOAPCategory][]*regexp.Regexp{
	schema.Subjective: compilePatterns(
		`\b(?:complains? of|reports?|states?|describes?|denies|feels?|patient says?)\b`,
		`\b(?:history of|presents? with|chief complaint)\b`,
		`\b(?:pain|discomfort|nausea|dizziness|fatigue|weakness)\b`,
	),
	schema.Objective: compilePatterns(
		`\b(?:vital signs?|blood pressure|heart rate|temperature|respiratory rate)\b`,
		`\b(?:exam|examination|auscultation|palpation|inspection)\b`,
		`\b(?:lab|laboratory|glucose|creatinine|hemoglobin|wbc)\b`,
		`\b(?:x-ray|ct|mri|ultrasound|ekg|imaging)\b`,
	),
	schema.Assessment: compilePatterns(
		`\b(?:diagnos\w+|impression|assessment|consistent with|suggestive of)\b`,
		`\b(?:rule out|differential|likely|probable|suspected)\b`,
	),
	schema.Plan: compilePatterns(
		`\b(?:plan|start|begin|continue|discontinue|prescribe|administer)\b`,
		`\b(?:follow.?up|monitor|recheck|refer|consult|discharge)\b`,
		`\b(?:therapy|treatment|medication|surgery|procedure) (?:planned|scheduled|recommended)\b`,
	),
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// typeDefaults maps an entity type to the SOAP category it most often
// belongs to, used when neither the LLM nor sentence context decides.
var typeDefaults = map[schema.EntityType]schema.SOAPCategory{
	schema.Symptom:     schema.Subjective,
	schema.VitalSign:   schema.Objective,
	schema.LabValue:    schema.Objective,
	schema.Anatomy:     schema.Objective,
	schema.Demographic: schema.Objective,
	schema.Disease:     schema.Assessment,
	schema.Medication:  schema.Plan,
	schema.Treatment:   schema.Plan,
	schema.Procedure:   schema.Plan,
}

// Categorizer assigns SOAP categories to entities in place.
type Categorizer struct {
	client *llm.MedicalClient
}

// New creates a Categorizer. The client may be nil; categorization then
// uses sentence context and type defaults only.
func New(client *llm.MedicalClient) *Categorizer {
	return &Categorizer{client: client}
}

// Categorize rewrites each entity's SOAPCategory. The LLM assignment wins
// when present; otherwise the entity's surrounding sentences are scored
// against the category patterns; otherwise the type default applies.
func (c *Categorizer) Categorize(ctx context.Context, text string, entities []*schema.MedicalEntity, useLLM bool) {
	if len(entities) == 0 {
		return
	}

	llmAssign := c.llmAssignments(ctx, text, entities, useLLM)
	sentences := preprocess.SplitSentences(strings.ToLower(text))

	for _, ent := range entities {
		key := strings.ToLower(strings.TrimSpace(ent.Text))
		if cat, ok := llmAssign[key]; ok {
			ent.SOAPCategory = cat
			continue
		}
		if cat, ok := contextCategory(sentences, key); ok {
			ent.SOAPCategory = cat
			continue
		}
		ent.SOAPCategory = typeDefault(ent.Type)
	}
}

// Structure groups already-categorized entities and their relations into a
// SOAPNote for the given patient.
func Structure(patientID, admissionID string, entities []*schema.MedicalEntity, relations []*schema.MedicalRelation) *schema.SOAPNote {
	note := &schema.SOAPNote{
		PatientID:   patientID,
		AdmissionID: admissionID,
		Relations:   relations,
	}
	for _, ent := range entities {
		switch ent.SOAPCategory {
		case schema.Subjective:
			note.Subjective = append(note.Subjective, ent)
		case schema.Assessment:
			note.Assessment = append(note.Assessment, ent)
		case schema.Plan:
			note.Plan = append(note.Plan, ent)
		default:
			note.Objective = append(note.Objective, ent)
		}
	}
	return note
}

// llmAssignments asks the model for a categorization and returns it keyed
// by lowercased entity text. Returns an empty map on any failure.
func (c *Categorizer) llmAssignments(ctx context.Context, text string, entities []*schema.MedicalEntity, useLLM bool) map[string]schema.SOAPCategory {
	out := make(map[string]schema.SOAPCategory)
	if !useLLM || c.client == nil || !c.client.Available() {
		return out
	}

	cands := make([]llm.EntityCandidate, len(entities))
	for i, e := range entities {
		cands[i] = llm.EntityCandidate{Text: e.Text, Type: string(e.Type), Confidence: e.Confidence}
	}

	result, err := c.client.CategorizeSOAP(ctx, text, cands)
	if err != nil {
		slog.Warn("soap: LLM categorization failed, falling back to context rules", "error", err)
		return out
	}
	for name, list := range result {
		cat, ok := schema.ParseSOAPCategory(name)
		if !ok {
			continue
		}
		for _, e := range list {
			out[strings.ToLower(strings.TrimSpace(e.Text))] = cat
		}
	}
	return out
}

// contextCategory scores every sentence mentioning the entity against each
// category's patterns, sums the scores per category across sentences, and
// returns the best-scoring category. Scores are normalized by pattern count
// and sentence length so long sentences and pattern-heavy categories do not
// dominate.
func contextCategory(sentences []string, entityKey string) (schema.SOAPCategory, bool) {
	if entityKey == "" {
		return schema.Objective, false
	}

	totals := make(map[schema.SOAPCategory]float64, 4)
	for _, sent := range sentences {
		if !strings.Contains(sent, entityKey) {
			continue
		}
		for cat, patterns := range categoryPatterns {
			totals[cat] += scoreText(sent, patterns)
		}
	}

	var best schema.SOAPCategory
	var bestScore float64
	for _, cat := range schema.SOAPCategories() {
		if totals[cat] > bestScore {
			bestScore = totals[cat]
			best = cat
		}
	}
	return best, bestScore > 0
}

// scoreText counts pattern matches in text, normalized by the number of
// patterns and the text length in hundreds of characters.
func scoreText(text string, patterns []*regexp.Regexp) float64 {
	if len(patterns) == 0 || len(text) == 0 {
		return 0
	}
	matches := 0
	for _, re := range patterns {
		matches += len(re.FindAllStringIndex(text, -1))
	}
	if matches == 0 {
		return 0
	}
	norm := float64(len(text)) / 100
	if norm < 1 {
		norm = 1
	}
	return float64(matches) / (float64(len(patterns)) * norm)
}

func typeDefault(t schema.EntityType) schema.SOAPCategory {
	if cat, ok := typeDefaults[t]; ok {
		return cat
	}
	return schema.Objective
}
