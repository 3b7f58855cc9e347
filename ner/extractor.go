// Package ner extracts medical entities from clinical text. Extraction
// layers three sources: structured fields from preprocessing, LLM output
// when credentials are configured, and rule-based pattern matching as the
// always-available floor.
package ner

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jafffy/medical-kg/llm"
	"github.com/jafffy/medical-kg/preprocess"
	"github.com/jafffy/medical-kg/schema"
)

// Extractor turns clinical text into schema.MedicalEntity values.
type Extractor struct {
	client *llm.MedicalClient
}

// New creates an Extractor. The client may be nil; extraction then runs
// rule-based only.
func New(client *llm.MedicalClient) *Extractor {
	return &Extractor{client: client}
}

// candidate is an internal merge unit carrying provenance.
type candidate struct {
	text       string
	entityType schema.EntityType
	confidence float64
	method     string
	metadata   map[string]string
}

// Extract runs the full extraction pipeline over one clinical text.
// Entities are deduplicated case-insensitively by surface text, keeping the
// highest-confidence occurrence. Every entity starts in the objective
// category; SOAP categorization reassigns it later.
func (e *Extractor) Extract(ctx context.Context, text string, useLLM bool) ([]*schema.MedicalEntity, error) {
	doc := preprocess.Process(text)
	if doc.CleanedText == "" {
		return nil, nil
	}

	var cands []candidate
	cands = append(cands, structuredCandidates(doc)...)

	if useLLM && e.client != nil && e.client.Available() {
		llmCands, err := e.client.ExtractEntities(ctx, doc.OriginalText)
		if err != nil {
			slog.Warn("ner: LLM extraction failed, continuing with rules", "error", err)
		}
		for _, c := range llmCands {
			cands = append(cands, candidate{
				text:       c.Text,
				entityType: schema.EntityTypeOf(c.Type),
				confidence: c.Confidence,
				method:     "llm",
			})
		}
	}

	cands = append(cands, patternCandidates(doc.CleanedText)...)

	return convert(merge(cands)), nil
}

// structuredCandidates lifts the vitals and medications found during
// preprocessing into entity candidates.
func structuredCandidates(doc *preprocess.Document) []candidate {
	var out []candidate
	for _, v := range doc.VitalSigns {
		out = append(out, candidate{
			text:       v.Text,
			entityType: schema.VitalSign,
			confidence: structuredVitalConfidence,
			method:     "structured",
			metadata:   map[string]string{"vital_type": v.Type, "value": v.Value},
		})
	}
	for _, m := range doc.Medications {
		out = append(out, candidate{
			text:       m.Name,
			entityType: schema.Medication,
			confidence: structuredMedConfidence,
			method:     "structured",
			metadata:   map[string]string{"dose": m.Dose, "unit": m.Unit},
		})
	}
	return out
}

// patternCandidates runs every rule pattern over the cleaned text, in the
// canonical entity-type order so candidate encounter order is stable.
func patternCandidates(text string) []candidate {
	var out []candidate
	for _, entityType := range schema.EntityTypes() {
		for _, re := range entityPatterns[entityType] {
			for _, match := range re.FindAllString(text, -1) {
				out = append(out, candidate{
					text:       match,
					entityType: entityType,
					confidence: ruleConfidence,
					method:     "rule_based",
				})
			}
		}
	}
	return out
}

// merge deduplicates candidates by lowercased trimmed text, keeping the
// occurrence with the highest confidence. Ties keep the first-seen
// candidate, and output preserves encounter order.
func merge(cands []candidate) []candidate {
	pos := make(map[string]int)
	var out []candidate
	for _, c := range cands {
		key := strings.ToLower(strings.TrimSpace(c.text))
		if key == "" {
			continue
		}
		if i, ok := pos[key]; ok {
			if c.confidence > out[i].confidence {
				out[i] = c
			}
			continue
		}
		pos[key] = len(out)
		out = append(out, c)
	}
	return out
}

func convert(cands []candidate) []*schema.MedicalEntity {
	out := make([]*schema.MedicalEntity, 0, len(cands))
	for _, c := range cands {
		meta := map[string]string{"extraction_method": c.method}
		for k, v := range c.metadata {
			meta[k] = v
		}
		out = append(out, &schema.MedicalEntity{
			ID:           schema.NewID(),
			Text:         strings.TrimSpace(c.text),
			Type:         c.entityType,
			SOAPCategory: schema.Objective,
			Confidence:   c.confidence,
			Metadata:     meta,
		})
	}
	return out
}
