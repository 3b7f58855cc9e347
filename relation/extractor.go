// Package relation extracts typed relationships between medical entities.
// Four strategies contribute candidates: LLM extraction, textual pattern
// templates over entity pairs, SOAP co-occurrence rules, and medical domain
// rules keyed on entity-type pairs. Candidates are deduplicated on the
// (source, target, type) triplet.
package relation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/jafffy/medical-kg/llm"
	"github.com/jafffy/medical-kg/schema"
)

const (
	patternConfidence      = 0.7
	cooccurrenceConfidence = 0.5
	domainRuleConfidence   = 0.6

	// Caps keep the pairwise pattern stage bounded on dense notes.
	maxEntities        = 100
	maxPairs           = 1000
	maxPatternsPerType = 5
)

// relationTemplates are regex templates per relation type. Each template
// contains two %s slots filled with the quoted entity texts; both orderings
// of a pair are tried.
var relationTemplates = map[schema.RelationType][]string{
	schema.Treats: {
		`%s\s+(?:treats?|for|to treat)\s+%s`,
		`%s\s+(?:prescribed|given|administered)\s+(?:for|to treat)\s+%s`,
		`(?:start|begin|continue)\s+%s\s+for\s+%s`,
	},
	schema.Causes: {
		`%s\s+(?:causes?|caused by|leading to|resulting in)\s+%s`,
		`%s\s+(?:secondary to|due to)\s+%s`,
	},
	schema.Indicates: {
		`%s\s+(?:indicates?|suggests?|consistent with)\s+%s`,
		`%s\s+(?:elevated|abnormal).*%s`,
	},
	schema.MeasuredBy: {
		`%s\s+(?:measured by|assessed with|evaluated by)\s+%s`,
	},
	schema.LocatedIn: {
		`%s\s+(?:in|of|at)\s+(?:the\s+)?%s`,
	},
	schema.HasSymptom: {
		`%s\s+(?:presents? with|complains? of|reports?)\s+%s`,
	},
}

// cooccurrenceRules assign a relation to entity pairs based purely on their
// SOAP categories.
var cooccurrenceRules = []struct {
	source, target schema.SOAPCategory
	relation       schema.RelationType
}{
	{schema.Subjective, schema.Assessment, schema.Indicates},
	{schema.Objective, schema.Assessment, schema.Indicates},
	{schema.Assessment, schema.Plan, schema.Treats},
	{schema.Plan, schema.Assessment, schema.Treats},
}

// domainRules assign a relation to entity pairs based on their types.
var domainRules = []struct {
	source, target schema.EntityType
	relation       schema.RelationType
}{
	{schema.Medication, schema.Disease, schema.Treats},
	{schema.Procedure, schema.Disease, schema.Treats},
	{schema.Disease, schema.Symptom, schema.Causes},
	{schema.LabValue, schema.Disease, schema.Indicates},
	{schema.VitalSign, schema.Disease, schema.Indicates},
	{schema.Procedure, schema.Anatomy, schema.LocatedIn},
}

// Extractor produces relations between already-extracted entities.
type Extractor struct {
	client *llm.MedicalClient
}

// New creates an Extractor. The client may be nil; extraction then uses
// rules only.
func New(client *llm.MedicalClient) *Extractor {
	return &Extractor{client: client}
}

// Extract runs all strategies over the text and entity set. Relations whose
// endpoints cannot be resolved to an entity id are dropped, as are
// self-relations. The (source, target, type) triplet is unique in the
// output; among duplicates the highest-confidence candidate wins, ties
// keeping the earlier strategy's result.
func (e *Extractor) Extract(ctx context.Context, text string, entities []*schema.MedicalEntity, useLLM bool) []*schema.MedicalRelation {
	if len(entities) < 2 {
		return nil
	}
	if len(entities) > maxEntities {
		entities = topByConfidence(entities, maxEntities)
		slog.Warn("relation: entity set truncated", "cap", maxEntities)
	}

	byText := indexByText(entities)
	seen := make(map[string]*schema.MedicalRelation)
	var out []*schema.MedicalRelation

	add := func(sourceID, targetID string, rel schema.RelationType, conf float64, method string, soapCtx schema.SOAPCategory) {
		if sourceID == "" || targetID == "" || sourceID == targetID {
			return
		}
		key := sourceID + "|" + targetID + "|" + string(rel)
		if prev, ok := seen[key]; ok {
			if conf > prev.Confidence {
				prev.Confidence = conf
				prev.SOAPContext = soapCtx
				prev.Metadata["extraction_method"] = method
			}
			return
		}
		r := &schema.MedicalRelation{
			ID:           schema.NewID(),
			SourceEntity: sourceID,
			TargetEntity: targetID,
			Type:         rel,
			Confidence:   conf,
			SOAPContext:  soapCtx,
			Metadata:     map[string]string{"extraction_method": method},
		}
		seen[key] = r
		out = append(out, r)
	}

	if useLLM && e.client != nil && e.client.Available() {
		e.llmRelations(ctx, text, entities, byText, add)
	}
	patternRelations(text, entities, add)
	cooccurrenceRelations(entities, add)
	domainRelations(entities, add)

	return out
}

func (e *Extractor) llmRelations(ctx context.Context, text string, entities []*schema.MedicalEntity, byText map[string]*schema.MedicalEntity, add addFunc) {
	cands := make([]llm.EntityCandidate, len(entities))
	for i, ent := range entities {
		cands[i] = llm.EntityCandidate{Text: ent.Text, Type: string(ent.Type), Confidence: ent.Confidence}
	}
	rels, err := e.client.ExtractRelationships(ctx, text, cands)
	if err != nil {
		slog.Warn("relation: LLM extraction failed, continuing with rules", "error", err)
		return
	}
	for _, r := range rels {
		source := byText[textKey(r.Source)]
		target := byText[textKey(r.Target)]
		if source == nil || target == nil {
			continue
		}
		add(source.ID, target.ID, schema.RelationTypeOf(r.Relation), r.Confidence, "llm", source.SOAPCategory)
	}
}

type addFunc func(sourceID, targetID string, rel schema.RelationType, conf float64, method string, soapCtx schema.SOAPCategory)

// patternRelations tries the relation templates against every entity pair,
// both orderings, with the entity texts substituted in.
func patternRelations(text string, entities []*schema.MedicalEntity, add addFunc) {
	lowered := strings.ToLower(text)
	pairs := 0
	for i, a := range entities {
		for j, b := range entities {
			if i == j {
				continue
			}
			if pairs++; pairs > maxPairs {
				slog.Warn("relation: pattern pair cap reached", "cap", maxPairs)
				return
			}
			for rel, templates := range relationTemplates {
				n := len(templates)
				if n > maxPatternsPerType {
					n = maxPatternsPerType
				}
				for _, tmpl := range templates[:n] {
					expr := fmt.Sprintf(tmpl,
						regexp.QuoteMeta(strings.ToLower(a.Text)),
						regexp.QuoteMeta(strings.ToLower(b.Text)))
					re, err := regexp.Compile(`(?i)` + expr)
					if err != nil {
						continue
					}
					if re.MatchString(lowered) {
						add(a.ID, b.ID, rel, patternConfidence, "pattern", a.SOAPCategory)
						break
					}
				}
			}
		}
	}
}

// cooccurrenceRelations links entities whose SOAP categories form a known
// clinical-flow pair, like objective findings supporting an assessment.
// The stage stops after maxPairs candidate pairs.
func cooccurrenceRelations(entities []*schema.MedicalEntity, add addFunc) {
	pairs := 0
	for _, rule := range cooccurrenceRules {
		for _, a := range entities {
			if a.SOAPCategory != rule.source {
				continue
			}
			for _, b := range entities {
				if b.SOAPCategory != rule.target || a.ID == b.ID {
					continue
				}
				if pairs++; pairs > maxPairs {
					slog.Warn("relation: co-occurrence pair cap reached", "cap", maxPairs)
					return
				}
				add(a.ID, b.ID, rule.relation, cooccurrenceConfidence, "cooccurrence", a.SOAPCategory)
			}
		}
	}
}

// domainRelations links entities whose types form a known medical pair,
// like a medication and the disease it treats. The stage stops after
// maxPairs candidate pairs.
func domainRelations(entities []*schema.MedicalEntity, add addFunc) {
	pairs := 0
	for _, rule := range domainRules {
		for _, a := range entities {
			if a.Type != rule.source {
				continue
			}
			for _, b := range entities {
				if b.Type != rule.target || a.ID == b.ID {
					continue
				}
				if pairs++; pairs > maxPairs {
					slog.Warn("relation: domain rule pair cap reached", "cap", maxPairs)
					return
				}
				add(a.ID, b.ID, rule.relation, domainRuleConfidence, "domain_rule", a.SOAPCategory)
			}
		}
	}
}

// topByConfidence returns the n highest-confidence entities, preserving
// the original order among those kept.
func topByConfidence(entities []*schema.MedicalEntity, n int) []*schema.MedicalEntity {
	ranked := make([]int, len(entities))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return entities[ranked[a]].Confidence > entities[ranked[b]].Confidence
	})

	keep := make(map[int]bool, n)
	for _, idx := range ranked[:n] {
		keep[idx] = true
	}
	out := make([]*schema.MedicalEntity, 0, n)
	for i, e := range entities {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}

func indexByText(entities []*schema.MedicalEntity) map[string]*schema.MedicalEntity {
	out := make(map[string]*schema.MedicalEntity, len(entities))
	for _, e := range entities {
		out[textKey(e.Text)] = e
	}
	return out
}

func textKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
