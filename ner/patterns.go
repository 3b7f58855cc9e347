package ner

import (
	"regexp"

	"github.com/jafffy/medical-kg/schema"
)

// ruleConfidence is the confidence assigned to pattern-matched entities.
const ruleConfidence = 0.7

// Confidence for entities derived from structured preprocessing fields.
// Labeled vital readings are near-certain; dose-pattern medication matches
// slightly less so.
const (
	structuredVitalConfidence = 0.9
	structuredMedConfidence   = 0.8
)

// entityPatterns holds the rule-based recognizers per entity type. All
// patterns are case-insensitive and word-bounded.
var entityPatterns = map[schema.EntityType][]*regexp.Regexp{
	schema.Disease: compilePatterns(
		`\b(?:diabetes|hypertension|pneumonia|sepsis|copd|asthma|cancer|stroke|myocardial infarction|heart failure|kidney disease|liver disease|anemia|infection|fracture|depression|anxiety)\b`,
		`\b\w+itis\b`,
		`\b\w+osis\b`,
		`\b\w+emia\b`,
	),
	schema.Symptom: compilePatterns(
		`\b(?:chest pain|shortness of breath|nausea|vomiting|dizziness|fatigue|headache|fever|chills|cough|weakness|palpitations|syncope|dyspnea|malaise|sweating|confusion)\b`,
		`\b(?:abdominal|back|joint|muscle) pain\b`,
		`\bpain\b`,
	),
	schema.Medication: compilePatterns(
		`\b(?:aspirin|metformin|lisinopril|atorvastatin|insulin|warfarin|heparin|furosemide|metoprolol|amlodipine|omeprazole|prednisone|albuterol|morphine|acetaminophen|ibuprofen|vancomycin|ceftriaxone)\b`,
		`\b\w+cillin\b`,
		`\b\w+mycin\b`,
		`\b\w+pril\b`,
		`\b\w+olol\b`,
		`\b\w+statin\b`,
	),
	schema.Procedure: compilePatterns(
		`\b(?:surgery|biopsy|catheterization|intubation|dialysis|transfusion|endoscopy|colonoscopy|angiography|echocardiogram|x-ray|ct scan|mri|ultrasound|ekg|ecg)\b`,
		`\b\w+ectomy\b`,
		`\b\w+oscopy\b`,
		`\b\w+plasty\b`,
	),
	schema.Anatomy: compilePatterns(
		`\b(?:heart|lung|liver|kidney|brain|stomach|intestine|chest|abdomen|head|neck|arm|leg|spine|pelvis|artery|vein|aorta|ventricle|atrium)\b`,
	),
	schema.LabValue: compilePatterns(
		`\b(?:glucose|creatinine|hemoglobin|hematocrit|sodium|potassium|chloride|bun|troponin|lactate|bilirubin|albumin|wbc|platelet)\s*:?\s*\d+(?:\.\d+)?\b`,
		`\b(?:glucose|creatinine|hemoglobin|troponin|lactate)\b`,
	),
	schema.VitalSign: compilePatterns(
		`\b(?:blood pressure|heart rate|respiratory rate|temperature|oxygen saturation|pulse)\b`,
		`\b(?:bp|hr|rr|spo2)\s*:?\s*\d+`,
	),
	schema.Treatment: compilePatterns(
		`\b(?:oxygen therapy|physical therapy|chemotherapy|radiation therapy|antibiotics|iv fluids|mechanical ventilation|wound care|monitoring|observation)\b`,
		`\b\w+ therapy\b`,
	),
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}
