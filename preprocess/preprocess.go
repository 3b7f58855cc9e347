// Package preprocess normalizes raw clinical text and pulls out structured
// fields (vital signs, medication doses) before entity extraction runs.
package preprocess

import (
	"regexp"
	"strings"
)

// VitalSign is a structured vital-sign reading detected in text.
type VitalSign struct {
	Type  string // e.g. "heart_rate", "systolic_bp"
	Value string
	Text  string // the full matched span
}

// Medication is a structured medication mention with optional dose.
type Medication struct {
	Name     string
	Dose     string
	Unit     string
	FullText string
}

// Document is the output of preprocessing one clinical text.
type Document struct {
	OriginalText string
	CleanedText  string
	Sentences    []string
	VitalSigns   []VitalSign
	Medications  []Medication
}

// abbreviations maps common clinical shorthand to its expansion. Applied on
// lowercased text with word-boundary matching.
var abbreviations = []struct{ abbr, expansion string }{
	{"bp", "blood pressure"},
	{"hr", "heart rate"},
	{"rr", "respiratory rate"},
	{"temp", "temperature"},
	{"o2", "oxygen"},
	{"hx", "history"},
	{"dx", "diagnosis"},
	{"tx", "treatment"},
	{"rx", "prescription"},
	{"pt", "patient"},
	{"yo", "year old"},
	{"c/o", "complains of"},
	{"s/p", "status post"},
	{"h/o", "history of"},
	{"r/o", "rule out"},
	{"sob", "shortness of breath"},
	{"cp", "chest pain"},
	{"n/v", "nausea and vomiting"},
	{"abd", "abdominal"},
	// "w/o" must precede "w/" so the shorter form cannot clobber it.
	{"w/o", "without"},
	{"w/", "with"},
}

var abbrevPatterns = compileAbbreviations()

func compileAbbreviations() []struct {
	re        *regexp.Regexp
	expansion string
} {
	out := make([]struct {
		re        *regexp.Regexp
		expansion string
	}, len(abbreviations))
	for i, a := range abbreviations {
		out[i].re = regexp.MustCompile(`\b` + regexp.QuoteMeta(a.abbr) + `\b`)
		out[i].expansion = a.expansion
	}
	return out
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Strip characters that carry no clinical meaning while keeping
	// measurement and list punctuation.
	junkRe = regexp.MustCompile(`[^\w\s\-\./,;:()\[\]%]`)

	sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
)

// vitalPatterns detect labeled vital-sign readings. Blood pressure expands
// into separate systolic and diastolic entries.
var vitalPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"blood_pressure", regexp.MustCompile(`(?i)(?:bp|blood pressure)\s*:?\s*(\d{2,3})/(\d{2,3})`)},
	{"heart_rate", regexp.MustCompile(`(?i)(?:hr|heart rate|pulse)\s*:?\s*(\d{2,3})\s*(?:bpm)?`)},
	{"respiratory_rate", regexp.MustCompile(`(?i)(?:rr|resp rate|respiratory rate)\s*:?\s*(\d{1,2})`)},
	{"temperature", regexp.MustCompile(`(?i)(?:temp|temperature)\s*:?\s*(\d{2,3}(?:\.\d)?)\s*(?:f|c|celsius|fahrenheit)?`)},
	{"oxygen_saturation", regexp.MustCompile(`(?i)(?:o2 sat|oxygen saturation|spo2)\s*:?\s*(\d{2,3})%?`)},
	{"weight", regexp.MustCompile(`(?i)(?:weight|wt)\s*:?\s*(\d{2,3}(?:\.\d)?)\s*(?:kg|lbs|pounds)?`)},
}

var medDoseRe = regexp.MustCompile(`(?i)\b([a-z]\w+)\s+(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml|units?)\b`)

// CleanText collapses whitespace, strips junk characters, and drops
// single-character noise tokens.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	text = junkRe.ReplaceAllString(text, "")

	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if len(w) > 1 || (w >= "0" && w <= "9") {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// ExpandAbbreviations rewrites common clinical shorthand on a lowercased
// copy of the text.
func ExpandAbbreviations(text string) string {
	text = strings.ToLower(text)
	for _, a := range abbrevPatterns {
		text = a.re.ReplaceAllString(text, a.expansion)
	}
	return text
}

// ExtractVitalSigns finds vital-sign readings in the original text.
func ExtractVitalSigns(text string) []VitalSign {
	var vitals []VitalSign
	for _, vp := range vitalPatterns {
		for _, m := range vp.re.FindAllStringSubmatch(text, -1) {
			if vp.kind == "blood_pressure" {
				vitals = append(vitals,
					VitalSign{Type: "systolic_bp", Value: m[1], Text: m[0]},
					VitalSign{Type: "diastolic_bp", Value: m[2], Text: m[0]})
				continue
			}
			vitals = append(vitals, VitalSign{Type: vp.kind, Value: m[1], Text: m[0]})
		}
	}
	return vitals
}

// ExtractMedications finds medication-with-dose mentions in the original
// text.
func ExtractMedications(text string) []Medication {
	var meds []Medication
	for _, m := range medDoseRe.FindAllStringSubmatch(text, -1) {
		meds = append(meds, Medication{
			Name:     m[1],
			Dose:     m[2],
			Unit:     m[3],
			FullText: m[0],
		})
	}
	return meds
}

// SplitSentences partitions text on sentence-ending punctuation.
func SplitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Process runs the full preprocessing pipeline. Structured extraction runs
// on the original text, where dose and vital patterns match more reliably;
// cleanup and abbreviation expansion feed downstream pattern matching.
func Process(text string) *Document {
	if strings.TrimSpace(text) == "" {
		return &Document{OriginalText: text}
	}

	cleaned := ExpandAbbreviations(CleanText(text))

	return &Document{
		OriginalText: text,
		CleanedText:  cleaned,
		Sentences:    SplitSentences(cleaned),
		VitalSigns:   ExtractVitalSigns(text),
		Medications:  ExtractMedications(text),
	}
}
