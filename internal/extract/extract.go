package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	ageRe  = regexp.MustCompile(`(\d{1,3})\s*-?\s*(?:years?|yo|y/o|yr)\b`)
	hrRe   = regexp.MustCompile(`\bhr\s*(\d{2,3})\b`)
	rrRe   = regexp.MustCompile(`\brr\s*(\d{1,2})\b`)
	bpRe   = regexp.MustCompile(`\bbp\s*(\d{2,3})\s*/\s*(\d{2,3})\b`)
	tempRe = regexp.MustCompile(`\b(?:t|temp|temperature)\s*([0-9]{2,3}(?:\.[0-9])?)`)
	spo2Re = regexp.MustCompile(`\b(?:spo2|o2\s*sat)\s*(\d{2,3})%`)
)

// keywordVocabulary is the fixed tag set recognised by extraction.
var keywordVocabulary = []string{
	"chest pain",
	"shortness of breath",
	"sob",
	"dyspnea",
	"fever",
	"sepsis",
	"infection",
	"laceration",
	"wound",
	"fracture",
	"wrist",
	"arm",
	"abdominal pain",
	"trauma",
}

// Vitals holds independently optional numeric vital signs. A nil field
// means the value was not present in the text.
type Vitals struct {
	HR    *int     `json:"hr,omitempty"`
	RR    *int     `json:"rr,omitempty"`
	SBP   *int     `json:"sbp,omitempty"`
	DBP   *int     `json:"dbp,omitempty"`
	TempF *float64 `json:"temp_f,omitempty"`
	SpO2  *int     `json:"spo2,omitempty"`
}

// Signals is the immutable structured snapshot derived once per request and
// consumed read-only by every downstream stage.
type Signals struct {
	Age            *int     `json:"age,omitempty"`
	Vitals         Vitals   `json:"vitals"`
	ChiefComplaint string   `json:"chief_complaint"`
	Keywords       []string `json:"keywords"`
	RawText        string   `json:"-"`
}

// Extract derives structured signals from the (sanitized) case text.
// Pure function: no external calls, deterministic for identical input.
func Extract(caseText string) Signals {
	return Signals{
		Age:            extractAge(caseText),
		Vitals:         extractVitals(caseText),
		ChiefComplaint: extractChiefComplaint(caseText),
		Keywords:       extractKeywords(caseText),
		RawText:        caseText,
	}
}

func extractAge(text string) *int {
	m := ageRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return nil
	}
	age, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &age
}

func extractVitals(text string) Vitals {
	lower := strings.ToLower(text)
	var v Vitals

	if m := hrRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			v.HR = &n
		}
	}
	if m := rrRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			v.RR = &n
		}
	}
	if m := bpRe.FindStringSubmatch(lower); m != nil {
		sbp, err1 := strconv.Atoi(m[1])
		dbp, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			v.SBP = &sbp
			v.DBP = &dbp
		}
	}
	if m := tempRe.FindStringSubmatch(lower); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			v.TempF = &f
		}
	}
	if m := spo2Re.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			v.SpO2 = &n
		}
	}

	return v
}

// extractChiefComplaint resolves the first-matching keyword family against
// a fixed priority order.
func extractChiefComplaint(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "chest pain") || strings.Contains(lower, "chest pressure"):
		return "Chest Pain"
	case strings.Contains(lower, "shortness of breath") || strings.Contains(lower, "sob") || strings.Contains(lower, "dyspnea"):
		return "Shortness of Breath"
	case strings.Contains(lower, "altered mental") || strings.Contains(lower, "ams") || strings.Contains(lower, "confus"):
		return "Altered Mental Status"
	case strings.Contains(lower, "abdominal pain"):
		return "Abdominal Pain"
	case strings.Contains(lower, "fever"):
		return "Fever"
	default:
		return "General"
	}
}

// extractKeywords tests the fixed vocabulary against the text, keeping
// first-occurrence order and suppressing duplicates.
func extractKeywords(text string) []string {
	lower := strings.ToLower(text)

	type hit struct {
		term string
		pos  int
	}
	var hits []hit
	for _, term := range keywordVocabulary {
		if pos := strings.Index(lower, term); pos >= 0 {
			hits = append(hits, hit{term: term, pos: pos})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	keywords := make([]string, 0, len(hits))
	for _, h := range hits {
		keywords = append(keywords, h.term)
	}
	return keywords
}
