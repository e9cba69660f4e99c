package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	"github.com/zhiruiluo/esi-triage-mvp/internal/evidence"
	"github.com/zhiruiluo/esi-triage-mvp/internal/extract"
)

const vitalsStage = 4

var numberRe = regexp.MustCompile(`\d+\.?\d*`)

// runVitals compares extracted vitals against age-banded normal ranges from
// the evidence store. Deterministic: no model call. Missing age or evidence
// yields unknown abnormality, never a false positive. The absolute critical
// thresholds apply regardless of the age-band comparison.
func (p *Pipeline) runVitals(cfg *config.SystemConfig, sig *extract.Signals) VitalsResult {
	result := VitalsResult{
		Age:           sig.Age,
		Vitals:        sig.Vitals,
		Abnormalities: map[string]*bool{},
		Critical:      sig.Vitals.Critical(),
	}

	var norms evidence.Document
	if sig.Age != nil {
		bundle := p.retriever.VitalNorms(cfg, vitalsStage, *sig.Age)
		if bundle.Enabled && len(bundle.Results) > 0 {
			norms = bundle.Results[0]
			result.EvidenceUsed = true
		}
	}

	if norms != nil {
		result.Abnormalities["hr"] = outOfRange(intVal(sig.Vitals.HR), norms.Str("hr_normal"))
		result.Abnormalities["rr"] = outOfRange(intVal(sig.Vitals.RR), norms.Str("rr_normal"))
		result.Abnormalities["sbp"] = outOfRange(intVal(sig.Vitals.SBP), norms.Str("sbp_normal"))
		result.Abnormalities["temp_f"] = outOfRange(sig.Vitals.TempF, norms.Str("temp_normal"))
	}

	if result.EvidenceUsed {
		result.Confidence = 0.9
	} else {
		result.Confidence = 0.5
		result.Reason = "no age-banded norms available"
	}
	return result
}

func intVal(p *int) *float64 {
	if p == nil {
		return nil
	}
	f := float64(*p)
	return &f
}

type valueRange struct {
	min *float64
	max *float64
}

// parseRange interprets corpus range strings such as "60-100 bpm", "<120
// mmHg" and "Up to 150/90 mmHg often acceptable".
func parseRange(s string) valueRange {
	var numbers []float64
	for _, m := range numberRe.FindAllString(s, -1) {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			numbers = append(numbers, f)
		}
	}

	switch {
	case strings.Contains(s, "<") && len(numbers) > 0:
		return valueRange{max: &numbers[0]}
	case strings.Contains(strings.ToLower(s), "up to") && len(numbers) > 0:
		return valueRange{max: &numbers[0]}
	case len(numbers) >= 2:
		return valueRange{min: &numbers[0], max: &numbers[1]}
	case len(numbers) == 1:
		return valueRange{min: &numbers[0], max: &numbers[0]}
	default:
		return valueRange{}
	}
}

// outOfRange returns nil when the value is absent (unknown, not abnormal).
func outOfRange(value *float64, rangeStr string) *bool {
	if value == nil {
		return nil
	}
	r := parseRange(rangeStr)
	out := false
	if r.min != nil && *value < *r.min {
		out = true
	}
	if r.max != nil && *value > *r.max {
		out = true
	}
	return &out
}
