// Package router selects a model tier per stage from extracted risk signals
// and evolving pipeline context. Deterministic rule table, first match wins.
package router

import (
	"strings"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	"github.com/zhiruiluo/esi-triage-mvp/internal/extract"
)

// highRiskTerms is the fixed free-text vocabulary that escalates model tier.
var highRiskTerms = []string{
	"chest pain",
	"chest pressure",
	"shortness of breath",
	"sob",
	"dyspnea",
	"stroke",
	"cva",
	"seizure",
	"unresponsive",
	"altered mental",
	"ams",
	"confus",
	"anaphylaxis",
	"severe bleeding",
	"hemorrhage",
	"trauma",
	"shock",
	"hypotension",
	"hypoxia",
}

// FinalContext carries the accumulated pipeline signals the final-decision
// routing rules read.
type FinalContext struct {
	PreliminaryLevel   int
	VitalsCritical     bool
	HasRedFlags        bool
	RedFlagConfidence  float64
	HandbookConfidence float64
	ResourceCount      int
}

// Router chooses a model identifier per stage. An explicit per-request
// override takes precedence over every rule and applies to all stages.
type Router struct {
	cfg config.RouterConfig
	// fallback is the configured single-model identifier used when routing
	// is disabled globally.
	fallback string
}

func New(cfg config.RouterConfig, fallback string) *Router {
	return &Router{cfg: cfg, fallback: fallback}
}

// DefaultModel resolves the model for stages with no dedicated rules.
func (r *Router) DefaultModel(override string) string {
	if m, ok := normalizeOverride(override); ok {
		return m
	}
	if !r.cfg.Enabled {
		return r.fallback
	}
	return r.cfg.DefaultModel
}

// RedFlagModel routes the red-flag detection stage: high-risk terms or a
// critical vital escalate to the high-capability tier.
func (r *Router) RedFlagModel(override, caseText string, sig *extract.Signals) string {
	if m, ok := normalizeOverride(override); ok {
		return m
	}
	if !r.cfg.Enabled {
		return r.fallback
	}
	if containsHighRiskTerms(caseText, sig) || (sig != nil && sig.Vitals.Critical()) {
		return r.cfg.HighModel
	}
	return r.cfg.DefaultModel
}

// FinalModel routes the final-decision stage through the ordered cascade.
func (r *Router) FinalModel(override, caseText string, sig *extract.Signals, fc FinalContext) string {
	if m, ok := normalizeOverride(override); ok {
		return m
	}
	if !r.cfg.Enabled {
		return r.fallback
	}

	if fc.PreliminaryLevel <= 2 || fc.VitalsCritical || fc.HasRedFlags {
		return r.cfg.HighModel
	}
	if fc.RedFlagConfidence < r.cfg.LowConfidenceThreshold {
		return r.cfg.MidModel
	}
	if fc.HandbookConfidence < r.cfg.LowConfidenceThreshold {
		return r.cfg.MidModel
	}
	if fc.ResourceCount >= r.cfg.ResourceCountForMid && fc.PreliminaryLevel >= 3 {
		return r.cfg.MidModel
	}
	if containsHighRiskTerms(caseText, sig) {
		return r.cfg.MidModel
	}
	return r.cfg.DefaultModel
}

// normalizeOverride reports whether the caller supplied an explicit model.
// "auto" and "" mean routed selection.
func normalizeOverride(override string) (string, bool) {
	override = strings.TrimSpace(override)
	if override == "" || strings.EqualFold(override, "auto") {
		return "", false
	}
	return override, true
}

func containsHighRiskTerms(text string, sig *extract.Signals) bool {
	lower := strings.ToLower(text)
	for _, term := range highRiskTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	if sig == nil {
		return false
	}
	joined := strings.ToLower(strings.Join(sig.Keywords, " ") + " " + sig.ChiefComplaint)
	for _, term := range highRiskTerms {
		if strings.Contains(joined, term) {
			return true
		}
	}
	return false
}
