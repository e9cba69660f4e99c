package pipeline

import (
	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
)

const handbookStage = 6

// runHandbook re-checks the preliminary level against the canonical
// handbook criteria. Confidence reflects only whether supporting evidence
// was found, independent of upstream confidences.
func (p *Pipeline) runHandbook(cfg *config.SystemConfig, preliminaryLevel int) HandbookResult {
	bundle := p.retriever.ESICriteria(cfg, handbookStage, preliminaryLevel, "")

	result := HandbookResult{Level: preliminaryLevel}
	if bundle.Enabled && len(bundle.Results) > 0 {
		result.Confidence = 0.85
		result.EvidenceUsed = true
	} else {
		result.Confidence = 0.5
		result.Reason = "no handbook evidence available"
	}
	return result
}
