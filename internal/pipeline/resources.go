package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	"github.com/zhiruiluo/esi-triage-mvp/internal/extract"
	"github.com/zhiruiluo/esi-triage-mvp/internal/llm"
	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

const resourceStage = 5

// labTests are the resources with lab-indication evidence entries.
var labTests = map[string]bool{
	"Troponin":      true,
	"CBC":           true,
	"Lactate":       true,
	"D-dimer":       true,
	"Procalcitonin": true,
}

const resourceSystemPrompt = `You are an ESI (Emergency Severity Index) triage expert.
Given a patient case, list the ED resources (labs, imaging, procedures) the
patient will likely need. Return JSON:
{
  "resources": ["resource1", "resource2"],
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation"
}
`

var resourceReplySchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"resources": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "number"},
		"reasoning": {"type": "string"}
	},
	"required": ["resources"]
}`)

// inferResources maps keywords to anticipated ED resources, deduplicated in
// first-mention order.
func inferResources(text string) []string {
	lower := strings.ToLower(text)
	var resources []string

	if strings.Contains(lower, "chest pain") || strings.Contains(lower, "chest") {
		resources = append(resources, "ECG", "Troponin", "CXR")
	}
	if strings.Contains(lower, "shortness of breath") || strings.Contains(lower, "sob") || strings.Contains(lower, "dyspnea") {
		resources = append(resources, "CXR", "CBC")
	}
	if strings.Contains(lower, "fever") || strings.Contains(lower, "sepsis") || strings.Contains(lower, "infection") {
		resources = append(resources, "CBC", "Lactate")
	}
	if strings.Contains(lower, "laceration") || strings.Contains(lower, "wound") {
		resources = append(resources, "Sutures")
	}
	if strings.Contains(lower, "fracture") || strings.Contains(lower, "wrist") || strings.Contains(lower, "arm") {
		resources = append(resources, "X-ray")
	}
	if strings.Contains(lower, "abdominal pain") {
		resources = append(resources, "CBC", "CMP", "CT Abdomen")
	}

	seen := make(map[string]bool, len(resources))
	deduped := resources[:0]
	for _, res := range resources {
		if !seen[res] {
			seen[res] = true
			deduped = append(deduped, res)
		}
	}
	return deduped
}

// runResources infers the resource set deterministically from keywords,
// optionally letting the model override when enabled, and attaches
// lab-indication evidence for known tests.
func (p *Pipeline) runResources(ctx context.Context, cfg *config.SystemConfig, caseText string, sig *extract.Signals, override string) ResourceResult {
	text := caseText
	if len(sig.Keywords) > 0 {
		text = strings.Join(sig.Keywords, " ")
	}

	resources := inferResources(text)
	result := ResourceResult{
		StageMeta: StageMeta{Confidence: 0.8},
		Resources: resources,
	}

	if p.resourceModelEnabled && p.client != nil {
		if modelRes, ok := p.modelResources(ctx, caseText, override, &result.StageMeta); ok {
			resources = modelRes
			result.Resources = resources
		}
	}

	var tests []string
	for _, res := range resources {
		if labTests[res] {
			tests = append(tests, res)
		}
	}
	if len(tests) > 0 {
		bundle := p.retriever.LabIndications(cfg, resourceStage, tests)
		result.EvidenceUsed = bundle.Enabled && bundle.QueryCount > 0
	}

	result.ResourceCount = len(resources)
	return result
}

// modelResources asks the model for a resource list, keeping the
// deterministic mapping when anything goes wrong.
func (p *Pipeline) modelResources(ctx context.Context, caseText, override string, meta *StageMeta) ([]string, bool) {
	model := p.router.DefaultModel(override)
	res, err := p.client.Complete(ctx, llm.Request{
		Model:  model,
		System: resourceSystemPrompt,
		User:   "Case: " + caseText,
		Schema: resourceReplySchema,
	})
	if err != nil {
		logx.Warn().Err(err).Msg("resource model inference degraded, keeping keyword mapping")
		return nil, false
	}

	var reply struct {
		Resources  []string `json:"resources"`
		Confidence float64  `json:"confidence"`
		Reasoning  string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(res.Content), &reply); err != nil {
		logx.Warn().Err(err).Msg("resource model reply unparseable, keeping keyword mapping")
		return nil, false
	}

	meta.Model = res.Model
	meta.Usage = res.Usage
	meta.CostUSD = res.CostUSD
	meta.Confidence = reply.Confidence
	meta.Reason = reply.Reasoning
	return reply.Resources, true
}
