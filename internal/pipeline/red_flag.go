package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	"github.com/zhiruiluo/esi-triage-mvp/internal/evidence"
	"github.com/zhiruiluo/esi-triage-mvp/internal/extract"
	"github.com/zhiruiluo/esi-triage-mvp/internal/llm"
	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

const redFlagStage = 3

const redFlagSystemPrompt = `You are an ESI (Emergency Severity Index) triage expert.
Identify if this case has RED FLAGS that would classify as ESI-2.

ESI-2 (Potentially Life-Threatening):
- Chest pain or shortness of breath
- Severe hemorrhage or shock
- Altered mental status
- Severe allergic reaction
- Severe hypotension/hypertension
- Uncontrolled seizure
- Severe respiratory distress
- Life-threatening trauma

Return JSON:
{
  "has_red_flags": true/false,
  "flags_detected": ["flag1", "flag2"],
  "severity_score": 0.0-1.0,
  "esi_level": 1-5,
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation"
}
`

var redFlagReplySchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"has_red_flags": {"type": "boolean"},
		"flags_detected": {"type": "array", "items": {"type": "string"}},
		"severity_score": {"type": "number"},
		"esi_level": {"type": "integer"},
		"confidence": {"type": "number"},
		"reasoning": {"type": "string"}
	},
	"required": ["has_red_flags"]
}`)

// runRedFlag asks whether life-threatening criteria are present, grounding
// the prompt with level-2 criteria and the complaint's differentials when
// the evidence gate allows.
func (p *Pipeline) runRedFlag(ctx context.Context, cfg *config.SystemConfig, caseText string, sig *extract.Signals, override string) RedFlagResult {
	if p.client == nil {
		return RedFlagResult{
			StageMeta: degradedMeta(0.0, "Missing GEMINI_API_KEY"),
			LevelHint: 3,
			Flags:     []string{},
		}
	}

	criteria := p.retriever.ESICriteria(cfg, redFlagStage, 2, "")
	diffs := p.retriever.Differentials(cfg, redFlagStage, sig.ChiefComplaint)
	evidenceText := criteria.FormattedText + diffs.FormattedText
	evidenceUsed := criteria.Enabled || diffs.Enabled

	system := redFlagSystemPrompt
	if strings.TrimSpace(evidenceText) != "" {
		system = evidence.UntrustedPreamble + "\n\n" + system +
			"\nUse the following clinical evidence to support your decision:\n" + evidenceText
	}

	model := p.router.RedFlagModel(override, caseText, sig)
	res, err := p.client.Complete(ctx, llm.Request{
		Model:  model,
		System: system,
		User:   "Case: " + caseText,
		Schema: redFlagReplySchema,
	})
	if err != nil {
		logx.Warn().Err(err).Str("model", model).Msg("red flag stage degraded")
		return RedFlagResult{
			StageMeta: degradedMeta(0.5, "Classification error: "+err.Error()),
			LevelHint: 3,
			Flags:     []string{},
		}
	}

	var reply struct {
		HasRedFlags   bool     `json:"has_red_flags"`
		FlagsDetected []string `json:"flags_detected"`
		SeverityScore float64  `json:"severity_score"`
		ESILevel      int      `json:"esi_level"`
		Confidence    float64  `json:"confidence"`
		Reasoning     string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(res.Content), &reply); err != nil {
		logx.Warn().Err(err).Msg("red flag reply unparseable")
		return RedFlagResult{
			StageMeta: degradedMeta(0.5, "Classification error: unparseable reply"),
			LevelHint: 3,
			Flags:     []string{},
		}
	}

	flags := reply.FlagsDetected
	if flags == nil {
		flags = []string{}
	}
	levelHint := reply.ESILevel
	if levelHint == 0 {
		levelHint = 3
	}

	return RedFlagResult{
		StageMeta: StageMeta{
			Confidence:   reply.Confidence,
			Model:        res.Model,
			Usage:        res.Usage,
			CostUSD:      res.CostUSD,
			EvidenceUsed: evidenceUsed,
			Reason:       reply.Reasoning,
		},
		HasRedFlags:   reply.HasRedFlags || len(flags) > 0,
		Flags:         flags,
		SeverityScore: reply.SeverityScore,
		LevelHint:     levelHint,
	}
}
