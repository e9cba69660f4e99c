// Package pipeline sequences the six classification stages, threading
// context and accumulating cost. No stage failure is fatal to a request:
// every external-call failure degrades to a locally defined safe default
// and execution continues to completion.
package pipeline

import (
	"github.com/zhiruiluo/esi-triage-mvp/internal/extract"
	"github.com/zhiruiluo/esi-triage-mvp/internal/llm"
)

// StageMeta is the uniform accounting shape carried by every stage result.
// Confidence is always populated, even on failure, so aggregation never
// branches on "missing".
type StageMeta struct {
	Confidence   float64   `json:"confidence"`
	Model        string    `json:"model,omitempty"`
	Usage        llm.Usage `json:"usage"`
	CostUSD      float64   `json:"cost_usd"`
	EvidenceUsed bool      `json:"evidence_used"`
	Degraded     bool      `json:"degraded,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

func degradedMeta(confidence float64, reason string) StageMeta {
	return StageMeta{Confidence: confidence, Degraded: true, Reason: reason}
}

// RedFlagResult is the red-flag detection stage output.
type RedFlagResult struct {
	StageMeta
	HasRedFlags   bool     `json:"has_red_flags"`
	Flags         []string `json:"flags"`
	SeverityScore float64  `json:"severity_score"`
	LevelHint     int      `json:"esi_level"`
}

// VitalsResult is the vital-signal assessment stage output. Abnormalities
// values are nil when age or evidence was unavailable: unknown, never a
// false positive.
type VitalsResult struct {
	StageMeta
	Age           *int             `json:"age,omitempty"`
	Vitals        extract.Vitals   `json:"vitals"`
	Abnormalities map[string]*bool `json:"abnormalities"`
	Critical      bool             `json:"critical"`
}

// ResourceResult is the resource inference stage output.
type ResourceResult struct {
	StageMeta
	Resources     []string `json:"resources"`
	ResourceCount int      `json:"resource_count"`
}

// HandbookResult is the handbook verification stage output. Its confidence
// is independent of upstream confidences.
type HandbookResult struct {
	StageMeta
	Level int `json:"esi_level"`
}

// FinalResult is the binding decision.
type FinalResult struct {
	StageMeta
	Level int `json:"esi_level"`
}

// CostTotals sums token usage and dollar cost across all stages invoked for
// one request.
type CostTotals struct {
	Usage   llm.Usage `json:"usage"`
	CostUSD float64   `json:"cost_usd"`
}

// Add merges one stage's accounting into the totals.
func (t *CostTotals) Add(usage llm.Usage, costUSD float64) {
	t.Usage = t.Usage.Add(usage)
	t.CostUSD += costUSD
}

func (t *CostTotals) addMeta(m StageMeta) {
	t.Add(m.Usage, m.CostUSD)
}

// Context accumulates across stage execution. Owned exclusively by the
// single in-flight request, appended to in stage order, discarded after the
// response is built.
type Context struct {
	CaseText      string
	Signals       extract.Signals
	ModelOverride string

	RedFlag          RedFlagResult
	Vitals           VitalsResult
	Resources        ResourceResult
	PreliminaryLevel int
	Handbook         HandbookResult
	Final            FinalResult

	Totals CostTotals
}
