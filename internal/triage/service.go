// Package triage wires admission control, the security gate, signal
// extraction and the classification pipeline into the single operation the
// transport layer exposes.
package triage

import (
	"context"
	"math"
	"net/http"

	"github.com/zhiruiluo/esi-triage-mvp/internal/admission"
	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	errx "github.com/zhiruiluo/esi-triage-mvp/internal/core/error"
	"github.com/zhiruiluo/esi-triage-mvp/internal/extract"
	"github.com/zhiruiluo/esi-triage-mvp/internal/pipeline"
	"github.com/zhiruiluo/esi-triage-mvp/internal/security"
	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

// Request is one classification request.
type Request struct {
	CaseText string `json:"case_text"`
	// Model forces a specific model for every stage of this request.
	// Empty or "auto" defers to the router.
	Model string `json:"model,omitempty"`
}

// SecurityRejection carries the detector verdict for unsanitizable input so
// the transport layer can include it in the error body.
type SecurityRejection struct {
	Verdict security.Verdict
}

func (r *SecurityRejection) Error() string {
	return "input rejected by security gate"
}

// Stages exposes every intermediate stage result for auditability.
type Stages struct {
	RedFlags         pipeline.RedFlagResult  `json:"red_flags"`
	Vitals           pipeline.VitalsResult   `json:"vitals"`
	Resources        pipeline.ResourceResult `json:"resources"`
	PreliminaryLevel int                     `json:"preliminary_esi_level"`
	Handbook         pipeline.HandbookResult `json:"handbook_verification"`
	Final            pipeline.FinalResult    `json:"final_decision"`
}

// CostSummary aggregates spend across all model calls of one request,
// including the semantic security detector. RemainingBudgetUSD is nil when
// no daily budget cap is configured.
type CostSummary struct {
	PromptTokens       int      `json:"prompt_tokens"`
	CompletionTokens   int      `json:"completion_tokens"`
	TotalTokens        int      `json:"total_tokens"`
	EstimatedUSD       float64  `json:"estimated_usd"`
	RemainingBudgetUSD *float64 `json:"remaining_budget_usd"`
}

type QuotaSummary struct {
	RemainingRequests int `json:"remaining_requests"`
}

// Response is the classification result returned to the caller.
type Response struct {
	ESILevel   int              `json:"esi_level"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Model      string           `json:"model,omitempty"`
	Signals    extract.Signals  `json:"extraction"`
	Security   security.Verdict `json:"security"`
	Stages     Stages           `json:"stages"`
	Cost       CostSummary      `json:"cost"`
	Quota      QuotaSummary     `json:"quota"`
}

// Service is the classification orchestrator.
type Service struct {
	admission *admission.Controller
	gate      *security.Gate
	layers    *config.LayerManager
	pipeline  *pipeline.Pipeline
}

func NewService(adm *admission.Controller, gate *security.Gate, layers *config.LayerManager, pl *pipeline.Pipeline) *Service {
	return &Service{
		admission: adm,
		gate:      gate,
		layers:    layers,
		pipeline:  pl,
	}
}

// Classify runs the full request lifecycle: admission check, security gate,
// extraction, pipeline, cost recording. Admitted requests always produce a
// decision; only quota exhaustion and unsanitizable input reject.
func (s *Service) Classify(ctx context.Context, clientID string, req Request) (*Response, error) {
	ok, reason := s.admission.Check(ctx, clientID)
	if !ok {
		logx.Info().Str("client", clientID).Str("reason", reason).Msg("request denied")
		return nil, errx.AdmissionDenied(reason)
	}
	s.admission.Commit(ctx, clientID)

	cfg := s.layers.Load()

	verdict, err := s.gate.Inspect(ctx, req.CaseText, req.Model)
	if err != nil {
		// The detector call was still paid for.
		if cfg.Global.CostTrackingEnabled {
			s.admission.AddCost(ctx, clientID, verdict.CostUSD)
		}
		logx.Warn().Str("client", clientID).Msg("unsanitizable input rejected")
		return nil, errx.New(&SecurityRejection{Verdict: verdict}, http.StatusBadRequest, "Input failed security validation")
	}

	sanitized := verdict.SanitizedText
	sig := extract.Extract(sanitized)

	pc := s.pipeline.Run(ctx, cfg, sanitized, sig, req.Model)

	totals := pc.Totals
	totals.Add(verdict.Usage, verdict.CostUSD)
	if cfg.Global.CostTrackingEnabled {
		s.admission.AddCost(ctx, clientID, totals.CostUSD)
	}

	resp := &Response{
		ESILevel:   pc.Final.Level,
		Confidence: pc.Final.Confidence,
		Reasoning:  pc.Final.Reason,
		Model:      pc.Final.Model,
		Signals:    sig,
		Security:   verdict,
		Stages: Stages{
			RedFlags:         pc.RedFlag,
			Vitals:           pc.Vitals,
			Resources:        pc.Resources,
			PreliminaryLevel: pc.PreliminaryLevel,
			Handbook:         pc.Handbook,
			Final:            pc.Final,
		},
		Cost: CostSummary{
			PromptTokens:     totals.Usage.PromptTokens,
			CompletionTokens: totals.Usage.CompletionTokens,
			TotalTokens:      totals.Usage.TotalTokens,
			EstimatedUSD:     totals.CostUSD,
		},
		Quota: QuotaSummary{
			RemainingRequests: s.admission.RemainingRequests(ctx, clientID),
		},
	}

	if remaining := s.admission.RemainingBudget(ctx, clientID); !math.IsInf(remaining, 1) {
		resp.Cost.RemainingBudgetUSD = &remaining
	}

	logx.Info().
		Str("client", clientID).
		Int("esi_level", resp.ESILevel).
		Float64("confidence", resp.Confidence).
		Float64("cost_usd", totals.CostUSD).
		Msg("classification complete")

	return resp, nil
}
