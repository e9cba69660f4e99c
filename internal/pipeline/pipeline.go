package pipeline

import (
	"context"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	"github.com/zhiruiluo/esi-triage-mvp/internal/evidence"
	"github.com/zhiruiluo/esi-triage-mvp/internal/extract"
	"github.com/zhiruiluo/esi-triage-mvp/internal/llm"
	"github.com/zhiruiluo/esi-triage-mvp/internal/router"
	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

// Pipeline is the classification state machine. Stages run in a fixed
// sequence because each stage's prompt depends on the previous stage's
// output. The client may be nil (no credential): every model-backed stage
// then returns its safe default.
type Pipeline struct {
	client               llm.Completer
	retriever            *evidence.Retriever
	router               *router.Router
	resourceModelEnabled bool
}

func New(client llm.Completer, retriever *evidence.Retriever, r *router.Router, resourceModelEnabled bool) *Pipeline {
	return &Pipeline{
		client:               client,
		retriever:            retriever,
		router:               r,
		resourceModelEnabled: resourceModelEnabled,
	}
}

// Run executes Red-Flag Detection, Vital-Signal Assessment, Resource
// Inference, Preliminary-Level Derivation, Handbook Verification and the
// Final Decision over the sanitized text and extracted signals, merging
// each result into the context and accumulating cost. Always completes.
func (p *Pipeline) Run(ctx context.Context, cfg *config.SystemConfig, caseText string, sig extract.Signals, modelOverride string) *Context {
	pc := &Context{
		CaseText:      caseText,
		Signals:       sig,
		ModelOverride: modelOverride,
	}

	pc.RedFlag = p.runRedFlag(ctx, cfg, caseText, &sig, modelOverride)
	pc.Totals.addMeta(pc.RedFlag.StageMeta)

	pc.Vitals = p.runVitals(cfg, &sig)
	pc.Totals.addMeta(pc.Vitals.StageMeta)

	pc.Resources = p.runResources(ctx, cfg, caseText, &sig, modelOverride)
	pc.Totals.addMeta(pc.Resources.StageMeta)

	preliminary := DerivePreliminary(pc.RedFlag.HasRedFlags, pc.Resources.ResourceCount)
	pc.PreliminaryLevel = ClampForCriticalVitals(preliminary, pc.Vitals.Critical)

	pc.Handbook = p.runHandbook(cfg, pc.PreliminaryLevel)
	pc.Totals.addMeta(pc.Handbook.StageMeta)

	pc.Final = p.runFinal(ctx, cfg, pc)
	pc.Totals.addMeta(pc.Final.StageMeta)

	logx.Debug().
		Int("preliminary", pc.PreliminaryLevel).
		Int("final", pc.Final.Level).
		Bool("red_flags", pc.RedFlag.HasRedFlags).
		Bool("critical_vitals", pc.Vitals.Critical).
		Int("resources", pc.Resources.ResourceCount).
		Float64("cost_usd", pc.Totals.CostUSD).
		Msg("pipeline complete")

	return pc
}
