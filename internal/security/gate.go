package security

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zhiruiluo/esi-triage-mvp/internal/llm"
)

// ErrUnsanitizable means the semantic detector judged the input malicious
// and could not produce a usable cleaned version. The only security outcome
// that aborts a request.
var ErrUnsanitizable = errors.New("malicious input could not be sanitized")

// Verdict is the combined output of both detectors.
type Verdict struct {
	IsMalicious   bool            `json:"is_malicious"`
	SanitizedText string          `json:"-"`
	Pattern       PatternVerdict  `json:"pattern"`
	Semantic      SemanticVerdict `json:"semantic"`
	Usage         llm.Usage       `json:"-"`
	CostUSD       float64         `json:"-"`
}

// Gate runs the pattern and semantic detectors concurrently over the raw
// input and combines their results.
type Gate struct {
	semantic *SemanticDetector
}

func NewGate(semantic *SemanticDetector) *Gate {
	return &Gate{semantic: semantic}
}

// Inspect runs both detectors and applies the combination rule:
//   - semantic says malicious and cannot sanitize: ErrUnsanitizable, the
//     request is rejected before any pipeline stage runs;
//   - otherwise the semantic sanitized text supersedes the pattern
//     detector's, which supersedes the original.
//
// The returned Verdict is valid even alongside ErrUnsanitizable so the
// caller can surface security details. A non-empty model is the per-request
// override, applied to the semantic detector like every other stage.
func (g *Gate) Inspect(ctx context.Context, text, model string) (Verdict, error) {
	var (
		pattern  PatternVerdict
		semantic SemanticVerdict
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		pattern = InspectPatterns(text)
		return nil
	})
	eg.Go(func() error {
		semantic = g.semantic.Analyze(ctx, text, model)
		return nil
	})
	_ = eg.Wait() // both branches degrade internally, never error

	verdict := Verdict{
		IsMalicious: pattern.IsMalicious || (semantic.Enabled && semantic.IsMalicious),
		Pattern:     pattern,
		Semantic:    semantic,
		Usage:       semantic.Usage,
		CostUSD:     semantic.CostUSD,
	}

	if semantic.Enabled && semantic.IsMalicious {
		cleaned := strings.TrimSpace(semantic.SanitizedText)
		if !semantic.CanSanitize || cleaned == "" {
			verdict.SanitizedText = ""
			return verdict, ErrUnsanitizable
		}
		verdict.SanitizedText = cleaned
		return verdict, nil
	}

	if pattern.IsMalicious {
		verdict.SanitizedText = pattern.SanitizedText
		return verdict, nil
	}

	verdict.SanitizedText = text
	return verdict, nil
}
