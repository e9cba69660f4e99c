package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonschema"
	"google.golang.org/genai"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

// ErrNoCredential is returned at construction when no API key is configured.
// Callers keep a nil Completer and degrade to their safe defaults instead of
// crashing.
var ErrNoCredential = errors.New("missing GEMINI_API_KEY")

// Request is a single structured-output completion call.
type Request struct {
	// Model is the concrete model identifier chosen by the router. Empty
	// means the client's configured default.
	Model  string
	System string
	User   string
	// Schema, when set, is validated against the cleaned reply content
	// before the result is returned. A violation is an error; the caller's
	// degraded path handles it.
	Schema *jsonschema.Schema
}

// Result is the completion content plus usage and cost accounting.
type Result struct {
	Content string
	Model   string
	Usage   Usage
	CostUSD float64
}

// Completer is the generative-model collaborator. Implementations must be
// safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// GeminiClient is the production Completer backed by one eino Gemini chat
// model. Per-request tier selection goes through the model.WithModel option
// so a single underlying client serves every routing decision.
type GeminiClient struct {
	cm           model.BaseChatModel
	defaultModel string
	pricing      Pricing
	timeout      time.Duration
}

// NewGeminiClient builds the Gemini-backed client. ErrNoCredential is
// returned when no API key is present; the process stays up and all
// model-backed stages degrade.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, cfg config.LLMConfig) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrNoCredential
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GeminiClient{
		cm:           cm,
		defaultModel: cfg.Model,
		pricing:      Pricing{InputPer1K: cfg.CostPer1KInput, OutputPer1K: cfg.CostPer1KOutput},
		timeout:      timeout,
	}, nil
}

// Complete runs one bounded completion call and returns the cleaned,
// schema-checked content with usage accounting.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msgs := []*schema.Message{
		schema.SystemMessage(req.System),
		schema.UserMessage(req.User),
	}

	selected := req.Model
	if selected == "" {
		selected = c.defaultModel
	}
	var opts []model.Option
	if selected != c.defaultModel {
		opts = append(opts, model.WithModel(selected))
	}

	out, err := c.cm.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("model returned no message")
	}

	content := CleanJSONContent(out.Content)
	if req.Schema != nil {
		if res := req.Schema.ValidateJSON([]byte(content)); !res.IsValid() {
			return nil, fmt.Errorf("model reply failed schema validation: %v", res.Errors)
		}
	}

	var usage Usage
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		usage = Usage{
			PromptTokens:     out.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: out.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      out.ResponseMeta.Usage.TotalTokens,
		}
	}

	return &Result{
		Content: content,
		Model:   selected,
		Usage:   usage,
		CostUSD: c.pricing.Cost(usage),
	}, nil
}

// MustSchema compiles a reply schema at package init. Stage schemas are
// literals, so a compile failure is a programming error.
func MustSchema(raw string) *jsonschema.Schema {
	s, err := jsonschema.NewCompiler().Compile([]byte(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid reply schema: %v", err))
	}
	return s
}
