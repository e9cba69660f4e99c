package config

import (
	pkgredis "github.com/zhiruiluo/esi-triage-mvp/pkg/redis"
)

// ================ Config ================

// AppConfig defines all configurable parameters for the triage service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8000"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	LLM    LLMConfig
	Router RouterConfig
	Quota  QuotaConfig

	// Infrastructure. Redis is only dialled when QUOTA_STORE=redis.
	Redis pkgredis.Config

	// Path of the hot-reloadable layer configuration document.
	LayerConfigPath string `envconfig:"RAG_CONFIG_PATH" default:"config/rag_config.json"`

	// When set, resource inference may consult the model instead of the
	// keyword mapping alone.
	ResourceModelEnabled bool `envconfig:"RESOURCE_MODEL_ENABLED" default:"false"`
}

type LLMConfig struct {
	Model           string  `envconfig:"LLM_MODEL" default:"gemini-2.5-flash"`
	Temperature     float32 `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	MaxTokens       int     `envconfig:"LLM_MAX_TOKENS" default:"300"`
	TimeoutSeconds  int     `envconfig:"LLM_TIMEOUT_SECONDS" default:"30"`
	CostPer1KInput  float64 `envconfig:"COST_PER_1K_INPUT" default:"0.01"`
	CostPer1KOutput float64 `envconfig:"COST_PER_1K_OUTPUT" default:"0.03"`
}

type RouterConfig struct {
	Enabled                bool    `envconfig:"ROUTER_ENABLED" default:"true"`
	HighModel              string  `envconfig:"ROUTER_HIGH_MODEL" default:"gemini-2.5-pro"`
	MidModel               string  `envconfig:"ROUTER_MID_MODEL" default:"gemini-2.5-flash"`
	DefaultModel           string  `envconfig:"ROUTER_DEFAULT_MODEL" default:"gemini-2.5-flash-lite"`
	LowConfidenceThreshold float64 `envconfig:"ROUTER_LOW_CONFIDENCE_THRESHOLD" default:"0.6"`
	ResourceCountForMid    int     `envconfig:"ROUTER_RESOURCE_COUNT_FOR_MID" default:"2"`
}

type QuotaConfig struct {
	DailyLimit     int     `envconfig:"RATE_LIMIT_PER_DAY" default:"20"`
	DailyBudgetUSD float64 `envconfig:"FREE_TIER_DAILY_BUDGET_USD" default:"1.00"`
	Store          string  `envconfig:"QUOTA_STORE" default:"memory"`
}
