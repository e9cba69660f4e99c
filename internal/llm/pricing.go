package llm

// Usage carries token counters echoed back by the model backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// Pricing defines USD cost per 1K tokens for input/output.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Cost converts token usage to USD using per-1K Pricing.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.PromptTokens)/1000.0*p.InputPer1K +
		float64(u.CompletionTokens)/1000.0*p.OutputPer1K
}
