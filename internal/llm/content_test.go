package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prefix chatter", `Here is the result: {"a": 1}`, `{"a": 1}`},
		{"array with chatter", `Sure! [1, 2]`, `[1, 2]`},
		{"surrounding whitespace", "  {\"a\": 1}\n", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONContent(tt.in))
		})
	}
}

func TestPricingCost(t *testing.T) {
	p := Pricing{InputPer1K: 0.01, OutputPer1K: 0.03}
	cost := p.Cost(Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000})
	assert.InDelta(t, 0.04, cost, 1e-9)

	assert.Zero(t, p.Cost(Usage{}))
}

func TestUsageAdd(t *testing.T) {
	total := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}.
		Add(Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30})
	assert.Equal(t, Usage{PromptTokens: 30, CompletionTokens: 15, TotalTokens: 45}, total)
}

func TestMustSchemaValidates(t *testing.T) {
	s := MustSchema(`{"type": "object", "required": ["a"]}`)
	assert.True(t, s.ValidateJSON([]byte(`{"a": 1}`)).IsValid())
	assert.False(t, s.ValidateJSON([]byte(`{}`)).IsValid())
}
