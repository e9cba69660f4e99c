package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractChestPainScenario(t *testing.T) {
	text := "32-year-old female with chest pain. HR 110, RR 22, BP 140/90, T 99.1F, SpO2 94%"
	sig := Extract(text)

	require.NotNil(t, sig.Age)
	assert.Equal(t, 32, *sig.Age)

	require.NotNil(t, sig.Vitals.HR)
	assert.Equal(t, 110, *sig.Vitals.HR)
	require.NotNil(t, sig.Vitals.RR)
	assert.Equal(t, 22, *sig.Vitals.RR)
	require.NotNil(t, sig.Vitals.SBP)
	assert.Equal(t, 140, *sig.Vitals.SBP)
	require.NotNil(t, sig.Vitals.DBP)
	assert.Equal(t, 90, *sig.Vitals.DBP)
	require.NotNil(t, sig.Vitals.TempF)
	assert.InDelta(t, 99.1, *sig.Vitals.TempF, 0.001)
	require.NotNil(t, sig.Vitals.SpO2)
	assert.Equal(t, 94, *sig.Vitals.SpO2)

	assert.Equal(t, "Chest Pain", sig.ChiefComplaint)
	assert.Contains(t, sig.Keywords, "chest pain")
	assert.Equal(t, text, sig.RawText)
}

func TestExtractIdempotent(t *testing.T) {
	text := "45 yo male, fever and abdominal pain, HR 95"
	first := Extract(text)
	second := Extract(first.RawText)
	assert.Equal(t, first, second)
}

func TestExtractAge(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *int
	}{
		{"hyphenated", "32-year-old female", intPtr(32)},
		{"spaced", "45 years old", intPtr(45)},
		{"yo suffix", "67 yo male", intPtr(67)},
		{"y/o suffix", "8 y/o child", intPtr(8)},
		{"absent", "adult patient with cough", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Extract(tt.text)
			if tt.want == nil {
				assert.Nil(t, sig.Age)
				return
			}
			require.NotNil(t, sig.Age)
			assert.Equal(t, *tt.want, *sig.Age)
		})
	}
}

func TestExtractChiefComplaintPriority(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"fever and chest pain", "Chest Pain"},
		{"fever with abdominal pain", "Abdominal Pain"},
		{"sob after exertion", "Shortness of Breath"},
		{"confused and febrile", "Altered Mental Status"},
		{"fever for 3 days", "Fever"},
		{"ankle sprain", "General"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Extract(tt.text).ChiefComplaint, "text: %s", tt.text)
	}
}

func TestExtractKeywordsFirstOccurrenceOrder(t *testing.T) {
	sig := Extract("Fever for two days, now chest pain and shortness of breath")
	assert.Equal(t, []string{"fever", "chest pain", "shortness of breath"}, sig.Keywords)
}

func TestExtractKeywordsDeduped(t *testing.T) {
	sig := Extract("chest pain, worsening chest pain")
	count := 0
	for _, k := range sig.Keywords {
		if k == "chest pain" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestVitalsCritical(t *testing.T) {
	tests := []struct {
		name   string
		vitals Vitals
		want   bool
	}{
		{"empty", Vitals{}, false},
		{"spo2 below threshold", Vitals{SpO2: intPtr(89)}, true},
		{"spo2 at threshold", Vitals{SpO2: intPtr(90)}, false},
		{"sbp below threshold", Vitals{SBP: intPtr(89)}, true},
		{"rr at threshold", Vitals{RR: intPtr(30)}, true},
		{"rr below threshold", Vitals{RR: intPtr(29)}, false},
		{"hr at threshold", Vitals{HR: intPtr(130)}, true},
		{"temp at threshold", Vitals{TempF: floatPtr(104.0)}, true},
		{"all normal", Vitals{HR: intPtr(80), RR: intPtr(16), SBP: intPtr(120), SpO2: intPtr(98), TempF: floatPtr(98.6)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.vitals.Critical())
		})
	}
}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }
