package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhiruiluo/esi-triage-mvp/internal/admission"
	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	"github.com/zhiruiluo/esi-triage-mvp/internal/evidence"
	"github.com/zhiruiluo/esi-triage-mvp/internal/pipeline"
	"github.com/zhiruiluo/esi-triage-mvp/internal/router"
	"github.com/zhiruiluo/esi-triage-mvp/internal/security"
	"github.com/zhiruiluo/esi-triage-mvp/internal/triage"
)

func testServer(t *testing.T, quota config.QuotaConfig) *Server {
	t.Helper()
	cfg := &config.AppConfig{
		Environment: "testing",
		HTTPAddr:    ":0",
		LLM:         config.LLMConfig{Model: "gemini-2.5-flash"},
		Router: config.RouterConfig{
			Enabled:                true,
			HighModel:              "high",
			MidModel:               "mid",
			DefaultModel:           "lite",
			LowConfidenceThreshold: 0.6,
			ResourceCountForMid:    2,
		},
		Quota: quota,
	}
	svc := triage.NewService(
		admission.NewController(admission.NewMemoryStore(), quota, nil),
		security.NewGate(security.NewSemanticDetector(nil, "lite")),
		config.NewLayerManager(filepath.Join(t.TempDir(), "rag_config.json")),
		pipeline.New(nil, evidence.NewRetriever(evidence.NewStore()), router.New(cfg.Router, cfg.LLM.Model), false),
	)
	return New(cfg, svc)
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t, config.QuotaConfig{DailyLimit: 20, DailyBudgetUSD: 1.0})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "triage-classifier", body["service"])
}

func TestInfoEndpoint(t *testing.T) {
	srv := testServer(t, config.QuotaConfig{DailyLimit: 20, DailyBudgetUSD: 1.0})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "triage-classifier", body["service"])
	assert.Equal(t, "gemini-2.5-flash", body["model"])
}

func TestClassifyEndpoint(t *testing.T) {
	srv := testServer(t, config.QuotaConfig{DailyLimit: 20, DailyBudgetUSD: 1.0})

	req := httptest.NewRequest(http.MethodPost, "/classify",
		strings.NewReader(`{"case_text": "32-year-old female with chest pain. HR 110, RR 22, BP 140/90"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var body struct {
		ESILevel   int     `json:"esi_level"`
		Confidence float64 `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.ESILevel)
}

func TestClassifyEndpointValidation(t *testing.T) {
	srv := testServer(t, config.QuotaConfig{DailyLimit: 20, DailyBudgetUSD: 1.0})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing case text", `{}`},
		{"blank case text", `{"case_text": "   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestClassifyEndpointRateLimit(t *testing.T) {
	srv := testServer(t, config.QuotaConfig{DailyLimit: 1, DailyBudgetUSD: 1.0})

	body := `{"case_text": "fever for 2 days"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader(body)))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var errBody struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "Rate limit exceeded (1 per day)", errBody.Error)
}

func TestRequestIDPropagated(t *testing.T) {
	srv := testServer(t, config.QuotaConfig{DailyLimit: 20, DailyBudgetUSD: 1.0})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied", rec.Header().Get("X-Request-Id"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", clientIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.2, 10.0.0.1")
	assert.Equal(t, "198.51.100.2", clientIP(r))
}
