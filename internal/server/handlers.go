package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	errx "github.com/zhiruiluo/esi-triage-mvp/internal/core/error"
	"github.com/zhiruiluo/esi-triage-mvp/internal/security"
	"github.com/zhiruiluo/esi-triage-mvp/internal/triage"
	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

const maxCaseTextBytes = 64 << 10

type errorBody struct {
	Error    string            `json:"error"`
	Security *security.Verdict `json:"security,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req triage.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCaseTextBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.CaseText) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "case_text is required"})
		return
	}

	resp, err := s.svc.Classify(r.Context(), clientIP(r), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "triage-classifier",
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "triage-classifier",
		"environment": s.cfg.Environment,
		"model":       s.cfg.LLM.Model,
		"router": map[string]any{
			"enabled":       s.cfg.Router.Enabled,
			"high_model":    s.cfg.Router.HighModel,
			"mid_model":     s.cfg.Router.MidModel,
			"default_model": s.cfg.Router.DefaultModel,
		},
		"quota": map[string]any{
			"daily_limit":      s.cfg.Quota.DailyLimit,
			"daily_budget_usd": s.cfg.Quota.DailyBudgetUSD,
		},
	})
}

// writeError maps service errors onto HTTP responses. Security rejections
// keep their detector verdict in the body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errx.StatusOf(err)
	body := errorBody{Error: errx.SystemErrorMessage}

	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
	}
	var rejection *triage.SecurityRejection
	if errors.As(err, &rejection) {
		body.Security = &rejection.Verdict
	}

	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("response encoding failed")
	}
}
