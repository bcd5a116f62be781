package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"qbrreport/internal/openaiutil"
	"qbrreport/narrative"
)

const maxPromptBytes = 1 << 20

// DefaultProxyTemperature applies when a proxy request names none.
const DefaultProxyTemperature = 0.4

// handleProxy forwards a prompt to the provider with the server-side key so
// browsers never hold it.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.allow(w, r, s.opts.ProxyLimiter) {
		return
	}

	var req openaiutil.ProxyRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPromptBytes))
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeDetail(w, http.StatusBadRequest, "prompt is required")
		return
	}

	cfg := s.opts.Provider
	if openaiutil.APIKey(cfg) == "" {
		writeDetail(w, http.StatusInternalServerError, "OPENAI_API_KEY not set")
		return
	}
	if model := strings.TrimSpace(req.Model); model != "" {
		cfg.Model = model
	}
	cfg.Temperature = DefaultProxyTemperature
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	cfg.Schema = narrative.ResponseSchema()

	content, err := openaiutil.Generate(r.Context(), cfg, req.Prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		status, detail := proxyFailure(err)
		s.logf("Warning: narrative proxy call failed: %v", err)
		writeDetail(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, openaiutil.ProxyResponse{Content: content})
}

func proxyFailure(err error) (int, string) {
	var se *openaiutil.StatusError
	var pe *openaiutil.ProviderError
	switch {
	case errors.As(err, &pe):
		return http.StatusBadGateway, pe.Error()
	case errors.As(err, &se):
		code := se.Code
		if code < 400 || code > 599 {
			code = http.StatusBadGateway
		}
		return code, fmt.Sprintf("OpenAI error: %d %s", se.Code, se.Body)
	case errors.Is(err, openaiutil.ErrEmptyContent):
		return http.StatusInternalServerError, "Empty response from OpenAI"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "OpenAI request timed out"
	default:
		return http.StatusBadGateway, "OpenAI request failed"
	}
}
