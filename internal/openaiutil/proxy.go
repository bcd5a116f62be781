package openaiutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// InternalTokenHeader carries the per-process token that marks a proxy call
// as coming from the service's own gateway.
const InternalTokenHeader = "X-Qbr-Internal-Token"

// ProxyRequest is the body accepted by the narrative proxy endpoint.
type ProxyRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ProxyResponse carries the generated text back to the caller.
type ProxyResponse struct {
	Content string `json:"content"`
}

// ProxyError is the error body the proxy endpoint writes.
type ProxyError struct {
	Detail string `json:"detail"`
}

// CallProxy posts a prompt to a proxy endpoint and returns its content. A
// non-empty token is sent in InternalTokenHeader.
func CallProxy(ctx context.Context, client *http.Client, endpoint, token string, req ProxyRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal proxy request: %w", err)
	}
	var headers map[string]string
	if token != "" {
		headers = map[string]string{InternalTokenHeader: token}
	}
	body, err := post(ctx, client, endpoint, payload, headers)
	if err != nil {
		return "", fmt.Errorf("call proxy: %w", err)
	}
	var out ProxyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse proxy response: %w", err)
	}
	content := strings.TrimSpace(out.Content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
