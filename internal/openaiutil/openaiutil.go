// Package openaiutil makes the raw HTTP calls behind narrative generation:
// an OpenAI-compatible chat-completions request, and the service's own proxy
// endpoint that forwards a prompt to the provider.
package openaiutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultModel    = "gpt-4o-mini"
)

// ErrEmptyContent reports a successful response that carried no text.
var ErrEmptyContent = errors.New("empty response content")

// maxErrorBody bounds how much of a failed response is kept for logs.
const maxErrorBody = 2048

// StatusError is returned when the remote answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %s", e.Status)
	}
	return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
}

// ProviderError is an error object the provider returned in a 2xx body.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return "OpenAI error: " + e.Message
}

// JSONSchema asks the provider to constrain output to a declared schema.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type Config struct {
	APIKey       string
	Model        string
	Endpoint     string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	Schema       *JSONSchema
	Client       *http.Client
}

type request struct {
	Model               string          `json:"model"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	Messages            []message       `json:"messages"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
	ReasoningEffort     string          `json:"reasoning_effort,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// APIKey returns the configured key, falling back to OPENAI_API_KEY.
func APIKey(cfg Config) string {
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

// Generate sends one chat-completions request and returns the first choice's
// content. A bearer token is sent only when a key is available.
func Generate(ctx context.Context, cfg Config, userContent string) (string, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	reqBody := request{
		Model:               model,
		MaxCompletionTokens: cfg.MaxTokens,
		Messages:            []message{{Role: "user", Content: userContent}},
	}
	if systemPrompt := strings.TrimSpace(cfg.SystemPrompt); systemPrompt != "" {
		reqBody.Messages = append([]message{{Role: "system", Content: systemPrompt}}, reqBody.Messages...)
	}
	if cfg.Schema != nil {
		reqBody.ResponseFormat = &responseFormat{Type: "json_schema", JSONSchema: cfg.Schema}
	}
	// gpt-5 models reject temperature.
	if strings.HasPrefix(model, "gpt-5") {
		reqBody.ReasoningEffort = "minimal"
	} else {
		temp := cfg.Temperature
		reqBody.Temperature = &temp
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal OpenAI request: %w", err)
	}
	headers := map[string]string{}
	if key := APIKey(cfg); key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	body, err := post(ctx, cfg.Client, endpoint, payload, headers)
	if err != nil {
		return "", fmt.Errorf("call OpenAI: %w", err)
	}

	var oaResp response
	if err := json.Unmarshal(body, &oaResp); err != nil {
		return "", fmt.Errorf("parse OpenAI response: %w", err)
	}
	if oaResp.Error != nil {
		return "", &ProviderError{Message: strings.TrimSpace(oaResp.Error.Message)}
	}
	if len(oaResp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI response had no choices: %w", ErrEmptyContent)
	}
	content := strings.TrimSpace(oaResp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

func post(ctx context.Context, client *http.Client, endpoint string, payload []byte, headers map[string]string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(body))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: text}
	}
	return body, nil
}
