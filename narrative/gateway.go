package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qbrreport/dataset"
	"qbrreport/internal/openaiutil"
)

// FailureKind classifies why a generation attempt produced no narrative.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureDisabled  FailureKind = "disabled"
	FailureTransport FailureKind = "transport"
	FailureStatus    FailureKind = "status"
	FailureEmpty     FailureKind = "empty"
	FailureMalformed FailureKind = "malformed"
	FailureCanceled  FailureKind = "canceled"
)

// Generation is the outcome of one attempt: Text on success, otherwise a
// Failure kind and the underlying error.
type Generation struct {
	Text    string
	Failure FailureKind
	Err     error
}

// OK reports whether text was produced.
func (g Generation) OK() bool {
	return g.Failure == FailureNone
}

// Generator produces raw narrative text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, cfg dataset.LLMConfig) Generation
}

// Gateway calls either the configured proxy endpoint or the provider
// directly. It makes exactly one attempt per call.
type Gateway struct {
	// Provider holds direct-mode settings (key, endpoint, system prompt).
	Provider openaiutil.Config
	// BaseURL resolves relative proxy endpoints such as /api/qbr-narrative.
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
	// DefaultTemperature applies when the entity config sets none.
	DefaultTemperature float64
	// InternalToken identifies proxy calls made by this service so its own
	// rate limit exempts them.
	InternalToken string
}

// Generate runs one generation attempt. It never panics and never returns
// an error outside the Generation value.
func (g *Gateway) Generate(ctx context.Context, prompt string, cfg dataset.LLMConfig) Generation {
	if g == nil || !cfg.IsEnabled() {
		return Generation{Failure: FailureDisabled}
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	temp := cfg.TemperatureOr(g.DefaultTemperature)

	var text string
	var err error
	if endpoint := strings.TrimSpace(cfg.ProxyEndpoint); endpoint != "" {
		endpoint, err = g.resolve(endpoint)
		if err == nil {
			text, err = openaiutil.CallProxy(ctx, g.Client, endpoint, g.InternalToken, openaiutil.ProxyRequest{
				Prompt:      prompt,
				Model:       cfg.Model,
				Temperature: &temp,
			})
		}
	} else {
		pc := g.Provider
		if cfg.APIKey != "" {
			pc.APIKey = cfg.APIKey
		}
		if cfg.Model != "" {
			pc.Model = cfg.Model
		}
		pc.Temperature = temp
		pc.Schema = ResponseSchema()
		if pc.Client == nil {
			pc.Client = g.Client
		}
		text, err = openaiutil.Generate(ctx, pc, prompt)
	}
	if err != nil {
		return Generation{Failure: classify(ctx, err), Err: err}
	}
	return Generation{Text: text}
}

func (g *Gateway) resolve(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("proxy endpoint %q: %w", endpoint, err)
	}
	if u.IsAbs() {
		return endpoint, nil
	}
	if g.BaseURL == "" {
		return "", fmt.Errorf("proxy endpoint %q is relative and no base URL is configured", endpoint)
	}
	base, err := url.Parse(g.BaseURL)
	if err != nil {
		return "", fmt.Errorf("base URL %q: %w", g.BaseURL, err)
	}
	return base.ResolveReference(u).String(), nil
}

func classify(ctx context.Context, err error) FailureKind {
	var statusErr *openaiutil.StatusError
	var providerErr *openaiutil.ProviderError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return FailureCanceled
	case errors.As(err, &statusErr), errors.As(err, &providerErr):
		return FailureStatus
	case errors.Is(err, openaiutil.ErrEmptyContent):
		return FailureEmpty
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return FailureMalformed
	default:
		return FailureTransport
	}
}
