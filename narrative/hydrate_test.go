package narrative

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbrreport/dataset"
)

type stubGenerator struct {
	gen     Generation
	prompts []string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, _ dataset.LLMConfig) Generation {
	s.prompts = append(s.prompts, prompt)
	return s.gen
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingObserver) Observe(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func TestHydrateSinglePeriodHasNoComparison(t *testing.T) {
	entity := testEntity(dataset.LLMConfig{})
	delete(entity.Quarters, "2025-Q2")
	h := &Hydrator{}
	res, err := h.Hydrate(context.Background(), entity, "2025-Q3")
	assert.ErrorIs(t, err, ErrNoComparison)
	assert.Nil(t, res)
}

func TestHydrateUnknownOrOldestPeriod(t *testing.T) {
	h := &Hydrator{}
	_, err := h.Hydrate(context.Background(), testEntity(dataset.LLMConfig{}), "2024-Q1")
	assert.ErrorIs(t, err, ErrNoComparison)
	_, err = h.Hydrate(context.Background(), testEntity(dataset.LLMConfig{}), "2025-Q2")
	assert.ErrorIs(t, err, ErrNoComparison)
	_, err = h.Hydrate(context.Background(), nil, "2025-Q3")
	assert.ErrorIs(t, err, ErrNoComparison)
}

func TestHydrateProviderErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	var logs bytes.Buffer
	obs := &recordingObserver{}
	h := &Hydrator{
		Gateway:  &Gateway{},
		Logger:   log.New(&logs, "", 0),
		Observer: obs,
	}
	entity := testEntity(dataset.LLMConfig{Enabled: boolPtr(true), ProxyEndpoint: server.URL})
	res, err := h.Hydrate(context.Background(), entity, "2025-Q3")
	require.NoError(t, err)
	require.NoError(t, res.Narrative.Validate())
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, FailureStatus, res.Failure)

	opt := testOption()
	d := res.Narrative.CriticalDecision
	assert.Equal(t, opt.DecisionDeadline, d.Deadline)
	assert.Equal(t, opt.IncrementalCapexUSD, d.IncrementalCapexUSD)
	assert.Equal(t, opt.ExpectedSavingsRange, d.ExpectedSavingsRange)
	assert.Equal(t, opt.ProjectedROIMultiple, d.ProjectedROIMultiple)

	assert.Contains(t, logs.String(), "Warning: narrative generation failed for seaside 2025-Q3 (status)")
	require.Len(t, obs.outcomes, 1)
	assert.Equal(t, SourceFallback, obs.outcomes[0].Source)
	assert.Equal(t, "2025-Q2", obs.outcomes[0].PreviousKey)
	assert.NotEmpty(t, obs.outcomes[0].Prompt)
}

func TestHydrateDisabledFallsBackQuietly(t *testing.T) {
	var logs bytes.Buffer
	h := &Hydrator{Gateway: &Gateway{}, Logger: log.New(&logs, "", 0)}
	res, err := h.Hydrate(context.Background(), testEntity(dataset.LLMConfig{}), "2025-Q3")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, FailureDisabled, res.Failure)
	assert.Empty(t, logs.String())
	assert.Equal(t, "2025-Q3", res.CurrentKey)
	assert.Equal(t, "2025-Q2", res.PreviousKey)
	assert.Equal(t, 2, res.Snapshot.TotalFinancialImpact.Delta.Pct)
}

func TestHydrateUsesValidLLMOutput(t *testing.T) {
	stub := &stubGenerator{gen: Generation{Text: validLLMJSON}}
	h := &Hydrator{Gateway: stub}
	res, err := h.Hydrate(context.Background(), testEntity(dataset.LLMConfig{Enabled: boolPtr(true)}), "2025-Q3")
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, res.Source)
	assert.Equal(t, FailureNone, res.Failure)
	assert.Equal(t, "Seaside Inn delivered $53,000 in Q3 2025", res.Narrative.Headline)
	// Structured decision fields always come from the entity's expansion option.
	assert.Equal(t, "2025-11-30", res.Narrative.CriticalDecision.Deadline)
	assert.Equal(t, 60000.0, res.Narrative.CriticalDecision.IncrementalCapexUSD)
	assert.Equal(t, "Approve Phase 2 by November 30.", res.Narrative.CriticalDecision.Description)
	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "decline_acknowledgement_required: true")
}

func TestHydrateRejectsMissingRequiredDecline(t *testing.T) {
	n, err := ParseNarrative(validLLMJSON)
	require.NoError(t, err)
	n.DeclineAcknowledgement = ""
	raw, err := jsonString(n)
	require.NoError(t, err)

	h := &Hydrator{Gateway: &stubGenerator{gen: Generation{Text: raw}}}
	res, err := h.Hydrate(context.Background(), testEntity(dataset.LLMConfig{Enabled: boolPtr(true)}), "2025-Q3")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, FailureMalformed, res.Failure)
	assert.NotEmpty(t, res.Narrative.DeclineAcknowledgement)
}

func TestHydrateMalformedOutputFallsBack(t *testing.T) {
	h := &Hydrator{Gateway: &stubGenerator{gen: Generation{Text: `{"headline": 1}`}}}
	res, err := h.Hydrate(context.Background(), testEntity(dataset.LLMConfig{Enabled: boolPtr(true)}), "2025-Q3")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, FailureMalformed, res.Failure)
	require.NoError(t, res.Narrative.Validate())
}

func TestHydrateCanceledDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := generatorFunc(func(ctx context.Context) Generation {
		cancel()
		return Generation{Failure: FailureCanceled, Err: ctx.Err()}
	})
	h := &Hydrator{Gateway: gen}
	res, err := h.Hydrate(ctx, testEntity(dataset.LLMConfig{Enabled: boolPtr(true)}), "2025-Q3")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, res)
}

func TestHydrateDeadlineFallsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	gen := generatorFunc(func(ctx context.Context) Generation {
		<-ctx.Done()
		return Generation{Failure: FailureTransport, Err: ctx.Err()}
	})
	obs := &recordingObserver{}
	h := &Hydrator{Gateway: gen, Observer: obs}
	res, err := h.Hydrate(ctx, testEntity(dataset.LLMConfig{Enabled: boolPtr(true)}), "2025-Q3")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, FailureTransport, res.Failure)
	require.NoError(t, res.Narrative.Validate())
	require.Len(t, obs.outcomes, 1)
	assert.ErrorIs(t, obs.outcomes[0].Err, context.DeadlineExceeded)
}

func TestHydrateFailingGatewayAlwaysValid(t *testing.T) {
	kinds := []FailureKind{FailureDisabled, FailureTransport, FailureStatus, FailureEmpty, FailureMalformed}
	for _, kind := range kinds {
		h := &Hydrator{Gateway: &stubGenerator{gen: Generation{Failure: kind, Err: fmt.Errorf("%s", kind)}}}
		res, err := h.Hydrate(context.Background(), testEntity(dataset.LLMConfig{Enabled: boolPtr(true)}), "2025-Q3")
		require.NoError(t, err, kind)
		assert.NoError(t, res.Narrative.Validate(), kind)
		assert.Equal(t, kind, res.Failure)
	}
}

type generatorFunc func(ctx context.Context) Generation

func (f generatorFunc) Generate(ctx context.Context, _ string, _ dataset.LLMConfig) Generation {
	return f(ctx)
}
