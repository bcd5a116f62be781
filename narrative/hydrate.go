package narrative

import (
	"context"
	"errors"
	"time"

	"qbrreport/dataset"
	"qbrreport/internal/ratelimit"
	"qbrreport/period"
	"qbrreport/snapshot"
)

// Source records which producer wrote a narrative. It is for auditing and
// metrics; renderers must not branch on it.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Logger is the subset of *log.Logger the hydrator uses.
type Logger interface {
	Printf(format string, args ...any)
}

// Outcome describes one finished hydration for observers.
type Outcome struct {
	EntityID    string
	EntityKind  dataset.Kind
	CurrentKey  string
	PreviousKey string
	Source      Source
	Failure     FailureKind
	Err         error
	Prompt      string
	Duration    time.Duration
}

// Observer receives every completed hydration.
type Observer interface {
	Observe(Outcome)
}

type observers []Observer

func (o observers) Observe(out Outcome) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(out)
		}
	}
}

// Observers fans an outcome out to several observers. Nil entries are skipped.
func Observers(list ...Observer) Observer {
	return observers(list)
}

// Result is a hydrated report section.
type Result struct {
	Narrative   *Narrative
	Snapshot    *snapshot.Snapshot
	CurrentKey  string
	PreviousKey string
	Source      Source
	Failure     FailureKind
}

// Hydrator produces narratives: one generation attempt, validated, with a
// deterministic fallback on any failure. A Hydrator holds no per-request
// state and is safe for concurrent use.
type Hydrator struct {
	Gateway   Generator
	Policy    *Policy
	Templates NextStepTemplates
	Logger    Logger
	Observer  Observer
	// Warnings throttles failure log lines; nil logs every failure.
	Warnings *ratelimit.Counter
	now      func() time.Time
}

// Hydrate builds the narrative for entity at currentKey. It returns
// ErrNoComparison when there is no previous period, and context.Canceled when
// the caller canceled during generation so stale results are never delivered.
// A deadline that runs out during generation is a timed-out generation and
// falls back like any other failure. Generation failures never surface as
// errors.
func (h *Hydrator) Hydrate(ctx context.Context, entity *dataset.Entity, currentKey string) (*Result, error) {
	start := h.clock()
	curKey, cur, ok := entity.Quarter(currentKey)
	if !ok {
		return nil, ErrNoComparison
	}
	prevKey, ok := period.Previous(entity.PeriodKeys(), curKey)
	if !ok {
		return nil, ErrNoComparison
	}
	_, prev, _ := entity.Quarter(prevKey)
	snap, ok := snapshot.Build(&cur.Metrics, &prev.Metrics)
	if !ok {
		return nil, ErrNoComparison
	}

	policy := h.policy()
	required := policy.MustAcknowledgeDecline(DeltasOf(snap))
	curLabel, prevLabel := entity.Label(curKey), entity.Label(prevKey)
	prompt := BuildPrompt(PromptInput{
		Entity:          entity,
		CurrentKey:      curKey,
		CurrentLabel:    curLabel,
		PreviousKey:     prevKey,
		PreviousLabel:   prevLabel,
		Current:         cur.Metrics,
		Previous:        prev.Metrics,
		Snapshot:        snap,
		DeclineRequired: required,
		ThresholdPct:    policy.ThresholdPct,
	})

	var gen Generation
	if h.Gateway == nil {
		gen = Generation{Failure: FailureDisabled}
	} else {
		gen = h.Gateway.Generate(ctx, prompt, entity.LLM)
	}
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return nil, err
	}

	failure, genErr := gen.Failure, gen.Err
	var n *Narrative
	if gen.OK() {
		parsed, err := ParseNarrative(gen.Text)
		if err == nil {
			err = parsed.CheckDecline(required)
		}
		if err != nil {
			failure, genErr = FailureMalformed, err
		} else {
			parsed.CriticalDecision = decisionFrom(entity.Expansion, parsed.CriticalDecision.Description)
			n = parsed
		}
	}

	res := &Result{Snapshot: snap, CurrentKey: curKey, PreviousKey: prevKey, Failure: failure}
	if n != nil {
		res.Narrative, res.Source = n, SourceLLM
	} else {
		if failure != FailureDisabled {
			h.warn(entity, curKey, failure, genErr)
		}
		res.Narrative = Synthesize(FallbackInput{
			Entity:        entity,
			Current:       cur.Metrics,
			Previous:      prev.Metrics,
			CurrentLabel:  curLabel,
			PreviousLabel: prevLabel,
			Policy:        &policy,
			Templates:     h.Templates,
		})
		res.Source = SourceFallback
	}

	if h.Observer != nil {
		h.Observer.Observe(Outcome{
			EntityID:    entity.ID,
			EntityKind:  entity.Kind,
			CurrentKey:  curKey,
			PreviousKey: prevKey,
			Source:      res.Source,
			Failure:     failure,
			Err:         genErr,
			Prompt:      prompt,
			Duration:    h.clock().Sub(start),
		})
	}
	return res, nil
}

func (h *Hydrator) policy() Policy {
	if h.Policy != nil {
		return *h.Policy
	}
	return DefaultPolicy()
}

func (h *Hydrator) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *Hydrator) warn(entity *dataset.Entity, key string, failure FailureKind, err error) {
	if h.Logger == nil {
		return
	}
	total, suppressed, ok := h.Warnings.Inc()
	if !ok {
		return
	}
	if suppressed > 0 {
		h.Logger.Printf("Warning: narrative generation failed for %s %s (%s): %v; using fallback (%d failures total, %d not logged)",
			entity.ID, key, failure, err, total, suppressed)
		return
	}
	h.Logger.Printf("Warning: narrative generation failed for %s %s (%s): %v; using fallback", entity.ID, key, failure, err)
}
