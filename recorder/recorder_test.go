package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbrreport/dataset"
	"qbrreport/narrative"
)

func TestRecorderObserveAndRecent(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "qbr", "hydrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	rec.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	rec.Observe(narrative.Outcome{
		EntityID: "seaside", EntityKind: dataset.KindHotel, CurrentKey: "2025-Q3", PreviousKey: "2025-Q2",
		Source: narrative.SourceLLM, Prompt: "prompt a", Duration: 1500 * time.Millisecond,
	})
	rec.Flush()
	rec.Observe(narrative.Outcome{
		EntityID: "harbor", EntityKind: dataset.KindPortfolio, CurrentKey: "2025-Q3", PreviousKey: "2025-Q2",
		Source: narrative.SourceFallback, Failure: narrative.FailureStatus, Err: errors.New("HTTP 500"), Prompt: "prompt b",
	})
	rec.Flush()

	entries, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "harbor", entries[0].EntityID)
	assert.Equal(t, "fallback", entries[0].Source)
	assert.Equal(t, "status", entries[0].Failure)
	assert.Equal(t, "HTTP 500", entries[0].Error)
	assert.Equal(t, PromptHash("prompt b"), entries[0].PromptHash)
	assert.Equal(t, "seaside", entries[1].EntityID)
	assert.Equal(t, int64(1500), entries[1].DurationMS)
	assert.Len(t, entries[1].ID, 36)

	counts, err := rec.SourceCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"llm": 1, "fallback": 1}, counts)
}

func TestRecorderObserveDuringClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hydrations.db")
	rec, err := NewRecorder(path)
	require.NoError(t, err)

	outcome := narrative.Outcome{EntityID: "seaside", EntityKind: dataset.KindHotel, Source: narrative.SourceFallback}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec.Observe(outcome)
			}
		}()
	}
	require.NoError(t, rec.Close())
	wg.Wait()

	rec.Observe(outcome)
	assert.NoError(t, rec.Close())

	reopened, err := NewRecorder(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	entries, err := reopened.Recent(context.Background(), 500)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 400)
}

func TestPromptHashStable(t *testing.T) {
	assert.Equal(t, PromptHash("same"), PromptHash("same"))
	assert.NotEqual(t, PromptHash("same"), PromptHash("different"))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.Observe(narrative.Outcome{})
	rec.Flush()
	assert.NoError(t, rec.Close())
	entries, err := rec.Recent(context.Background(), 5)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}
