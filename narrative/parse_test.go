package narrative

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNarrativeCanonical(t *testing.T) {
	n, err := ParseNarrative(validLLMJSON)
	require.NoError(t, err)
	assert.Equal(t, "Seaside Inn delivered $53,000 in Q3 2025", n.Headline)
	assert.Len(t, n.Takeaways, 5)
	assert.Equal(t, "Approve Phase 2 by November 30.", n.CriticalDecision.Description)
	assert.Equal(t, "2025-11-30", n.NextSteps[0].TargetDate)
	assert.Empty(t, n.NextSteps[0].TargetPeriod)
	assert.Equal(t, "Q4 2025", n.NextSteps[1].TargetPeriod)
}

func TestParseNarrativeStripsFencesAndChatter(t *testing.T) {
	raw := "Here you go:\n```json\n" + validLLMJSON + "\n```"
	n, err := ParseNarrative(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, n.Headline)
}

func TestParseNarrativeNormalizesAlternateFields(t *testing.T) {
	raw := `{
		"headline": "h",
		"opening_statement_primary": "o",
		"top_5_takeaways": ["a", "b", "c", "d"],
		"critical_decision_narrative": "Approve the expansion.",
		"next_steps": [{"description": "Approve", "date": "2025-11-30"}, {"description": "Review", "target_period": "Q4 2025"}]
	}`
	n, err := ParseNarrative(raw)
	require.NoError(t, err)
	assert.Equal(t, "Approve the expansion.", n.CriticalDecision.Description)
	assert.Equal(t, "2025-11-30", n.NextSteps[0].TargetDate)
	assert.Empty(t, n.DeclineAcknowledgement)

	raw = `{
		"headline": "h",
		"opening_statement_primary": "o",
		"top_5_takeaways": ["a", "b", "c", "d"],
		"critical_decision": "Approve as a string.",
		"next_steps": [{"description": "Review", "target_period": "Q4 2025"}, {"description": "Approve", "target_date": "2025-11-30"}]
	}`
	n, err = ParseNarrative(raw)
	require.NoError(t, err)
	assert.Equal(t, "Approve as a string.", n.CriticalDecision.Description)
}

func TestParseNarrativeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        "I cannot help with that.",
		"broken json":     `{"headline": "h",`,
		"wrong type":      `{"headline": 5}`,
		"too few":         `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c"],"critical_decision":"d","next_steps":[{"description":"x","target_period":"p"},{"description":"y","target_period":"p"}]}`,
		"too many":        `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d","e","f"],"critical_decision":"d","next_steps":[{"description":"x","target_period":"p"},{"description":"y","target_period":"p"}]}`,
		"both targets":    `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d"],"critical_decision":"d","next_steps":[{"description":"x","target_date":"2025-01-01","target_period":"p"},{"description":"y","target_period":"p"}]}`,
		"no target":       `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d"],"critical_decision":"d","next_steps":[{"description":"x"},{"description":"y","target_period":"p"}]}`,
		"no decision":     `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d"],"next_steps":[{"description":"x","target_period":"p"},{"description":"y","target_period":"p"}]}`,
		"empty headline":  `{"headline":" ","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d"],"critical_decision":"d","next_steps":[{"description":"x","target_period":"p"},{"description":"y","target_period":"p"}]}`,
		"no next steps":   `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d"],"critical_decision":"d","next_steps":[]}`,
		"one next step":   `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d"],"critical_decision":"d","next_steps":[{"description":"x","target_period":"p"}]}`,
		"five next steps": `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d"],"critical_decision":"d","next_steps":[{"description":"1","target_period":"p"},{"description":"2","target_period":"p"},{"description":"3","target_period":"p"},{"description":"4","target_period":"p"},{"description":"5","target_period":"p"}]}`,
		"decision number": `{"headline":"h","opening_statement_primary":"o","top_5_takeaways":["a","b","c","d"],"critical_decision":7,"next_steps":[{"description":"x","target_period":"p"},{"description":"y","target_period":"p"}]}`,
	}
	for name, raw := range cases {
		_, err := ParseNarrative(raw)
		if !errors.Is(err, ErrMalformedNarrative) {
			t.Fatalf("%s: expected ErrMalformedNarrative, got %v", name, err)
		}
	}
}

func TestCheckDecline(t *testing.T) {
	n, err := ParseNarrative(validLLMJSON)
	require.NoError(t, err)
	assert.NoError(t, n.CheckDecline(true))
	n.DeclineAcknowledgement = ""
	assert.ErrorIs(t, n.CheckDecline(true), ErrMalformedNarrative)
	assert.NoError(t, n.CheckDecline(false))
}
