package status

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSnapshot = `{
	"overall_status": "Deep in a refactor",
	"mood_emoji": "🧑‍💻",
	"visual_theme": "work",
	"accent_color": "#3498DB",
	"metrics": [
		{"name": "Energy", "value": 3, "value_rating": "3", "trend": "worsened", "icon": "⚡"},
		{"name": "Focus", "value": "high", "trend": "new", "icon": "🎯"}
	],
	"highlights": [
		{"type": "activity", "description": "Refactoring the parser", "timeframe": "current", "is_new": true}
	],
	"persistent_context": [
		{"description": "Working on statuscast", "from_previous": true, "source_timestamp": "2026-10-19T08:00:00Z"}
	],
	"personal_states": [
		{"name": "Hunger", "emoji": "🍔", "level": 3, "time_since_last": "4h ago"}
	],
	"narrative_summary": "Focused on a parser refactor.",
	"errors": []
}`

func requireShape(t *testing.T, s Snapshot) {
	t.Helper()
	require.NotNil(t, s.Metrics)
	require.NotNil(t, s.Highlights)
	require.NotNil(t, s.PersistentContext)
	require.NotNil(t, s.PersonalStates)
	require.NotNil(t, s.Errors)
}

func TestParseStrict(t *testing.T) {
	s, err := Parse(validSnapshot)
	require.NoError(t, err)

	assert.Equal(t, "Deep in a refactor", s.OverallStatus)
	assert.Equal(t, ThemeWork, s.VisualTheme)
	require.Len(t, s.Metrics, 2)
	assert.Equal(t, Text("3"), s.Metrics[0].Value)
	assert.Equal(t, Rating(3), s.Metrics[0].ValueRating)
	require.Len(t, s.PersonalStates, 1)
	assert.Equal(t, Rating(3), s.PersonalStates[0].Level)
	assert.Empty(t, s.Errors)
}

func TestParseEmbedded(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"fenced json", "```json\n" + validSnapshot + "\n```"},
		{"fenced bare", "```\n" + validSnapshot + "\n```"},
		{"prose around fence", "Here is the status:\n```json\n" + validSnapshot + "\n```\nLet me know!"},
		{"prose around object", "Sure! " + validSnapshot + " Hope that helps."},
		{"trailing braces in prose", "Result: " + validSnapshot + " (note: {braces} in text)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "Deep in a refactor", s.OverallStatus)
			assert.Empty(t, s.Errors)
			requireShape(t, s)
		})
	}
}

func TestParseFailureKinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  ErrorKind
	}{
		{"empty", "", KindEmptyResponse},
		{"whitespace", "   \n\t", KindEmptyResponse},
		{"prose", "I could not work out a status from that.", KindNoJSON},
		{"truncated", `{"overall_status": "Tired", "metrics": [{"name": "Energy"`, KindMalformedJSON},
		{"array", `[1, 2, 3]`, KindNoJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestRepairAlwaysReturnsShape(t *testing.T) {
	inputs := []string{
		"",
		"no json here",
		"```json\n{\"overall_status\": \"ok\"}\n```",
		`{"overall_status": "half`,
		`{}`,
		validSnapshot,
	}
	for _, in := range inputs {
		s := Repair(in)
		requireShape(t, s)
	}
}

func TestRepairFallback(t *testing.T) {
	s := Repair("")
	requireShape(t, s)
	assert.Equal(t, "Analysis Failed", s.OverallStatus)
	assert.Equal(t, ThemeDefault, s.VisualTheme)
	assert.Len(t, s.Metrics, 1)
	assert.Len(t, s.Highlights, 1)
	assert.Empty(t, s.PersistentContext)
	assert.Empty(t, s.PersonalStates)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "LLM Processing Error: LLM returned empty response.", s.Errors[0])
}

func TestFallbackMessagesDistinguishKinds(t *testing.T) {
	empty := Repair("").Errors[0]
	noJSON := Repair("nothing to see").Errors[0]
	malformed := Repair(`{"overall_status": `).Errors[0]

	assert.Contains(t, empty, "empty response")
	assert.Contains(t, noJSON, "no JSON found")
	assert.Contains(t, malformed, "malformed JSON")
}

func TestNormalizeCoercesFields(t *testing.T) {
	s, err := Parse(`{
		"visual_theme": "Party",
		"metrics": [{"name": "Mood", "value": "ok", "trend": "sideways", "value_rating": 9}],
		"highlights": [
			{"type": "Activity", "description": "x", "timeframe": "someday"},
			{"type": " Mood ", "description": "y", "timeframe": "current"}
		],
		"personal_states": [
			{"name": "  Sleep ", "level": "7", "trend": "up"},
			{"name": "", "level": 2}
		]
	}`)
	require.NoError(t, err)

	assert.Equal(t, ThemeDefault, s.VisualTheme)
	assert.Equal(t, MetricNew, s.Metrics[0].Trend)
	assert.Equal(t, Rating(5), s.Metrics[0].ValueRating)
	assert.Equal(t, HighlightActivity, s.Highlights[0].Type)
	assert.Equal(t, TimeframeCurrent, s.Highlights[0].Timeframe)
	assert.Equal(t, HighlightType("mood"), s.Highlights[1].Type, "unknown types are kept")

	require.Len(t, s.PersonalStates, 1, "unnamed states are dropped")
	assert.Equal(t, "Sleep", s.PersonalStates[0].Name)
	assert.Equal(t, Rating(5), s.PersonalStates[0].Level)
	assert.Equal(t, StateTrend(""), s.PersonalStates[0].Trend)
	requireShape(t, s)
}

func TestRatingUnparseable(t *testing.T) {
	s, err := Parse(`{"personal_states": [{"name": "Hunger", "level": "very"}]}`)
	require.NoError(t, err)
	assert.False(t, s.PersonalStates[0].Level.Known())
}

func TestStripScores(t *testing.T) {
	score := 0.5
	s := Snapshot{
		Metrics:           []Metric{{Name: "Energy", RelevanceScore: &score}},
		Highlights:        []Highlight{{Description: "x", RelevanceScore: &score}},
		PersistentContext: []ContextItem{{Description: "y", RelevanceScore: &score}},
	}
	stripped := s.StripScores()

	assert.Nil(t, stripped.Metrics[0].RelevanceScore)
	assert.Nil(t, stripped.Highlights[0].RelevanceScore)
	assert.Nil(t, stripped.PersistentContext[0].RelevanceScore)
	assert.NotNil(t, s.Metrics[0].RelevanceScore, "input must not be mutated")
}

func TestParseTimestamp(t *testing.T) {
	for _, in := range []string{
		"2026-10-19T08:00:00Z",
		"2026-10-19T08:00:00.123456+02:00",
		"2026-10-19T08:00:00.123456",
		"2026-10-19 08:00:00",
	} {
		_, err := ParseTimestamp(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseTimestamp("yesterday-ish")
	assert.Error(t, err)
}

func TestBalancedObjectIgnoresBracesInStrings(t *testing.T) {
	in := `prefix {"a": "}{", "b": {"c": 1}} suffix }`
	obj, ok := balancedObject(in)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(obj, `{"c": 1}}`))
}
