package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lazypower/statuscast/internal/llm"
	"github.com/lazypower/statuscast/internal/profile"
	"github.com/lazypower/statuscast/internal/status"
	"github.com/lazypower/statuscast/internal/store"
)

var testNow = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

const reportJSON = `{
  "overall_status": "Heads down on the report",
  "mood_emoji": "🧐",
  "visual_theme": "work",
  "accent_color": "#3498DB",
  "metrics": [{"name": "Focus", "value": "High", "value_rating": 4, "trend": "new", "icon": "🎯"}],
  "highlights": [{"type": "activity", "description": "Writing the quarterly report", "timeframe": "current", "is_new": true}],
  "persistent_context": [],
  "personal_states": [{"name": "Hunger", "emoji": "🍔", "level": 1}],
  "narrative_summary": "Focused on the report.",
  "errors": []
}`

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(st Store, client llm.Client, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return New(st, client, nil, opts)
}

func threshold(t float64) *float64 { return &t }

func reply(content string) *llm.MockClient {
	return &llm.MockClient{Response: &llm.Response{Content: content, Provider: "mock"}}
}

func seed(t *testing.T, db *store.DB, userID string, at time.Time, raw string, snap status.Snapshot) {
	t.Helper()
	snap.EnsureArrays()
	err := db.AppendHistory(context.Background(), userID, status.Entry{
		ID:              "seed-" + at.Format("150405"),
		Timestamp:       status.FormatTimestamp(at),
		RawInput:        raw,
		ProcessedStatus: snap,
	}, 20)
	require.NoError(t, err)
}

type brokenStore struct {
	*store.DB
	readErr  error
	writeErr error
}

func (b *brokenStore) GetLatest(ctx context.Context, userID string) (*store.LatestEntry, error) {
	if b.readErr != nil {
		return nil, b.readErr
	}
	return b.DB.GetLatest(ctx, userID)
}

func (b *brokenStore) AppendHistory(ctx context.Context, userID string, e status.Entry, capacity int) error {
	if b.writeErr != nil {
		return b.writeErr
	}
	return b.DB.AppendHistory(ctx, userID, e, capacity)
}

func TestProcessFirstUpdate(t *testing.T) {
	db := testDB(t)
	mock := reply(reportJSON)
	eng := testEngine(db, mock, Options{})

	res, err := eng.Process(context.Background(), "alice", "  working on the quarterly report, just ate  ")
	require.NoError(t, err)

	assert.Equal(t, "alice", res.UserID)
	assert.True(t, res.Persisted)
	assert.False(t, res.Failed())
	assert.Nil(t, res.Previous)
	assert.False(t, res.ContextUsed)
	assert.Equal(t, "Writing the quarterly report", res.Activity)
	assert.Equal(t, "working on the quarterly report, just ate", res.Entry.RawInput)
	assert.Equal(t, "2024-05-01T18:00:00Z", res.Entry.Timestamp)

	require.Len(t, res.Entry.ProcessedStatus.PersonalStates, 1)
	hunger := res.Entry.ProcessedStatus.PersonalStates[0]
	assert.Equal(t, status.StateNew, hunger.Trend)
	assert.Empty(t, hunger.TimeSinceLast)

	require.Equal(t, 1, mock.CallCount())
	call := mock.LastCall()
	assert.Equal(t, llm.StatusSystemPrompt(), call.System)
	assert.NotContains(t, call.User, "PRIOR CONTEXT")
	assert.Contains(t, call.User, "working on the quarterly report")

	latest, err := db.GetLatest(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, res.Entry.ID, latest.ID)
}

func TestProcessInputErrors(t *testing.T) {
	tests := []struct {
		name, user, text string
		want             error
	}{
		{"empty text", "alice", "", ErrEmptyStatus},
		{"whitespace text", "alice", " \n\t ", ErrEmptyStatus},
		{"missing user", "", "hello", ErrMissingUser},
		{"blank user", "   ", "hello", ErrMissingUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := reply(reportJSON)
			eng := testEngine(testDB(t), mock, Options{})

			res, err := eng.Process(context.Background(), tt.user, tt.text)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsInputError(err))
			assert.Zero(t, mock.CallCount(), "rejected before any processing")
		})
	}
}

func TestProcessDropsStaleContext(t *testing.T) {
	db := testDB(t)
	seed(t, db, "alice", testNow.Add(-8*time.Hour), "exhausted, starting the quarterly report", status.Snapshot{
		OverallStatus: "Starting the report",
		Metrics:       []status.Metric{{Name: "Energy", Value: "Drained", Trend: status.MetricNew}},
		Highlights: []status.Highlight{
			{Type: status.HighlightActivity, Description: "Drafting the quarterly report", Timeframe: status.TimeframeOngoing},
		},
	})
	mock := reply(reportJSON)
	eng := testEngine(db, mock, Options{Threshold: threshold(0.3)})

	res, err := eng.Process(context.Background(), "alice", "still on the report")
	require.NoError(t, err)
	assert.True(t, res.ContextUsed)
	require.NotNil(t, res.Previous)
	assert.Equal(t, "exhausted, starting the quarterly report", res.Previous.RawInput)

	user := mock.LastCall().User
	assert.Contains(t, user, "PRIOR CONTEXT")
	assert.Contains(t, user, "Drafting the quarterly report")
	assert.NotContains(t, user, "Drained", "physical metric decayed to zero")
	assert.Contains(t, user, "PREVIOUS UPDATE TEXT:\nexhausted, starting the quarterly report")
}

func TestProcessAllContextStale(t *testing.T) {
	db := testDB(t)
	seed(t, db, "alice", testNow.Add(-72*time.Hour), "tired", status.Snapshot{
		Metrics: []status.Metric{{Name: "Energy", Value: "Low", Trend: status.MetricNew}},
	})
	mock := reply(reportJSON)

	res, err := testEngine(db, mock, Options{}).Process(context.Background(), "alice", "back at it")
	require.NoError(t, err)
	assert.False(t, res.ContextUsed)
	assert.NotContains(t, mock.LastCall().User, "PRIOR CONTEXT")
	assert.Contains(t, mock.LastCall().User, "PREVIOUS UPDATE TEXT", "raw text is still offered")
}

func TestProcessZeroThresholdKeepsDecayedContext(t *testing.T) {
	db := testDB(t)
	seed(t, db, "alice", testNow.Add(-8*time.Hour), "exhausted", status.Snapshot{
		Metrics: []status.Metric{{Name: "Energy", Value: "Drained", Trend: status.MetricNew}},
	})
	mock := reply(reportJSON)
	eng := testEngine(db, mock, Options{Threshold: threshold(0)})
	assert.Equal(t, 0.0, *eng.opts.Threshold)

	res, err := eng.Process(context.Background(), "alice", "still tired")
	require.NoError(t, err)
	assert.True(t, res.ContextUsed)
	assert.Contains(t, mock.LastCall().User, "Drained", "a score of 0 meets a threshold of 0")
}

func TestNewThresholdDefaults(t *testing.T) {
	eng := testEngine(testDB(t), reply(reportJSON), Options{})
	assert.Equal(t, DefaultThreshold, *eng.opts.Threshold)

	core, logs := observer.New(zap.WarnLevel)
	eng = New(testDB(t), reply(reportJSON), zap.New(core), Options{Threshold: threshold(3)})
	assert.Equal(t, DefaultThreshold, *eng.opts.Threshold)
	assert.Equal(t, 1, logs.FilterMessage("relevance threshold out of range, using default").Len())
}

func TestProcessNilResponse(t *testing.T) {
	res, err := testEngine(testDB(t), &llm.MockClient{}, Options{}).Process(context.Background(), "alice", "hi")
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.True(t, res.Persisted)
	require.NotEmpty(t, res.Entry.ProcessedStatus.Errors)
	assert.Contains(t, res.Entry.ProcessedStatus.Errors[0], "empty response")
}

func TestProcessFencedJSON(t *testing.T) {
	mock := reply("Sure! Here you go:\n```json\n" + reportJSON + "\n```\nLet me know.")
	res, err := testEngine(testDB(t), mock, Options{}).Process(context.Background(), "alice", "report time")
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, "Heads down on the report", res.Entry.ProcessedStatus.OverallStatus)
}

func TestProcessFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		client  *llm.MockClient
		wantErr string
	}{
		{"empty response", reply(""), "LLM Processing Error: LLM returned empty response."},
		{"prose only", reply("I could not understand that."), "no JSON found"},
		{"truncated", reply(`{"overall_status": "half`), "malformed JSON"},
		{"transport error", &llm.MockClient{Err: &llm.APIError{Provider: "anthropic", StatusCode: 529, Body: "overloaded"}}, "LLM Processing Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			res, err := testEngine(db, tt.client, Options{}).Process(context.Background(), "alice", "hello")
			require.NoError(t, err)

			snap := res.Entry.ProcessedStatus
			assert.True(t, res.Failed())
			assert.Equal(t, "Analysis Failed", snap.OverallStatus)
			require.Len(t, snap.Errors, 1)
			assert.Contains(t, snap.Errors[0], tt.wantErr)
			assert.NotNil(t, snap.PersonalStates)
			assert.NotNil(t, snap.PersistentContext)

			assert.True(t, res.Persisted, "the update is kept even when analysis fails")
			n, err := db.CountHistory(context.Background(), "alice")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestProcessCompletionTimeout(t *testing.T) {
	mock := &llm.MockClient{Func: func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	eng := testEngine(testDB(t), mock, Options{CompletionTimeout: 20 * time.Millisecond})

	res, err := eng.Process(context.Background(), "alice", "hello")
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Entry.ProcessedStatus.Errors[0], "deadline exceeded")
}

func TestProcessCallerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &llm.MockClient{Func: func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
		cancel()
		return nil, ctx.Err()
	}}
	db := testDB(t)

	res, err := testEngine(db, mock, Options{}).Process(ctx, "alice", "hello")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsInputError(err))

	n, err := db.CountHistory(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessReconcilesStates(t *testing.T) {
	db := testDB(t)
	seed(t, db, "alice", testNow.Add(-2*time.Hour), "starving", status.Snapshot{
		PersonalStates: []status.PersonalState{{Name: "Hunger", Level: 4, TimeSinceLast: "4h ago", Trend: status.StateNew}},
	})

	res, err := testEngine(db, reply(reportJSON), Options{}).Process(context.Background(), "alice", "had a sandwich")
	require.NoError(t, err)

	require.Len(t, res.Entry.ProcessedStatus.PersonalStates, 1)
	hunger := res.Entry.ProcessedStatus.PersonalStates[0]
	assert.Equal(t, status.StateDecreasing, hunger.Trend)
	assert.Equal(t, "6h ago", hunger.TimeSinceLast)
	d, ok := hunger.Elapsed()
	require.True(t, ok)
	assert.Equal(t, 6*time.Hour, d)
}

func TestProcessContextUnavailable(t *testing.T) {
	db := testDB(t)
	seed(t, db, "alice", testNow.Add(-time.Hour), "earlier", status.Snapshot{OverallStatus: "earlier"})
	st := &brokenStore{DB: db, readErr: errors.New("disk on fire")}
	mock := reply(reportJSON)

	res, err := testEngine(st, mock, Options{}).Process(context.Background(), "alice", "hello")
	require.NoError(t, err)
	assert.Nil(t, res.Previous)
	assert.False(t, res.ContextUsed)
	assert.True(t, res.Persisted)
	assert.Equal(t, status.StateNew, res.Entry.ProcessedStatus.PersonalStates[0].Trend)
}

func TestProcessPersistenceFailure(t *testing.T) {
	st := &brokenStore{DB: testDB(t), writeErr: errors.New("read-only filesystem")}

	res, err := testEngine(st, reply(reportJSON), Options{}).Process(context.Background(), "alice", "hello")
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Equal(t, "Heads down on the report", res.Display.OverallStatus, "still answered from memory")
}

func TestProcessAppliesPreferencesAfterSynthesis(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.SavePreferences(context.Background(), "alice", profile.Preferences{
		PreferredTheme: status.ThemeGaming,
		EmojiOverrides: map[string]string{"mood": "🤖"},
	}))

	res, err := testEngine(db, reply(reportJSON), Options{}).Process(context.Background(), "alice", "hello")
	require.NoError(t, err)
	require.NotNil(t, res.Preferences)
	assert.Equal(t, status.ThemeGaming, res.Display.VisualTheme)
	assert.Equal(t, "🤖", res.Display.MoodEmoji)

	assert.Equal(t, status.ThemeWork, res.Entry.ProcessedStatus.VisualTheme, "stored snapshot is undecorated")
	latest, err := db.GetLatest(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "🧐", latest.ProcessedStatus.MoodEmoji)
}

func TestProcessHistoryCap(t *testing.T) {
	db := testDB(t)
	eng := testEngine(db, reply(reportJSON), Options{HistoryCap: 3})
	for i := 0; i < 5; i++ {
		_, err := eng.Process(context.Background(), "alice", "update")
		require.NoError(t, err)
	}
	n, err := db.CountHistory(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestProcessStrictOrderingConflict(t *testing.T) {
	db := testDB(t)
	seed(t, db, "alice", testNow.Add(-time.Hour), "earlier", status.Snapshot{OverallStatus: "earlier"})

	// Another update lands while the model is thinking.
	mock := &llm.MockClient{Func: func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
		seed(t, db, "alice", testNow.Add(-time.Minute), "racing", status.Snapshot{OverallStatus: "racing"})
		return &llm.Response{Content: reportJSON}, nil
	}}

	res, err := testEngine(db, mock, Options{StrictOrdering: true}).Process(context.Background(), "alice", "hello")
	require.NoError(t, err)
	assert.False(t, res.Persisted)

	latest, err := db.GetLatest(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "racing", latest.RawInput, "the concurrent write is not clobbered")
}

func TestProcessStrictOrderingFirstWrite(t *testing.T) {
	db := testDB(t)
	res, err := testEngine(db, reply(reportJSON), Options{StrictOrdering: true}).Process(context.Background(), "alice", "hello")
	require.NoError(t, err)
	assert.True(t, res.Persisted)
}

func TestProcessSkipsFailedPreviousContext(t *testing.T) {
	db := testDB(t)
	seed(t, db, "alice", testNow.Add(-time.Minute), "hello", status.Fallback(&status.ParseError{Kind: status.KindNoJSON}))
	mock := reply(reportJSON)

	res, err := testEngine(db, mock, Options{}).Process(context.Background(), "alice", "try again")
	require.NoError(t, err)
	assert.False(t, res.ContextUsed)
	assert.False(t, strings.Contains(mock.LastCall().User, "Analysis Failed"))
}

func TestCurrentActivity(t *testing.T) {
	tests := []struct {
		name       string
		highlights []status.Highlight
		want       string
	}{
		{"none", nil, ""},
		{"past activity", []status.Highlight{{Type: status.HighlightActivity, Description: "ran", Timeframe: status.TimeframePast}}, ""},
		{"ongoing", []status.Highlight{
			{Type: status.HighlightEvent, Description: "meeting", Timeframe: status.TimeframeCurrent},
			{Type: status.HighlightActivity, Description: "coding", Timeframe: status.TimeframeOngoing},
			{Type: status.HighlightActivity, Description: "reading", Timeframe: status.TimeframeCurrent},
		}, "coding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentActivity(status.Snapshot{Highlights: tt.highlights}))
		})
	}
}
