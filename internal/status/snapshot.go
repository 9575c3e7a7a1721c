// Package status defines the structured status snapshot produced for each
// user update, and the defensive parsing that turns raw LLM output into one.
package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Theme is the visual theme of a rendered status.
type Theme string

const (
	ThemeWork     Theme = "work"
	ThemeGaming   Theme = "gaming"
	ThemeSocial   Theme = "social"
	ThemeRest     Theme = "rest"
	ThemeCreative Theme = "creative"
	ThemeLearning Theme = "learning"
	ThemeDefault  Theme = "default"
)

// Themes lists every valid theme in display order.
var Themes = []Theme{ThemeWork, ThemeGaming, ThemeSocial, ThemeRest, ThemeCreative, ThemeLearning, ThemeDefault}

// MetricTrend describes how a metric moved since the previous update.
type MetricTrend string

const (
	MetricImproved  MetricTrend = "improved"
	MetricWorsened  MetricTrend = "worsened"
	MetricUnchanged MetricTrend = "unchanged"
	MetricNew       MetricTrend = "new"
)

// HighlightType classifies a highlight.
type HighlightType string

const (
	HighlightActivity    HighlightType = "activity"
	HighlightEvent       HighlightType = "event"
	HighlightState       HighlightType = "state"
	HighlightNeed        HighlightType = "need"
	HighlightAchievement HighlightType = "achievement"
	HighlightBlocker     HighlightType = "blocker"
)

// Timeframe places a highlight in time.
type Timeframe string

const (
	TimeframePast    Timeframe = "past"
	TimeframeCurrent Timeframe = "current"
	TimeframeFuture  Timeframe = "future"
	TimeframeOngoing Timeframe = "ongoing"
)

// StateTrend is the direction a personal state's level moved.
type StateTrend string

const (
	StateIncreasing StateTrend = "increasing"
	StateDecreasing StateTrend = "decreasing"
	StateStable     StateTrend = "stable"
	StateNew        StateTrend = "new"
)

// Snapshot is the structured result of analyzing one status update.
// Array fields are never nil after Normalize.
type Snapshot struct {
	OverallStatus     string          `json:"overall_status"`
	MoodEmoji         string          `json:"mood_emoji"`
	VisualTheme       Theme           `json:"visual_theme" validate:"oneof=work gaming social rest creative learning default"`
	AccentColor       string          `json:"accent_color"`
	Metrics           []Metric        `json:"metrics"`
	Highlights        []Highlight     `json:"highlights"`
	PersistentContext []ContextItem   `json:"persistent_context"`
	PersonalStates    []PersonalState `json:"personal_states"`
	NarrativeSummary  string          `json:"narrative_summary"`
	Errors            []string        `json:"errors"`
}

// Metric is a single named measurement of the user's status.
type Metric struct {
	Name           string      `json:"name"`
	Value          Text        `json:"value"`
	ValueRating    Rating      `json:"value_rating,omitempty" validate:"omitempty,min=1,max=5"`
	Trend          MetricTrend `json:"trend" validate:"oneof=improved worsened unchanged new"`
	Icon           string      `json:"icon"`
	RelevanceScore *float64    `json:"relevance_score,omitempty"`
}

// Highlight is a notable activity, event, need or blocker.
type Highlight struct {
	// Type is kept as given when unrecognized; such highlights decay on
	// the default span.
	Type           HighlightType `json:"type"`
	Description    string        `json:"description"`
	Timeframe      Timeframe     `json:"timeframe" validate:"oneof=past current future ongoing"`
	IsNew          bool          `json:"is_new"`
	RelevanceScore *float64      `json:"relevance_score,omitempty"`
}

// ContextItem is longer-lived context carried between updates.
type ContextItem struct {
	Description     string   `json:"description"`
	FromPrevious    bool     `json:"from_previous"`
	SourceTimestamp string   `json:"source_timestamp,omitempty"`
	RelevanceScore  *float64 `json:"relevance_score,omitempty"`
}

// PersonalState is a slowly-changing, leveled need such as hunger or sleep.
// ElapsedSeconds is the machine form of TimeSinceLast; the string is only a
// rendering of it.
type PersonalState struct {
	Name           string     `json:"name" validate:"required"`
	Emoji          string     `json:"emoji"`
	Level          Rating     `json:"level" validate:"omitempty,min=1,max=5"`
	TimeSinceLast  string     `json:"time_since_last,omitempty"`
	ElapsedSeconds *int64     `json:"elapsed_seconds,omitempty"`
	Trend          StateTrend `json:"trend,omitempty" validate:"omitempty,oneof=increasing decreasing stable new"`
}

// Elapsed returns the state's elapsed time as a duration, if known.
func (p PersonalState) Elapsed() (time.Duration, bool) {
	if p.ElapsedSeconds == nil {
		return 0, false
	}
	return time.Duration(*p.ElapsedSeconds) * time.Second, true
}

// SetElapsed records d as the state's elapsed time.
func (p *PersonalState) SetElapsed(d time.Duration) {
	secs := int64(d / time.Second)
	p.ElapsedSeconds = &secs
}

// Entry is the durable wrapper around one processed update.
type Entry struct {
	ID              string   `json:"id,omitempty"`
	Timestamp       string   `json:"timestamp"`
	RawInput        string   `json:"raw_input"`
	ProcessedStatus Snapshot `json:"processed_status"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 timestamp. Zone-less values are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// FormatTimestamp renders t the way entries store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Time returns the parsed entry timestamp.
func (e Entry) Time() (time.Time, error) {
	return ParseTimestamp(e.Timestamp)
}

// EnsureArrays replaces nil array fields with empty slices.
func (s *Snapshot) EnsureArrays() {
	if s.Metrics == nil {
		s.Metrics = []Metric{}
	}
	if s.Highlights == nil {
		s.Highlights = []Highlight{}
	}
	if s.PersistentContext == nil {
		s.PersistentContext = []ContextItem{}
	}
	if s.PersonalStates == nil {
		s.PersonalStates = []PersonalState{}
	}
	if s.Errors == nil {
		s.Errors = []string{}
	}
}

// Clone returns a copy whose slices can be modified independently.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Metrics = append([]Metric(nil), s.Metrics...)
	c.Highlights = append([]Highlight(nil), s.Highlights...)
	c.PersistentContext = append([]ContextItem(nil), s.PersistentContext...)
	c.PersonalStates = append([]PersonalState(nil), s.PersonalStates...)
	c.Errors = append([]string(nil), s.Errors...)
	c.EnsureArrays()
	return c
}

// StripScores returns a copy with every relevance score removed.
// Scores are scratch values and never persisted.
func (s Snapshot) StripScores() Snapshot {
	c := s.Clone()
	for i := range c.Metrics {
		c.Metrics[i].RelevanceScore = nil
	}
	for i := range c.Highlights {
		c.Highlights[i].RelevanceScore = nil
	}
	for i := range c.PersistentContext {
		c.PersistentContext[i].RelevanceScore = nil
	}
	return c
}

// Failed reports whether the snapshot carries errors.
func (s Snapshot) Failed() bool {
	return len(s.Errors) > 0
}

// Text is a string that also accepts JSON numbers and booleans,
// since models emit "value": 7 as often as "value": "7".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	if data[0] == '{' || data[0] == '[' {
		return fmt.Errorf("value must be text or number, got %s", data)
	}
	*t = Text(data)
	return nil
}

// Rating is a 1..5 level. Zero means unknown; values the model writes as
// strings or floats are accepted, anything else decodes to unknown.
type Rating int

// Known reports whether the rating holds a usable level.
func (r Rating) Known() bool {
	return r > 0
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rating) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = 0
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*r = Rating(math.Round(f))
	return nil
}
