// Package render turns a finished snapshot into a platform-neutral chat
// message. Adapters decide how titles, fields and colors are drawn.
package render

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lazypower/statuscast/internal/profile"
	"github.com/lazypower/statuscast/internal/status"
)

// Message is a rendered status, shaped like a chat embed.
type Message struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       string  `json:"color"`
	Fields      []Field `json:"fields"`
	Footer      string  `json:"footer"`
}

// Field is one titled block of a Message.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Input is everything needed to render one update.
type Input struct {
	UserID      string
	Snapshot    status.Snapshot
	Previous    *status.Entry
	Preferences *profile.Preferences
	Now         time.Time
}

var themeColors = map[status.Theme]string{
	status.ThemeWork:     "#3498DB",
	status.ThemeGaming:   "#9B59B6",
	status.ThemeSocial:   "#E67E22",
	status.ThemeRest:     "#1ABC9C",
	status.ThemeCreative: "#E91E63",
	status.ThemeLearning: "#F1C40F",
	status.ThemeDefault:  "#95A5A6",
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ThemeColor returns the color used for theme when no accent is given.
func ThemeColor(theme status.Theme) string {
	if c, ok := themeColors[theme]; ok {
		return c
	}
	return themeColors[status.ThemeDefault]
}

// Color picks the message color: a preferred accent, then the snapshot's
// accent if it is a hex color, then the theme color.
func Color(s status.Snapshot, p *profile.Preferences) string {
	if p != nil && hexColor.MatchString(p.AccentColor) && !s.Failed() {
		return strings.ToUpper(p.AccentColor)
	}
	if hexColor.MatchString(s.AccentColor) {
		return strings.ToUpper(s.AccentColor)
	}
	return ThemeColor(s.VisualTheme)
}

// Render builds the message for in.
func Render(in Input) Message {
	s := in.Snapshot
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	title := strings.TrimSpace(s.MoodEmoji + " " + s.OverallStatus)
	if in.UserID != "" {
		title = fmt.Sprintf("%s · %s", in.UserID, title)
	}

	msg := Message{
		Title:       title,
		Description: s.NarrativeSummary,
		Color:       Color(s, in.Preferences),
		Footer:      footer(in.Previous, s.VisualTheme, now),
	}

	if len(s.Metrics) > 0 {
		lines := make([]string, 0, len(s.Metrics))
		for _, m := range s.Metrics {
			lines = append(lines, metricLine(m))
		}
		msg.Fields = append(msg.Fields, Field{Name: "Metrics", Value: strings.Join(lines, "\n")})
	}

	current, other := splitHighlights(s.Highlights)
	if len(current) > 0 {
		msg.Fields = append(msg.Fields, Field{Name: "Now", Value: strings.Join(current, "\n"), Inline: true})
	}
	if len(other) > 0 {
		msg.Fields = append(msg.Fields, Field{Name: "Earlier & Upcoming", Value: strings.Join(other, "\n"), Inline: true})
	}

	if len(s.PersonalStates) > 0 {
		lines := make([]string, 0, len(s.PersonalStates))
		for _, p := range s.PersonalStates {
			lines = append(lines, stateLine(p))
		}
		msg.Fields = append(msg.Fields, Field{Name: "Personal", Value: strings.Join(lines, "\n")})
	}

	if len(s.PersistentContext) > 0 {
		lines := make([]string, 0, len(s.PersistentContext))
		for _, c := range s.PersistentContext {
			lines = append(lines, "• "+c.Description)
		}
		msg.Fields = append(msg.Fields, Field{Name: "Context", Value: strings.Join(lines, "\n")})
	}

	if len(s.Errors) > 0 {
		msg.Fields = append(msg.Fields, Field{Name: "Errors", Value: strings.Join(s.Errors, "\n")})
	}
	return msg
}

func footer(prev *status.Entry, theme status.Theme, now time.Time) string {
	parts := []string{"theme: " + string(theme)}
	if prev != nil {
		if at, err := prev.Time(); err == nil {
			parts = append(parts, "previous update "+humanize.RelTime(at, now, "ago", "from now"))
		}
	}
	return strings.Join(parts, " · ")
}

func metricLine(m status.Metric) string {
	var b strings.Builder
	if m.Icon != "" {
		b.WriteString(m.Icon + " ")
	}
	fmt.Fprintf(&b, "%s: %s", m.Name, m.Value)
	if m.ValueRating.Known() {
		b.WriteString(" " + bar(int(m.ValueRating)))
	}
	if arrow := metricArrow(m.Trend); arrow != "" {
		b.WriteString(" " + arrow)
	}
	return b.String()
}

func stateLine(p status.PersonalState) string {
	var b strings.Builder
	if p.Emoji != "" {
		b.WriteString(p.Emoji + " ")
	}
	b.WriteString(p.Name)
	if p.Level.Known() {
		b.WriteString(" " + bar(int(p.Level)))
	}
	if p.TimeSinceLast != "" {
		b.WriteString(" · " + p.TimeSinceLast)
	}
	if arrow := stateArrow(p.Trend); arrow != "" {
		b.WriteString(" " + arrow)
	}
	return b.String()
}

func splitHighlights(hs []status.Highlight) (current, other []string) {
	for _, h := range hs {
		line := highlightIcon(h.Type) + " " + h.Description
		if h.IsNew {
			line += " 🆕"
		}
		switch h.Timeframe {
		case status.TimeframeCurrent, status.TimeframeOngoing:
			current = append(current, line)
		default:
			other = append(other, fmt.Sprintf("%s (%s)", line, h.Timeframe))
		}
	}
	return current, other
}

func bar(level int) string {
	level = min(max(level, 0), 5)
	return strings.Repeat("●", level) + strings.Repeat("○", 5-level)
}

func metricArrow(t status.MetricTrend) string {
	switch t {
	case status.MetricImproved:
		return "↑"
	case status.MetricWorsened:
		return "↓"
	case status.MetricUnchanged:
		return "→"
	}
	return ""
}

func stateArrow(t status.StateTrend) string {
	switch t {
	case status.StateIncreasing:
		return "↑"
	case status.StateDecreasing:
		return "↓"
	case status.StateStable:
		return "→"
	case status.StateNew:
		return "🆕"
	}
	return ""
}

func highlightIcon(t status.HighlightType) string {
	switch t {
	case status.HighlightActivity:
		return "▶️"
	case status.HighlightEvent:
		return "📅"
	case status.HighlightState:
		return "💭"
	case status.HighlightNeed:
		return "❗"
	case status.HighlightAchievement:
		return "🏆"
	case status.HighlightBlocker:
		return "🚧"
	}
	return "•"
}

// Text renders m as plain text.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Description != "" {
		b.WriteString("\n" + m.Description)
	}
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "\n\n%s\n%s", f.Name, f.Value)
	}
	if m.Footer != "" {
		b.WriteString("\n\n" + m.Footer)
	}
	return b.String()
}
