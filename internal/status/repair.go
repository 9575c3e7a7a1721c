package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorKind distinguishes why a completion could not be turned into a snapshot.
type ErrorKind string

const (
	KindEmptyResponse ErrorKind = "empty response"
	KindNoJSON        ErrorKind = "no JSON found"
	KindMalformedJSON ErrorKind = "malformed JSON"
	KindCompletion    ErrorKind = "completion failed"
)

// ParseError reports a completion that could not be parsed.
type ParseError struct {
	Kind ErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err. Errors that are not ParseErrors
// are completion failures.
func KindOf(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindCompletion
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

var validate = validator.New()

// Parse turns raw completion text into a normalized Snapshot.
// It tries a strict parse first, then fenced code blocks, then the first
// balanced object, then everything between the first '{' and the last '}'.
func Parse(raw string) (Snapshot, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return Snapshot{}, &ParseError{Kind: KindEmptyResponse}
	}

	s, err := decodeObject(content)
	if err == nil {
		return Normalize(s), nil
	}
	lastErr := err

	for _, candidate := range embeddedCandidates(content) {
		s, err := decodeObject(candidate)
		if err == nil {
			return Normalize(s), nil
		}
		lastErr = err
	}

	if !strings.Contains(content, "{") {
		return Snapshot{}, &ParseError{Kind: KindNoJSON}
	}
	return Snapshot{}, &ParseError{Kind: KindMalformedJSON, Err: lastErr}
}

// Repair is Parse that never fails: on error it returns Fallback.
func Repair(raw string) Snapshot {
	s, err := Parse(raw)
	if err != nil {
		return Fallback(err)
	}
	return s
}

func decodeObject(content string) (Snapshot, error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "{") {
		return Snapshot{}, fmt.Errorf("not a JSON object")
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(content), &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// embeddedCandidates lists substrings of content that may hold the object,
// most specific first.
func embeddedCandidates(content string) []string {
	var out []string
	for _, m := range fencedBlock.FindAllStringSubmatch(content, -1) {
		block := strings.TrimSpace(m[1])
		out = append(out, block)
		if obj, ok := balancedObject(block); ok && obj != block {
			out = append(out, obj)
		}
	}
	if obj, ok := balancedObject(content); ok {
		out = append(out, obj)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		out = append(out, content[start:end+1])
	}
	return out
}

// balancedObject returns the first brace-balanced object in s, honoring
// string literals and escapes.
func balancedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// Normalize fills absent arrays and coerces out-of-range fields to defaults.
func Normalize(s Snapshot) Snapshot {
	s = s.Clone()

	s.VisualTheme = Theme(strings.ToLower(strings.TrimSpace(string(s.VisualTheme))))
	repairFields(s, func(field string) {
		if field == "VisualTheme" {
			s.VisualTheme = ThemeDefault
		}
	})

	for i := range s.Metrics {
		m := &s.Metrics[i]
		m.Trend = MetricTrend(strings.ToLower(strings.TrimSpace(string(m.Trend))))
		m.ValueRating = clampRating(m.ValueRating)
		repairFields(*m, func(field string) {
			switch field {
			case "Trend":
				m.Trend = MetricNew
			case "ValueRating":
				m.ValueRating = 0
			}
		})
	}

	for i := range s.Highlights {
		h := &s.Highlights[i]
		h.Type = HighlightType(strings.ToLower(strings.TrimSpace(string(h.Type))))
		h.Timeframe = Timeframe(strings.ToLower(strings.TrimSpace(string(h.Timeframe))))
		repairFields(*h, func(field string) {
			if field == "Timeframe" {
				h.Timeframe = TimeframeCurrent
			}
		})
	}

	states := make([]PersonalState, 0, len(s.PersonalStates))
	for _, p := range s.PersonalStates {
		p.Name = strings.TrimSpace(p.Name)
		p.Trend = StateTrend(strings.ToLower(strings.TrimSpace(string(p.Trend))))
		p.Level = clampRating(p.Level)
		dropped := false
		repairFields(p, func(field string) {
			switch field {
			case "Name":
				dropped = true
			case "Trend":
				p.Trend = ""
			case "Level":
				p.Level = 0
			}
		})
		if !dropped {
			states = append(states, p)
		}
	}
	s.PersonalStates = states

	return s
}

func clampRating(r Rating) Rating {
	switch {
	case r <= 0:
		return 0
	case r > 5:
		return 5
	}
	return r
}

// repairFields validates v and calls fix for every failing field.
func repairFields(v any, fix func(field string)) {
	err := validate.Struct(v)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fix(fe.Field())
		}
	}
}

// FailureMessage is the user-visible error line for a failed analysis.
func FailureMessage(err error) string {
	var pe *ParseError
	errors.As(err, &pe)
	switch KindOf(err) {
	case KindEmptyResponse:
		return "LLM Processing Error: LLM returned empty response."
	case KindNoJSON:
		return "LLM Processing Error: no JSON found in LLM response."
	case KindMalformedJSON:
		if pe.Err == nil {
			return "LLM Processing Error: malformed JSON in LLM response."
		}
		return fmt.Sprintf("LLM Processing Error: malformed JSON in LLM response (%v).", pe.Err)
	default:
		return fmt.Sprintf("LLM Processing Error: %v", err)
	}
}

// Fallback builds the deterministic snapshot returned when analysis fails.
func Fallback(err error) Snapshot {
	if err == nil {
		err = &ParseError{Kind: KindEmptyResponse}
	}
	reason := string(KindOf(err))
	return Snapshot{
		OverallStatus: "Analysis Failed",
		MoodEmoji:     "⚠️",
		VisualTheme:   ThemeDefault,
		AccentColor:   "#E74C3C",
		Metrics: []Metric{{
			Name:  "Analysis",
			Value: "Failed",
			Trend: MetricNew,
			Icon:  "❌",
		}},
		Highlights: []Highlight{{
			Type:        HighlightBlocker,
			Description: "Status could not be analyzed: " + reason,
			Timeframe:   TimeframeCurrent,
			IsNew:       true,
		}},
		PersistentContext: []ContextItem{},
		PersonalStates:    []PersonalState{},
		NarrativeSummary:  "Status analysis failed; the raw update was kept but could not be structured.",
		Errors:            []string{FailureMessage(err)},
	}
}
