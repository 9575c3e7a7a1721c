package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	elapsedArticle = regexp.MustCompile(`\ban?\s+(month|week|day|hour|minute|second)`)
	elapsedPart    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-z]+)`)
)

// Units must match a whole word: "2 slices" is not two seconds.
var elapsedUnits = map[string]time.Duration{
	"month": 30 * 24 * time.Hour, "mo": 30 * 24 * time.Hour,
	"week":  7 * 24 * time.Hour, "wk": 7 * 24 * time.Hour, "w": 7 * 24 * time.Hour,
	"day": 24 * time.Hour, "d": 24 * time.Hour,
	"hour": time.Hour, "hr": time.Hour, "h": time.Hour,
	"minute": time.Minute, "min": time.Minute, "m": time.Minute,
	"second": time.Second, "sec": time.Second, "s": time.Second,
}

// ParseElapsed reads a human elapsed-time string such as "4h ago",
// "just now", "an hour ago" or "1h 30m". It reports false for strings that
// carry no duration ("unknown", "", free text).
func ParseElapsed(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return 0, false
	case "just now", "now", "right now", "moments ago", "a moment ago":
		return 0, true
	}

	s = elapsedArticle.ReplaceAllString(s, "1 $1")
	matches := elapsedPart.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, false
	}

	var total time.Duration
	for _, m := range matches {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		per, ok := elapsedUnit(m[2])
		if !ok {
			return 0, false
		}
		total += time.Duration(n * float64(per))
	}
	return total, true
}

func elapsedUnit(word string) (time.Duration, bool) {
	if per, ok := elapsedUnits[word]; ok {
		return per, true
	}
	if len(word) > 2 {
		per, ok := elapsedUnits[strings.TrimSuffix(word, "s")]
		return per, ok
	}
	return 0, false
}

// FormatElapsed renders d compactly: "just now", "25m ago", "4h ago",
// "4h 30m ago", "2d 3h ago".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		h := int(d / time.Hour)
		m := int((d % time.Hour) / time.Minute)
		if m == 0 {
			return fmt.Sprintf("%dh ago", h)
		}
		return fmt.Sprintf("%dh %dm ago", h, m)
	default:
		days := int(d / (24 * time.Hour))
		h := int((d % (24 * time.Hour)) / time.Hour)
		if h == 0 {
			return fmt.Sprintf("%dd ago", days)
		}
		return fmt.Sprintf("%dd %dh ago", days, h)
	}
}
