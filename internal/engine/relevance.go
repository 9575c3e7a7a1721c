package engine

import (
	"strings"
	"time"

	"github.com/lazypower/statuscast/internal/status"
)

// Category selects the decay span used to score a context element.
type Category string

const (
	CategoryPhysical    Category = "physical"
	CategoryEmotional   Category = "emotional"
	CategoryActivity    Category = "activity"
	CategoryEvent       Category = "event"
	CategoryState       Category = "state"
	CategoryNeed        Category = "need"
	CategoryAchievement Category = "achievement"
	CategoryDefault     Category = "default"
)

// decaySpans is the number of hours after which an element of each
// category is considered fully stale.
var decaySpans = map[Category]float64{
	CategoryPhysical:    6,
	CategoryEmotional:   12,
	CategoryState:       12,
	CategoryEvent:       24,
	CategoryActivity:    36,
	CategoryNeed:        8,
	CategoryAchievement: 48,
	CategoryDefault:     18,
}

// DecaySpan returns the decay span for c, falling back to the default span.
func DecaySpan(c Category) float64 {
	if span, ok := decaySpans[c]; ok {
		return span
	}
	return decaySpans[CategoryDefault]
}

// Decay scores an element of category c that is hoursElapsed old.
// Linear: 1 at zero, 0 at or beyond the category span.
func Decay(c Category, hoursElapsed float64) float64 {
	if hoursElapsed < 0 {
		hoursElapsed = -hoursElapsed
	}
	score := 1 - hoursElapsed/DecaySpan(c)
	if score < 0 {
		return 0
	}
	return score
}

// Classifier maps a metric name to a category.
type Classifier func(metricName string) Category

var metricKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryPhysical, []string{"energy", "hunger", "sleep", "tired", "physical"}},
	{CategoryEmotional, []string{"focus", "mood", "stress", "feeling"}},
	{CategoryActivity, []string{"project", "work", "task", "progress", "coding", "writing"}},
}

// KeywordClassifier is the default Classifier: a case-insensitive substring
// match against fixed keyword sets.
func KeywordClassifier(metricName string) Category {
	name := strings.ToLower(metricName)
	for _, set := range metricKeywords {
		for _, kw := range set.keywords {
			if strings.Contains(name, kw) {
				return set.category
			}
		}
	}
	return CategoryDefault
}

// highlightCategory maps a highlight type to a category.
func highlightCategory(t status.HighlightType) Category {
	switch t {
	case status.HighlightActivity:
		return CategoryActivity
	case status.HighlightEvent:
		return CategoryEvent
	case status.HighlightState:
		return CategoryState
	case status.HighlightNeed:
		return CategoryNeed
	case status.HighlightAchievement:
		return CategoryAchievement
	default:
		return CategoryDefault
	}
}

// hoursBetween is the unsigned number of hours between a and b, so clock
// skew never produces negative elapsed time.
func hoursBetween(a, b time.Time) float64 {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return d.Hours()
}

// Score returns a copy of snap with every metric, highlight and context item
// annotated with a relevance score, given the timestamp of the entry that
// produced it. If sourceTimestamp cannot be parsed the copy carries no
// scores; Filter keeps unscored items by default.
func Score(snap status.Snapshot, sourceTimestamp string, now time.Time, classify Classifier) status.Snapshot {
	out := snap.Clone()
	origin, err := status.ParseTimestamp(sourceTimestamp)
	if err != nil {
		return out
	}
	if classify == nil {
		classify = KeywordClassifier
	}
	hours := hoursBetween(origin, now)

	for i := range out.Metrics {
		out.Metrics[i].RelevanceScore = scorePtr(Decay(classify(out.Metrics[i].Name), hours))
	}
	for i := range out.Highlights {
		out.Highlights[i].RelevanceScore = scorePtr(Decay(highlightCategory(out.Highlights[i].Type), hours))
	}
	for i := range out.PersistentContext {
		h := hours
		if ts, err := status.ParseTimestamp(out.PersistentContext[i].SourceTimestamp); err == nil {
			h = hoursBetween(ts, now)
		}
		out.PersistentContext[i].RelevanceScore = scorePtr(Decay(CategoryActivity, h))
	}
	return out
}

func scorePtr(v float64) *float64 {
	return &v
}
