package engine

import (
	"go.uber.org/zap"

	"github.com/lazypower/statuscast/internal/status"
)

// DefaultThreshold is the minimum relevance score kept by Filter.
const DefaultThreshold = 0.3

// FilterOptions tunes Filter.
type FilterOptions struct {
	Threshold float64
	// KeepUnscored retains elements that carry no score, which happens
	// when the source timestamp could not be parsed.
	KeepUnscored bool
	Logger       *zap.Logger
}

// DefaultFilterOptions returns the options used by the engine.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{Threshold: DefaultThreshold, KeepUnscored: true}
}

// ClampThreshold returns t, or DefaultThreshold if t lies outside [0,1].
func ClampThreshold(t float64, logger *zap.Logger) float64 {
	if t >= 0 && t <= 1 {
		return t
	}
	if logger != nil {
		logger.Warn("relevance threshold out of range, using default",
			zap.Float64("threshold", t), zap.Float64("default", DefaultThreshold))
	}
	return DefaultThreshold
}

// Filter returns a copy of a scored snapshot holding only the metrics,
// highlights and context items still relevant under opts.Threshold.
// Personal states and scalar fields pass through untouched.
func Filter(scored status.Snapshot, opts FilterOptions) status.Snapshot {
	t := ClampThreshold(opts.Threshold, opts.Logger)
	keep := func(score *float64) bool {
		if score == nil {
			return opts.KeepUnscored
		}
		return *score >= t
	}

	out := scored.Clone()

	out.Metrics = out.Metrics[:0]
	for _, m := range scored.Metrics {
		if keep(m.RelevanceScore) {
			out.Metrics = append(out.Metrics, m)
		}
	}
	out.Highlights = out.Highlights[:0]
	for _, h := range scored.Highlights {
		if keep(h.RelevanceScore) {
			out.Highlights = append(out.Highlights, h)
		}
	}
	out.PersistentContext = out.PersistentContext[:0]
	for _, c := range scored.PersistentContext {
		if keep(c.RelevanceScore) {
			out.PersistentContext = append(out.PersistentContext, c)
		}
	}
	return out
}

// IsEmpty reports whether a filtered snapshot has nothing left worth
// carrying forward.
func IsEmpty(s status.Snapshot) bool {
	return len(s.Metrics) == 0 && len(s.Highlights) == 0 &&
		len(s.PersistentContext) == 0 && len(s.PersonalStates) == 0
}
