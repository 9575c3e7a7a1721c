package engine

import (
	"strings"
	"time"

	"github.com/lazypower/statuscast/internal/status"
)

// PreviousStates is the personal-state half of the previous snapshot,
// together with the time that snapshot was stored. At is zero when the
// stored timestamp could not be read.
type PreviousStates struct {
	States []status.PersonalState
	At     time.Time
}

// LevelTrend compares a previous and current level. Unknown levels are not
// comparable and read as stable.
func LevelTrend(prev, cur status.Rating) status.StateTrend {
	if !prev.Known() || !cur.Known() {
		return status.StateStable
	}
	switch {
	case cur > prev:
		return status.StateIncreasing
	case cur < prev:
		return status.StateDecreasing
	}
	return status.StateStable
}

// TrackStates annotates the freshly extracted personal states with a trend
// and a reconciled elapsed time. States are matched by exact name. States
// that only existed previously are not carried forward: only what the
// current extraction produced is returned.
func TrackStates(prev *PreviousStates, current []status.PersonalState, now time.Time) []status.PersonalState {
	byName := make(map[string]status.PersonalState)
	if prev != nil {
		for _, p := range prev.States {
			if _, dup := byName[p.Name]; !dup {
				byName[p.Name] = p
			}
		}
	}

	out := make([]status.PersonalState, 0, len(current))
	for _, c := range current {
		p, matched := byName[c.Name]
		if !matched {
			c.Trend = status.StateNew
		} else {
			c.Trend = LevelTrend(p.Level, c.Level)
		}
		c = reconcileElapsed(c, p, matched, prev, now)
		out = append(out, c)
	}
	return out
}

// reconcileElapsed decides the state's elapsed time. An explicit value from
// the current extraction wins; otherwise the previous value is advanced by
// the wall-clock gap since the previous snapshot.
func reconcileElapsed(c, p status.PersonalState, matched bool, prev *PreviousStates, now time.Time) status.PersonalState {
	c.ElapsedSeconds = nil

	if supplied := strings.TrimSpace(c.TimeSinceLast); supplied != "" {
		c.TimeSinceLast = supplied
		if d, ok := ParseElapsed(supplied); ok {
			c.SetElapsed(d)
		}
		return c
	}

	c.TimeSinceLast = ""
	if !matched {
		return c
	}

	base, ok := p.Elapsed()
	if !ok {
		base, ok = ParseElapsed(p.TimeSinceLast)
	}
	if !ok {
		return c
	}

	if !prev.At.IsZero() {
		if gap := now.Sub(prev.At); gap > 0 {
			base += gap
		}
	}
	c.SetElapsed(base)
	c.TimeSinceLast = FormatElapsed(base)
	return c
}
