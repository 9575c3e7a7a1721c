package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/statuscast/internal/status"
)

func sample() status.Snapshot {
	s := status.Snapshot{
		OverallStatus: "Deep in a refactor",
		MoodEmoji:     "🙂",
		VisualTheme:   status.ThemeWork,
		AccentColor:   "#3498DB",
		Metrics: []status.Metric{
			{Name: "Energy", Value: "low", Trend: status.MetricNew, Icon: "🔋"},
		},
		PersonalStates: []status.PersonalState{
			{Name: "Hunger", Emoji: "🍔", Level: 3},
		},
	}
	s.EnsureArrays()
	return s
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		prefs   Preferences
		wantErr string
	}{
		{"empty", Preferences{}, ""},
		{"full", Preferences{PreferredTheme: status.ThemeGaming, AccentColor: "#ff00aa", EmojiOverrides: map[string]string{"mood": "😎"}}, ""},
		{"bad theme", Preferences{PreferredTheme: "neon"}, `unknown theme "neon"`},
		{"bad color", Preferences{AccentColor: "blue"}, `accent color "blue" is not a hex color`},
		{"empty override value", Preferences{EmojiOverrides: map[string]string{"energy": ""}}, "invalid emoji override"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	snap := sample()
	prefs := &Preferences{
		PreferredTheme: status.ThemeCreative,
		AccentColor:    "#112233",
		EmojiOverrides: map[string]string{"Mood": "😎", "energy": "⚡", "HUNGER": "🥐"},
	}

	out := Apply(snap, prefs)
	assert.Equal(t, status.ThemeCreative, out.VisualTheme)
	assert.Equal(t, "#112233", out.AccentColor)
	assert.Equal(t, "😎", out.MoodEmoji)
	assert.Equal(t, "⚡", out.Metrics[0].Icon)
	assert.Equal(t, "🥐", out.PersonalStates[0].Emoji)

	// input untouched
	assert.Equal(t, "🔋", snap.Metrics[0].Icon)
	assert.Equal(t, status.ThemeWork, snap.VisualTheme)
}

func TestApplyNil(t *testing.T) {
	snap := sample()
	assert.Equal(t, snap, Apply(snap, nil))
	assert.Equal(t, snap, Apply(snap, &Preferences{}))
}

func TestApplyKeepsFailureLook(t *testing.T) {
	fb := status.Fallback(&status.ParseError{Kind: status.KindEmptyResponse})
	out := Apply(fb, &Preferences{PreferredTheme: status.ThemeRest, AccentColor: "#000000", EmojiOverrides: map[string]string{"mood": "😴"}})
	assert.Equal(t, fb.VisualTheme, out.VisualTheme)
	assert.Equal(t, fb.AccentColor, out.AccentColor)
	assert.Equal(t, fb.MoodEmoji, out.MoodEmoji)
}
