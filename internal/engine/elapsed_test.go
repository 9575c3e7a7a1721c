package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseElapsed(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Duration
		wantOK bool
	}{
		{"4h ago", 4 * time.Hour, true},
		{"just now", 0, true},
		{"Just Now", 0, true},
		{"45 minutes ago", 45 * time.Minute, true},
		{"2d ago", 48 * time.Hour, true},
		{"an hour ago", time.Hour, true},
		{"a day ago", 24 * time.Hour, true},
		{"1h 30m", 90 * time.Minute, true},
		{"4h 30m ago", 4*time.Hour + 30*time.Minute, true},
		{"2 weeks ago", 14 * 24 * time.Hour, true},
		{"1.5 hours", 90 * time.Minute, true},
		{"30s", 30 * time.Second, true},
		{"3 hrs", 3 * time.Hour, true},
		{"4h30m", 4*time.Hour + 30*time.Minute, true},
		{"5 mo ago", 150 * 24 * time.Hour, true},
		{"2 mos", 60 * 24 * time.Hour, true},
		{"2 slices ago", 0, false},
		{"since 3 meals", 0, false},
		{"ate 2 dinners", 0, false},
		{"3 ms", 0, false},
		{"level 3", 0, false},
		{"", 0, false},
		{"unknown", 0, false},
		{"ages", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseElapsed(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{25 * time.Minute, "25m ago"},
		{4 * time.Hour, "4h ago"},
		{4*time.Hour + 30*time.Minute, "4h 30m ago"},
		{48 * time.Hour, "2d ago"},
		{51 * time.Hour, "2d 3h ago"},
		{-2 * time.Hour, "2h ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatElapsed(tt.in))
		})
	}
}

func TestElapsedRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{5 * time.Minute, 3 * time.Hour, 3*time.Hour + 15*time.Minute, 72 * time.Hour} {
		got, ok := ParseElapsed(FormatElapsed(d))
		assert.True(t, ok)
		assert.Equal(t, d, got)
	}
}
