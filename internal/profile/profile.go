// Package profile holds per-user display preferences. Preferences only
// change how a finished snapshot looks; they never feed scoring or merging.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lazypower/statuscast/internal/status"
)

// MoodKey is the EmojiOverrides key that replaces the snapshot's mood emoji.
const MoodKey = "mood"

// Preferences are a user's display overrides.
type Preferences struct {
	// EmojiOverrides maps a metric or personal state name (case-insensitive)
	// to the emoji shown for it. The key "mood" replaces the mood emoji.
	EmojiOverrides map[string]string `json:"emoji_overrides,omitempty" validate:"omitempty,dive,keys,required,max=64,endkeys,required,max=16"`
	PreferredTheme status.Theme      `json:"preferred_theme,omitempty" validate:"omitempty,oneof=work gaming social rest creative learning default"`
	AccentColor    string            `json:"accent_color,omitempty" validate:"omitempty,hexcolor"`
}

var validate = validator.New()

// Validate reports the first invalid field in a form fit for end users.
func (p Preferences) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.StructField() {
		case "PreferredTheme":
			return fmt.Errorf("unknown theme %q", fe.Value())
		case "AccentColor":
			return fmt.Errorf("accent color %q is not a hex color", fe.Value())
		default:
			return fmt.Errorf("invalid emoji override %s", fe.Namespace())
		}
	}
	return err
}

// IsZero reports whether p carries no overrides.
func (p Preferences) IsZero() bool {
	return len(p.EmojiOverrides) == 0 && p.PreferredTheme == "" && p.AccentColor == ""
}

// Apply returns a copy of snap with the preferences applied. A failed
// snapshot keeps its theme and color so the failure stays recognisable.
func Apply(snap status.Snapshot, p *Preferences) status.Snapshot {
	out := snap.Clone()
	if p == nil || p.IsZero() {
		return out
	}

	if !out.Failed() {
		if p.PreferredTheme != "" {
			out.VisualTheme = p.PreferredTheme
		}
		if p.AccentColor != "" {
			out.AccentColor = p.AccentColor
		}
	}

	if len(p.EmojiOverrides) == 0 {
		return out
	}
	overrides := make(map[string]string, len(p.EmojiOverrides))
	for k, v := range p.EmojiOverrides {
		overrides[strings.ToLower(strings.TrimSpace(k))] = v
	}
	if e, ok := overrides[MoodKey]; ok && !out.Failed() {
		out.MoodEmoji = e
	}
	for i, m := range out.Metrics {
		if e, ok := overrides[strings.ToLower(m.Name)]; ok {
			out.Metrics[i].Icon = e
		}
	}
	for i, s := range out.PersonalStates {
		if e, ok := overrides[strings.ToLower(s.Name)]; ok {
			out.PersonalStates[i].Emoji = e
		}
	}
	return out
}
