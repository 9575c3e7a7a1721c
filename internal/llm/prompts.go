package llm

import (
	"fmt"
	"strings"
	"time"
)

// StatusSystemPrompt instructs the model to turn a free-text status update
// into a status snapshot, merging whatever prior context is still relevant.
func StatusSystemPrompt() string {
	return `You are a status analysis system. Read the user's free-text status update and produce ONE structured status snapshot as JSON.

You may also receive PRIOR CONTEXT: items from the user's previous status that are still likely relevant, each with a relevance_score between 0 and 1 (higher = fresher), plus the previous raw update text and the time elapsed since it.

Merging rules:
- Physical states (energy, hunger, sleep, tiredness) decay fastest. Drop them first unless the new update reaffirms them.
- Emotional states and needs fade within hours. Keep them only if they plausibly still apply.
- Activities, projects and long-running work persist longest. Carry them forward into persistent_context with from_previous=true unless the user says they ended.
- If the user explicitly contradicts a prior item ("not tired anymore", "finished the report"), remove or update that item. Never keep a contradicted item.
- When it is ambiguous whether a prior item still applies, KEEP it rather than guessing it away.
- Mark metric trends relative to prior context: improved, worsened, unchanged, or new when there is no prior value.
- Personal states are recurring needs with a level from 1 (low) to 5 (high), such as Hunger, Sleep, Social or Exercise. Only include time_since_last when the update gives a concrete signal (e.g. "just ate" means "just now"); otherwise omit it.

Output rules:
- Respond with ONLY the JSON object. No prose, no markdown fences.
- Every array field must be present, even when empty.
- visual_theme must be one of: work, gaming, social, rest, creative, learning, default.
- metric trend: improved|worsened|unchanged|new. value_rating is an integer 1-5 when meaningful.
- highlight type: activity|event|state|need|achievement|blocker. timeframe: past|current|future|ongoing.

JSON shape:
{
  "overall_status": "short phrase",
  "mood_emoji": "single emoji",
  "visual_theme": "work|gaming|social|rest|creative|learning|default",
  "accent_color": "color name or #RRGGBB",
  "metrics": [{"name": "Energy", "value": "Low", "value_rating": 2, "trend": "worsened", "icon": "⚡"}],
  "highlights": [{"type": "activity", "description": "what", "timeframe": "current", "is_new": true}],
  "persistent_context": [{"description": "ongoing context", "from_previous": true, "source_timestamp": "ISO-8601"}],
  "personal_states": [{"name": "Hunger", "emoji": "🍔", "level": 3, "time_since_last": "4h ago"}],
  "narrative_summary": "one or two sentences",
  "errors": []
}`
}

// UserInput is everything the model sees besides the system prompt.
type UserInput struct {
	// PriorContext is the scored, filtered previous snapshot as JSON; empty
	// when there is no usable prior context.
	PriorContext string
	// PreviousText is the raw text of the previous update, if any.
	PreviousText string
	// PreviousAt is when the previous update was stored; zero if unknown.
	PreviousAt time.Time
	Now        time.Time
	StatusText string
}

// StatusUserInput composes the user message for a status update.
func StatusUserInput(in UserInput) string {
	var b strings.Builder

	if in.PriorContext != "" {
		b.WriteString("PRIOR CONTEXT (still-relevant items from the previous status):\n")
		b.WriteString(in.PriorContext)
		b.WriteString("\n\n")
	}
	if in.PreviousText != "" {
		b.WriteString("PREVIOUS UPDATE TEXT:\n")
		b.WriteString(in.PreviousText)
		b.WriteString("\n")
		if !in.PreviousAt.IsZero() {
			fmt.Fprintf(&b, "(posted %s, %s before now)\n", in.PreviousAt.UTC().Format(time.RFC3339), in.Now.Sub(in.PreviousAt).Round(time.Minute))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "CURRENT TIME: %s\n\n", in.Now.UTC().Format(time.RFC3339))
	b.WriteString("CURRENT STATUS UPDATE:\n")
	b.WriteString(in.StatusText)
	return b.String()
}
