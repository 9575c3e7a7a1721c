package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/statuscast/internal/llm"
	"github.com/lazypower/statuscast/internal/profile"
	"github.com/lazypower/statuscast/internal/status"
	"github.com/lazypower/statuscast/internal/store"
)

// DefaultCompletionTimeout bounds a single completion call.
const DefaultCompletionTimeout = 60 * time.Second

// Store is the persistence the engine needs. *store.DB satisfies it.
type Store interface {
	GetLatest(ctx context.Context, userID string) (*store.LatestEntry, error)
	AppendHistory(ctx context.Context, userID string, entry status.Entry, capacity int) error
	AppendHistoryIfVersion(ctx context.Context, userID string, entry status.Entry, capacity int, expected int64) error
}

// ProfileSource supplies per-user display preferences.
type ProfileSource interface {
	GetPreferences(ctx context.Context, userID string) (*profile.Preferences, error)
}

// Options tune the engine. Zero values select defaults.
type Options struct {
	// Threshold is the minimum relevance kept from prior context. Nil
	// selects DefaultThreshold; zero keeps everything that was scored.
	Threshold         *float64
	HistoryCap        int
	CompletionTimeout time.Duration
	// DropUnscored discards prior-context items that could not be scored.
	// By default they are kept.
	DropUnscored bool
	// StrictOrdering makes the latest-pointer write conditional on the
	// version read at the start of the update. A lost race is logged as a
	// persistence failure.
	StrictOrdering bool
	Classifier     Classifier
	Params         llm.Params
	Now            func() time.Time
}

// Engine runs the status update pipeline.
type Engine struct {
	Store    Store
	LLM      llm.Client
	Profiles ProfileSource
	Logger   *zap.Logger
	opts     Options
}

// New creates a new Engine. If st also implements ProfileSource it is used
// for preferences.
func New(st Store, client llm.Client, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := DefaultThreshold
	if opts.Threshold != nil {
		threshold = ClampThreshold(*opts.Threshold, logger)
	}
	opts.Threshold = &threshold
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = store.DefaultHistoryCap
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = DefaultCompletionTimeout
	}
	if opts.Classifier == nil {
		opts.Classifier = KeywordClassifier
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{Store: st, LLM: client, Logger: logger, opts: opts}
	if ps, ok := st.(ProfileSource); ok {
		e.Profiles = ps
	}
	return e
}

// Result is everything a boundary adapter needs to answer an update.
type Result struct {
	UserID string
	// Entry is the entry written to history. Its snapshot is the final
	// reconciled snapshot, before display preferences.
	Entry status.Entry
	// Display is the final snapshot with display preferences applied.
	Display     status.Snapshot
	Previous    *status.Entry
	Preferences *profile.Preferences
	// Activity is the first current or ongoing activity highlight.
	Activity string
	// ContextUsed reports whether any prior context reached the prompt.
	ContextUsed bool
	Persisted   bool
}

// Failed reports whether the update produced a fallback snapshot.
func (r *Result) Failed() bool {
	return r.Entry.ProcessedStatus.Failed()
}

// Process turns one free-form status update into a stored, reconciled
// snapshot. Only input errors and caller cancellation are returned as
// errors; context, completion and storage failures degrade instead.
func (e *Engine) Process(ctx context.Context, userID, text string) (*Result, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyStatus
	}

	log := e.Logger.With(zap.String("user", userID))
	now := e.opts.Now().UTC()

	prev, prefs := e.fetch(ctx, log, userID)

	res := &Result{UserID: userID, Preferences: prefs}
	var prevStates *PreviousStates
	in := llm.UserInput{Now: now, StatusText: text}
	if prev != nil {
		res.Previous = &prev.Entry
		prior, at := e.priorContext(log, prev.Entry, now)
		in.PriorContext = prior
		in.PreviousText = prev.RawInput
		in.PreviousAt = at
		res.ContextUsed = prior != ""
		prevStates = &PreviousStates{States: prev.ProcessedStatus.PersonalStates, At: at}
	}

	snap, err := e.complete(ctx, log, in)
	if err != nil {
		return nil, err
	}

	snap.PersonalStates = TrackStates(prevStates, snap.PersonalStates, now)
	snap = snap.StripScores()

	res.Entry = status.Entry{
		ID:              uuid.NewString(),
		Timestamp:       status.FormatTimestamp(now),
		RawInput:        text,
		ProcessedStatus: snap,
	}
	res.Persisted = e.persist(ctx, log, userID, res.Entry, prev)

	res.Display = profile.Apply(snap, prefs)
	res.Activity = CurrentActivity(snap)

	outcome := "ok"
	if snap.Failed() {
		outcome = "fallback"
	}
	updatesTotal.WithLabelValues(outcome).Inc()
	log.Info("status processed",
		zap.String("entry", res.Entry.ID),
		zap.String("outcome", outcome),
		zap.Bool("context_used", res.ContextUsed),
		zap.Bool("persisted", res.Persisted),
		zap.Int("personal_states", len(snap.PersonalStates)))
	return res, nil
}

// fetch reads the previous entry and preferences concurrently. Both are
// best-effort: a failed read degrades to none.
func (e *Engine) fetch(ctx context.Context, log *zap.Logger, userID string) (*store.LatestEntry, *profile.Preferences) {
	var (
		prev  *store.LatestEntry
		prefs *profile.Preferences
	)
	var g errgroup.Group
	g.Go(func() error {
		le, err := e.Store.GetLatest(ctx, userID)
		if err != nil {
			contextUnavailableTotal.Inc()
			log.Warn("previous status unavailable, continuing without context", zap.Error(err))
			return nil
		}
		prev = le
		return nil
	})
	if e.Profiles != nil {
		g.Go(func() error {
			p, err := e.Profiles.GetPreferences(ctx, userID)
			if err != nil {
				log.Warn("preferences unavailable", zap.Error(err))
				return nil
			}
			prefs = p
			return nil
		})
	}
	g.Wait()
	return prev, prefs
}

// priorContext scores and filters the previous snapshot and returns it as
// JSON for the prompt, along with the previous entry's time. The JSON is
// empty when nothing relevant survives.
func (e *Engine) priorContext(log *zap.Logger, prev status.Entry, now time.Time) (string, time.Time) {
	at, err := prev.Time()
	if err != nil {
		log.Warn("previous entry has unreadable timestamp", zap.String("timestamp", prev.Timestamp), zap.Error(err))
		at = time.Time{}
	}

	// A failed analysis carries only its own error report.
	if prev.ProcessedStatus.Failed() {
		return "", at
	}

	scored := Score(prev.ProcessedStatus, prev.Timestamp, now, e.opts.Classifier)
	filtered := Filter(scored, FilterOptions{
		Threshold:    *e.opts.Threshold,
		KeepUnscored: !e.opts.DropUnscored,
		Logger:       log,
	})
	if IsEmpty(filtered) {
		return "", at
	}

	data, err := json.MarshalIndent(priorView(filtered), "", "  ")
	if err != nil {
		log.Warn("encode prior context", zap.Error(err))
		return "", at
	}
	return string(data), at
}

// priorSnapshot is the subset of a filtered snapshot shown to the model.
type priorSnapshot struct {
	OverallStatus     string                 `json:"overall_status,omitempty"`
	Metrics           []status.Metric        `json:"metrics"`
	Highlights        []status.Highlight     `json:"highlights"`
	PersistentContext []status.ContextItem   `json:"persistent_context"`
	PersonalStates    []status.PersonalState `json:"personal_states"`
}

func priorView(s status.Snapshot) priorSnapshot {
	return priorSnapshot{
		OverallStatus:     s.OverallStatus,
		Metrics:           s.Metrics,
		Highlights:        s.Highlights,
		PersistentContext: s.PersistentContext,
		PersonalStates:    s.PersonalStates,
	}
}

// complete calls the model under the completion timeout and parses its
// answer. Any completion or parse failure yields the fallback snapshot;
// only cancellation by the caller is returned as an error.
func (e *Engine) complete(ctx context.Context, log *zap.Logger, in llm.UserInput) (status.Snapshot, error) {
	cctx, cancel := context.WithTimeout(ctx, e.opts.CompletionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.LLM.Complete(cctx, llm.Request{
		System: llm.StatusSystemPrompt(),
		User:   llm.StatusUserInput(in),
		Params: e.opts.Params,
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return status.Snapshot{}, fmt.Errorf("process status: %w", ctxErr)
		}
		reason := llm.FailureReason(err)
		completionDuration.WithLabelValues(reason).Observe(elapsed.Seconds())
		log.Warn("completion failed, using fallback",
			zap.String("reason", reason), zap.Duration("elapsed", elapsed), zap.Error(err))
		return e.fallback(&status.ParseError{Kind: status.KindCompletion, Err: err}), nil
	}
	completionDuration.WithLabelValues("ok").Observe(elapsed.Seconds())

	if resp == nil {
		log.Warn("completion returned no response, using fallback")
		return e.fallback(&status.ParseError{Kind: status.KindEmptyResponse}), nil
	}
	snap, err := status.Parse(resp.Content)
	if err != nil {
		log.Warn("unusable completion, using fallback",
			zap.String("provider", resp.Provider),
			zap.String("kind", string(status.KindOf(err))),
			zap.Int("length", len(resp.Content)),
			zap.Error(err))
		return e.fallback(err), nil
	}
	log.Debug("completion parsed",
		zap.String("provider", resp.Provider),
		zap.Int("tokens", resp.TokensUsed),
		zap.Duration("elapsed", elapsed))
	return snap, nil
}

func (e *Engine) fallback(err error) status.Snapshot {
	fallbacksTotal.WithLabelValues(string(status.KindOf(err))).Inc()
	return status.Fallback(err)
}

// persist writes the entry and reports whether it was stored. Failures
// are logged and never abort the update.
func (e *Engine) persist(ctx context.Context, log *zap.Logger, userID string, entry status.Entry, prev *store.LatestEntry) bool {
	var err error
	if e.opts.StrictOrdering {
		var expected int64
		if prev != nil {
			expected = prev.Version
		}
		err = e.Store.AppendHistoryIfVersion(ctx, userID, entry, e.opts.HistoryCap, expected)
	} else {
		err = e.Store.AppendHistory(ctx, userID, entry, e.opts.HistoryCap)
	}
	if err != nil {
		persistenceFailuresTotal.Inc()
		log.Error("store status entry",
			zap.String("entry", entry.ID),
			zap.Bool("version_conflict", errors.Is(err, store.ErrVersionConflict)),
			zap.Error(err))
		return false
	}
	return true
}

// CurrentActivity returns the description of the first activity highlight
// happening now, or "".
func CurrentActivity(s status.Snapshot) string {
	for _, h := range s.Highlights {
		if h.Type != status.HighlightActivity {
			continue
		}
		if h.Timeframe == status.TimeframeCurrent || h.Timeframe == status.TimeframeOngoing {
			return h.Description
		}
	}
	return ""
}
