// Package channel connects chat platforms to the status engine.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/lazypower/statuscast/internal/config"
	"github.com/lazypower/statuscast/internal/engine"
	"github.com/lazypower/statuscast/internal/profile"
	"github.com/lazypower/statuscast/internal/render"
	"github.com/lazypower/statuscast/internal/status"
)

const historyShown = 5

// TelegramBot is the part of the Bot API the adapter uses.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() { w.bot.StopReceivingUpdates() }

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User { return w.bot.Self }

// BotFactory creates TelegramBot instances.
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// Processor runs one status update.
type Processor interface {
	Process(ctx context.Context, userID, text string) (*engine.Result, error)
}

// Store is the storage the bot commands need.
type Store interface {
	GetHistory(ctx context.Context, userID string, limit int) ([]status.Entry, error)
	PurgeAll(ctx context.Context, userID string) (int, error)
	GetPreferences(ctx context.Context, userID string) (*profile.Preferences, error)
	SavePreferences(ctx context.Context, userID string, p profile.Preferences) error
}

// Telegram is the Telegram bot adapter.
type Telegram struct {
	token     string
	allowFrom map[string]bool
	engine    Processor
	store     Store
	logger    *zap.Logger
	factory   BotFactory
	now       func() time.Time

	bot    TelegramBot
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelegram creates the adapter. The bot connects on Start.
func NewTelegram(cfg config.TelegramConfig, eng Processor, st Store, logger *zap.Logger) (*Telegram, error) {
	return NewTelegramWithFactory(cfg, eng, st, logger, defaultBotFactory)
}

// NewTelegramWithFactory is NewTelegram with a custom bot factory.
func NewTelegramWithFactory(cfg config.TelegramConfig, eng Processor, st Store, logger *zap.Logger, factory BotFactory) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allow := make(map[string]bool, len(cfg.AllowFrom))
	for _, id := range cfg.AllowFrom {
		allow[strings.TrimSpace(id)] = true
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allow,
		engine:    eng,
		store:     st,
		logger:    logger.Named("telegram"),
		factory:   factory,
		now:       time.Now,
	}, nil
}

// Start connects to Telegram and handles updates until ctx is done or
// Stop is called.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := t.factory(t.token, tgbotapi.APIEndpoint, http.DefaultClient)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	t.logger.Info("authorized", zap.String("bot", bot.GetSelf().UserName))

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil {
					continue
				}
				t.wg.Add(1)
				go func(msg *tgbotapi.Message) {
					defer t.wg.Done()
					t.handleMessage(ctx, msg)
				}(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop halts polling and waits for in-flight updates.
func (t *Telegram) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	t.wg.Wait()
	t.logger.Info("stopped")
}

// SetBot sets the bot without going through the factory.
func (t *Telegram) SetBot(bot TelegramBot) {
	t.bot = bot
}

func (t *Telegram) allowed(senderID string) bool {
	return len(t.allowFrom) == 0 || t.allowFrom[senderID]
}

// UserID is the statuscast user id for a Telegram account.
func UserID(from *tgbotapi.User) string {
	return "tg:" + strconv.FormatInt(from.ID, 10)
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !t.allowed(senderID) {
		t.logger.Warn("rejected message", zap.String("sender", senderID), zap.String("username", msg.From.UserName))
		return
	}

	userID := UserID(msg.From)
	var reply string
	if msg.IsCommand() {
		reply = t.command(ctx, userID, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
	} else {
		reply = t.update(ctx, userID, msg.Text)
	}
	if reply == "" {
		return
	}
	if err := t.send(msg.Chat.ID, reply); err != nil {
		t.logger.Error("send reply", zap.Int64("chat", msg.Chat.ID), zap.Error(err))
	}
}

func (t *Telegram) command(ctx context.Context, userID, cmd, args string) string {
	switch cmd {
	case "status":
		if args == "" {
			return "Usage: /status what you are up to"
		}
		return t.update(ctx, userID, args)
	case "history":
		return t.history(ctx, userID)
	case "forget":
		n, err := t.store.PurgeAll(ctx, userID)
		if err != nil {
			t.logger.Error("purge", zap.String("user", userID), zap.Error(err))
			return "Could not forget your history right now, please try again."
		}
		return fmt.Sprintf("Forgot everything: %d records removed.", n)
	case "theme":
		return t.theme(ctx, userID, args)
	case "start", "help":
		return helpText
	}
	return "Unknown command. " + helpText
}

const helpText = `Send any message to post a status update.

/status <text> post a status update
/history show your recent updates
/theme <name> set your preferred theme (work, gaming, social, rest, creative, learning, default)
/forget delete everything stored about you
/help show this message`

func (t *Telegram) update(ctx context.Context, userID, text string) string {
	res, err := t.engine.Process(ctx, userID, text)
	switch {
	case errors.Is(err, engine.ErrEmptyStatus):
		return "Tell me what you are up to and I will turn it into a status."
	case err != nil:
		t.logger.Error("process status", zap.String("user", userID), zap.Error(err))
		return "Something went wrong while processing your status."
	}

	msg := render.Render(render.Input{
		Snapshot:    res.Display,
		Previous:    res.Previous,
		Preferences: res.Preferences,
		Now:         t.now(),
	})
	out := MessageHTML(msg)
	if !res.Persisted {
		out += "\n\n<i>Note: this update could not be saved.</i>"
	}
	return out
}

func (t *Telegram) history(ctx context.Context, userID string) string {
	entries, err := t.store.GetHistory(ctx, userID, historyShown)
	if err != nil {
		t.logger.Error("history", zap.String("user", userID), zap.Error(err))
		return "Could not load your history right now."
	}
	if len(entries) == 0 {
		return "No updates yet."
	}

	var b strings.Builder
	b.WriteString("<b>Recent updates</b>")
	now := t.now()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		when := e.Timestamp
		if at, err := e.Time(); err == nil {
			when = humanize.RelTime(at, now, "ago", "from now")
		}
		s := e.ProcessedStatus
		fmt.Fprintf(&b, "\n%s %s <i>(%s)</i>", escape(s.MoodEmoji), escape(s.OverallStatus), escape(when))
	}
	return b.String()
}

func (t *Telegram) theme(ctx context.Context, userID, name string) string {
	prefs, err := t.store.GetPreferences(ctx, userID)
	if err != nil {
		t.logger.Error("get preferences", zap.String("user", userID), zap.Error(err))
		return "Could not load your preferences right now."
	}
	if prefs == nil {
		prefs = &profile.Preferences{}
	}
	if name == "" {
		if prefs.PreferredTheme == "" {
			return "No preferred theme set. Usage: /theme <name>"
		}
		return "Your preferred theme is " + string(prefs.PreferredTheme) + "."
	}

	prefs.PreferredTheme = status.Theme(strings.ToLower(name))
	if err := prefs.Validate(); err != nil {
		return escape(err.Error()) + "."
	}
	if err := t.store.SavePreferences(ctx, userID, *prefs); err != nil {
		t.logger.Error("save preferences", zap.String("user", userID), zap.Error(err))
		return "Could not save your preferences right now."
	}
	return "Preferred theme set to " + string(prefs.PreferredTheme) + "."
}

// send delivers an HTML reply, retrying as plain text if Telegram
// rejects the markup.
func (t *Telegram) send(chatID int64, html string) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("html send failed, retrying as text", zap.Error(err))
		msg.ParseMode = ""
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

// MessageHTML formats a rendered message with Telegram's HTML subset.
func MessageHTML(m render.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", escape(m.Title))
	if m.Description != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>", escape(m.Description))
	}
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "\n\n<b>%s</b>\n%s", escape(f.Name), escape(f.Value))
	}
	if m.Footer != "" {
		fmt.Fprintf(&b, "\n\n<code>%s</code>", escape(m.Footer))
	}
	return b.String()
}
