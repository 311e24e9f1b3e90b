package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/Houeta/edition-tracker/internal/models"
	"gopkg.in/telebot.v4"
)

const handlerTimeout = 10 * time.Second

// Bot contains the bot API instance and other information.
type Bot struct {
	bot  API
	log  *slog.Logger
	repo Repository
	loc  *time.Location
	// ctx bounds the storage calls of command handlers; canceled on shutdown.
	ctx context.Context

	mu      sync.Mutex
	stock   map[string]int
	stockAt time.Time
}

func NewBot(ctx context.Context, log *slog.Logger, repo Repository, token string, poller time.Duration, loc *time.Location) (*Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: poller},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	log.Info("Authorized on acount", "account", bot.Me.Username)

	botInstance := newBot(ctx, log, bot, repo, loc)

	botInstance.registerRoutes()

	return botInstance, nil
}

func newBot(ctx context.Context, log *slog.Logger, api API, repo Repository, loc *time.Location) *Bot {
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{bot: api, log: log, repo: repo, loc: loc, ctx: ctx}
}

// requestContext returns the context for one command, derived from the bot's lifetime.
func (b *Bot) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.ctx, handlerTimeout)
}

// Start launches the bot to listen for updates.
func (b *Bot) Start() {
	b.log.Info("Telegram bot is starting...")
	b.bot.Start()
}

// Stop gracefully stops the Telegram bot and logs the action.
func (b *Bot) Stop() {
	b.log.Info("Telegram bot is stopped...")
	b.bot.Stop()
}

// registerRoutes configures all routes (commands).
func (b *Bot) registerRoutes() {
	// Public routes.
	b.bot.Handle("/start", b.startHandler)
	b.bot.Handle("/subscribe", b.subscribeHandler)
	b.bot.Handle("/unsubscribe", b.unsubscribeHandler)
	b.bot.Handle("/stock", b.stockHandler)
	b.bot.Handle("/history", b.historyHandler)
	b.bot.Handle("/abbreviations", b.abbreviationsHandler)
	b.bot.Handle("/abbreviate", b.abbreviateHandler)
}

// Notify caches the digest's stock section and delivers the digest to every
// subscribed chat. A failed delivery to one chat does not stop the others.
func (b *Bot) Notify(ctx context.Context, d *models.Digest, at time.Time) error {
	const opn = "bot.Notify"
	log := b.log.With("op", opn)

	at = at.In(b.loc)
	b.mu.Lock()
	b.stock = maps.Clone(d.Stock)
	b.stockAt = at
	b.mu.Unlock()

	var messages []any
	if text := formatAlerts(d.Alert); text != "" {
		messages = append(messages, text)
	}
	if d.Regular && len(d.Stock) > 0 {
		messages = append(messages, formatRegular(d.Stock, at))
	}
	if d.NextUpcoming != nil {
		messages = append(messages, revealMessage(d.NextUpcoming))
	}
	if len(messages) == 0 {
		return nil
	}

	chats, err := b.repo.GetSubscribedChats(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to get subscribers: %w", opn, err)
	}

	var errs []error
	for _, chatID := range chats {
		for _, msg := range messages {
			if _, err = b.bot.Send(telebot.ChatID(chatID), msg, telebot.ModeHTML); err != nil {
				log.ErrorContext(ctx, "Failed to deliver digest", "chat_id", chatID, "error", err)
				errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
				break
			}
		}
	}
	log.InfoContext(ctx, "Digest delivered", "chats", len(chats), "messages", len(messages), "failed", len(errs))

	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", opn, errors.Join(errs...))
	}

	return nil
}

// revealMessage returns a photo for a reveal with an image, plain text otherwise.
func revealMessage(r *models.Reveal) any {
	caption := formatRevealCaption(r)
	if r.Image == "" {
		return caption
	}
	return &telebot.Photo{File: telebot.FromURL(r.Image), Caption: caption}
}

// cachedStock returns the stock section of the last delivered digest.
func (b *Bot) cachedStock() (map[string]int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.stock), b.stockAt
}
