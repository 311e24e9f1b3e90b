package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/Houeta/edition-tracker/internal/repository"
	"gopkg.in/telebot.v4"
)

const errorReply = "Sorry, an error occurred during processing"

// startHandler process command /start.
func (b *Bot) startHandler(ctx telebot.Context) error {
	b.log.Info("User started the bot", "chat_id", ctx.Chat().ID)

	if err := ctx.Send("Hello! Send /subscribe to receive limited edition stock alerts."); err != nil {
		return fmt.Errorf("failed to send greeting message: %w", err)
	}

	return nil
}

func (b *Bot) subscribeHandler(ctx telebot.Context) error {
	reqCtx, cancel := b.requestContext()
	defer cancel()
	return b.reply(ctx, b.subscribeReply(reqCtx, ctx.Chat().ID))
}

func (b *Bot) unsubscribeHandler(ctx telebot.Context) error {
	reqCtx, cancel := b.requestContext()
	defer cancel()
	return b.reply(ctx, b.unsubscribeReply(reqCtx, ctx.Chat().ID))
}

func (b *Bot) stockHandler(ctx telebot.Context) error {
	stock, at := b.cachedStock()
	return b.reply(ctx, formatStockReport(stock, at))
}

func (b *Bot) historyHandler(ctx telebot.Context) error {
	reqCtx, cancel := b.requestContext()
	defer cancel()
	return b.reply(ctx, b.historyReply(reqCtx, strings.Join(ctx.Args(), " ")))
}

func (b *Bot) abbreviationsHandler(ctx telebot.Context) error {
	reqCtx, cancel := b.requestContext()
	defer cancel()
	return b.reply(ctx, b.abbreviationsReply(reqCtx, strings.Join(ctx.Args(), " ")))
}

func (b *Bot) abbreviateHandler(ctx telebot.Context) error {
	reqCtx, cancel := b.requestContext()
	defer cancel()
	return b.reply(ctx, b.abbreviateReply(reqCtx, ctx.Args()))
}

func (b *Bot) reply(ctx telebot.Context, text string) error {
	if err := ctx.Send(text, telebot.ModeHTML); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

func (b *Bot) subscribeReply(ctx context.Context, chatID int64) string {
	if err := b.repo.SubscribeChat(ctx, chatID); err != nil {
		b.log.ErrorContext(ctx, "Failed to subscribe chat", "chat_id", chatID, "error", err)
		return errorReply
	}
	b.log.InfoContext(ctx, "Chat subscribed", "chat_id", chatID)
	return "Subscribed. Stock alerts will be sent to this chat."
}

func (b *Bot) unsubscribeReply(ctx context.Context, chatID int64) string {
	if err := b.repo.UnsubscribeChat(ctx, chatID); err != nil {
		b.log.ErrorContext(ctx, "Failed to unsubscribe chat", "chat_id", chatID, "error", err)
		return errorReply
	}
	b.log.InfoContext(ctx, "Chat unsubscribed", "chat_id", chatID)
	return "Unsubscribed. No more alerts will be sent to this chat."
}

func (b *Bot) historyReply(ctx context.Context, name string) string {
	if name == "" {
		return "Usage: /history &lt;title or abbreviation&gt;"
	}

	title := b.repo.ResolveTitle(ctx, name)
	records, err := b.repo.History(ctx, title)
	if errors.Is(err, repository.ErrNotFound) {
		return "Sorry, I do not have the data for " + html.EscapeString(title)
	}
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to read history", "title", title, "error", err)
		return errorReply
	}

	return formatHistory(title, records, b.loc)
}

func (b *Bot) abbreviationsReply(ctx context.Context, title string) string {
	abbr, err := b.repo.Abbreviations(ctx)
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to read abbreviations", "error", err)
		return errorReply
	}
	return formatAbbreviations(abbr, title)
}

func (b *Bot) abbreviateReply(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "Usage: /abbreviate &lt;abbreviation&gt; &lt;title&gt;"
	}
	abbreviation, title := args[0], strings.Join(args[1:], " ")

	err := b.repo.AddAbbreviation(ctx, abbreviation, title)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Sprintf("I have <b>not</b> added the abbreviation '%s' for the title '%s'.\n"+
			"Probably the given title is not included in the available data.",
			html.EscapeString(abbreviation), html.EscapeString(title))
	case err != nil:
		b.log.ErrorContext(ctx, "Failed to add abbreviation", "abbreviation", abbreviation, "error", err)
		return errorReply
	}

	return fmt.Sprintf("I have added the abbreviation '%s' for the title '%s'",
		html.EscapeString(strings.ToLower(abbreviation)), html.EscapeString(title))
}
