package bot

import (
	"context"

	"github.com/Houeta/edition-tracker/internal/models"
	"gopkg.in/telebot.v4"
)

type API interface {
	// Handle lets you set the handler for some command name or one of the supported endpoints. It also applies middleware if such passed to the function.
	Handle(endpoint interface{}, h telebot.HandlerFunc, m ...telebot.MiddlewareFunc)
	// Start brings bot into motion by consuming incoming updates (see Bot.Updates channel).
	Start()
	// Stop gracefully shuts the poller down.
	Stop()

	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Repository is the part of the storage the bot reads and writes.
type Repository interface {
	SubscribeChat(ctx context.Context, chatID int64) error
	UnsubscribeChat(ctx context.Context, chatID int64) error
	GetSubscribedChats(ctx context.Context) ([]int64, error)
	History(ctx context.Context, title string) ([]models.StockRecord, error)
	Abbreviations(ctx context.Context) (map[string]string, error)
	AddAbbreviation(ctx context.Context, abbreviation, title string) error
	ResolveTitle(ctx context.Context, name string) string
}
