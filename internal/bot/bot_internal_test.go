package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Houeta/edition-tracker/internal/models"
	"github.com/Houeta/edition-tracker/internal/repository"
	"github.com/Houeta/edition-tracker/internal/repository/file"
	"github.com/Houeta/edition-tracker/test/mocks"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v4"
)

func newTestBot(t *testing.T, api API) (*Bot, *repository.Repository) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.New(logger, file.NewStoreFs(logger, afero.NewMemMapFs()))

	return newBot(t.Context(), logger, api, repo, time.UTC), repo
}

func TestStart(t *testing.T) {
	t.Parallel()

	mockBot := mocks.NewAPI(t)
	mockBot.On("Start").Once()

	logger := slog.Default()
	testBot := Bot{bot: mockBot, log: logger}

	testBot.Start()

	mockBot.AssertExpectations(t)
}

func TestStop(t *testing.T) {
	t.Parallel()

	mockBot := mocks.NewAPI(t)
	mockBot.On("Stop").Once()

	logger := slog.Default()
	testBot := Bot{bot: mockBot, log: logger}

	testBot.Stop()

	mockBot.AssertExpectations(t)
}

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()

	mockBot := mocks.NewAPI(t)

	for _, cmd := range []string{"/start", "/subscribe", "/unsubscribe", "/stock", "/history", "/abbreviations", "/abbreviate"} {
		mockBot.On("Handle", cmd, mock.AnythingOfType("telebot.HandlerFunc")).Once()
	}

	logger := slog.Default()
	testBot := Bot{bot: mockBot, log: logger}

	testBot.registerRoutes()

	mockBot.AssertExpectations(t)
}

// =====================================================================================================================
// Notify
// =====================================================================================================================

func TestNotify(t *testing.T) {
	mockBot := mocks.NewAPI(t)
	b, repo := newTestBot(t, mockBot)
	ctx := t.Context()
	require.NoError(t, repo.SubscribeChat(ctx, 42))

	at := time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC)
	d := models.NewDigest()
	d.Stock["A"] = 50
	d.Alert.Back["A"] = 50
	d.Regular = true
	d.NextUpcoming = &models.Reveal{Title: "Nova", StartDate: "2026-10-21 17:00:00", Image: "https://img.example.com/nova.jpg"}

	mockBot.On("Send", telebot.ChatID(42), "<b>A</b> is available again, with a stock of 50", telebot.ModeHTML).
		Return(&telebot.Message{}, nil).Once()
	mockBot.On("Send", telebot.ChatID(42), "<b>Regular Stock Update for October 14 17:00 UTC</b>\n\n<b>A</b>: 50", telebot.ModeHTML).
		Return(&telebot.Message{}, nil).Once()
	mockBot.On("Send", telebot.ChatID(42), mock.MatchedBy(func(p *telebot.Photo) bool {
		return p.Caption == "10/21/2026 - Nova" && p.FileURL == "https://img.example.com/nova.jpg"
	}), telebot.ModeHTML).Return(&telebot.Message{}, nil).Once()

	require.NoError(t, b.Notify(ctx, d, at))

	stock, stockAt := b.cachedStock()
	assert.Equal(t, map[string]int{"A": 50}, stock)
	assert.True(t, at.Equal(stockAt))
}

func TestNotify_NothingToSend(t *testing.T) {
	mockBot := mocks.NewAPI(t)
	b, repo := newTestBot(t, mockBot)
	require.NoError(t, repo.SubscribeChat(t.Context(), 42))

	d := models.NewDigest()
	d.Stock["A"] = 50

	// No Send expectations: a digest without alerts, regular update or reveal is silent.
	require.NoError(t, b.Notify(t.Context(), d, time.Now()))

	stock, _ := b.cachedStock()
	assert.Equal(t, map[string]int{"A": 50}, stock)
}

func TestNotify_DeliveryFailure(t *testing.T) {
	mockBot := mocks.NewAPI(t)
	b, repo := newTestBot(t, mockBot)
	ctx := t.Context()
	require.NoError(t, repo.SubscribeChat(ctx, 1))
	require.NoError(t, repo.SubscribeChat(ctx, 2))

	d := models.NewDigest()
	d.Alert.SoldOut["A"] = 0

	mockBot.On("Send", telebot.ChatID(1), "<b>A</b> sold out!", telebot.ModeHTML).Return(nil, assert.AnError).Once()
	mockBot.On("Send", telebot.ChatID(2), "<b>A</b> sold out!", telebot.ModeHTML).Return(&telebot.Message{}, nil).Once()

	err := b.Notify(ctx, d, time.Now())

	require.ErrorIs(t, err, assert.AnError)
}

// =====================================================================================================================
// Command replies
// =====================================================================================================================

func TestSubscribeReplies(t *testing.T) {
	b, repo := newTestBot(t, mocks.NewAPI(t))
	ctx := t.Context()

	assert.Contains(t, b.subscribeReply(ctx, 7), "Subscribed")
	chats, err := repo.GetSubscribedChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, chats)

	assert.Contains(t, b.unsubscribeReply(ctx, 7), "Unsubscribed")
	chats, err = repo.GetSubscribedChats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestHistoryReply(t *testing.T) {
	b, repo := newTestBot(t, mocks.NewAPI(t))
	ctx := t.Context()

	assert.Contains(t, b.historyReply(ctx, ""), "Usage")
	assert.Equal(t, "Sorry, I do not have the data for Dragon", b.historyReply(ctx, "Dragon"))

	require.NoError(t, repo.SaveMetadata(ctx, models.Metadata{ID: 1, Title: "Dragon"}))
	require.NoError(t, repo.AddAbbreviation(ctx, "drg", "Dragon"))
	require.NoError(t, repo.AppendHistory(ctx, "Dragon", models.StockRecord{
		Time: time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC), Stock: 1000,
	}))
	require.NoError(t, repo.AppendHistory(ctx, "Dragon", models.StockRecord{
		Time: time.Date(2026, 10, 14, 17, 5, 0, 0, time.UTC), Stock: 870,
	}))

	assert.Equal(t, "<b>Dragon</b>\n2026-10-14 17:00: 1000\n2026-10-14 17:05: 870", b.historyReply(ctx, "DRG"))
}

func TestAbbreviationReplies(t *testing.T) {
	b, repo := newTestBot(t, mocks.NewAPI(t))
	ctx := t.Context()

	assert.Equal(t, "Sorry, no abbreviations available", b.abbreviationsReply(ctx, ""))
	assert.Contains(t, b.abbreviateReply(ctx, []string{"drg"}), "Usage")
	assert.Contains(t, b.abbreviateReply(ctx, []string{"drg", "Red", "Dragon"}), "<b>not</b>")

	require.NoError(t, repo.SaveMetadata(ctx, models.Metadata{ID: 1, Title: "Red Dragon"}))
	require.NoError(t, repo.SaveMetadata(ctx, models.Metadata{ID: 2, Title: "Owl"}))

	assert.Equal(t, "I have added the abbreviation 'rd' for the title 'Red Dragon'",
		b.abbreviateReply(ctx, []string{"RD", "Red", "Dragon"}))
	b.abbreviateReply(ctx, []string{"ow", "Owl"})

	assert.Equal(t, "<b>Owl</b>: ow\n<b>Red Dragon</b>: rd", b.abbreviationsReply(ctx, ""))
	assert.Equal(t, "<b>Owl</b>: ow", b.abbreviationsReply(ctx, "owl"))
}

func TestRequestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	b := newBot(ctx, slog.Default(), mocks.NewAPI(t), nil, nil)

	reqCtx, reqCancel := b.requestContext()
	defer reqCancel()

	deadline, ok := reqCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(handlerTimeout), deadline, time.Second)
	require.NoError(t, reqCtx.Err())

	// Shutdown cancels in-flight handler calls.
	cancel()
	require.ErrorIs(t, reqCtx.Err(), context.Canceled)
}

// =====================================================================================================================
// Formatting
// =====================================================================================================================

func TestFormatAlerts(t *testing.T) {
	a := models.NewDigest().Alert
	assert.Empty(t, formatAlerts(a))

	a.EarlyAccessOver["E"] = 420
	a.Back["B"] = 5
	a.SoldOut["S & Co"] = 0
	a.StockLevel["L"] = 100

	assert.Equal(t,
		"Early Access Phase of <b>E</b> is over, remaining stock: 420\n"+
			"<b>B</b> is available again, with a stock of 5\n"+
			"<b>S &amp; Co</b> sold out!\n"+
			"Stock of <b>L</b> went below 100, grab it while you can!",
		formatAlerts(a))
}

func TestFormatStockReport(t *testing.T) {
	assert.Equal(t, "Sorry, no stock data available", formatStockReport(nil, time.Time{}))

	at := time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, "<b>Stock Report</b>\n<i>2026-10-14 17:00 UTC</i>\n\n<b>A</b>: 1\n<b>B</b>: 2",
		formatStockReport(map[string]int{"B": 2, "A": 1}, at))
}

func TestFormatRevealCaption(t *testing.T) {
	tests := []struct {
		name   string
		reveal models.Reveal
		want   string
	}{
		{name: "date and time", reveal: models.Reveal{Title: "Nova", StartDate: "2026-10-21 17:00:00"}, want: "10/21/2026 - Nova"},
		{name: "date only", reveal: models.Reveal{Title: "Nova", StartDate: "2026-10-21"}, want: "10/21/2026 - Nova"},
		{name: "unknown format", reveal: models.Reveal{Title: "Nova", StartDate: "soon"}, want: "soon - Nova"},
		{name: "no date", reveal: models.Reveal{Title: "<Nova>"}, want: "&lt;Nova&gt;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatRevealCaption(&tt.reveal))
		})
	}
}

func TestFormatHistory_Limit(t *testing.T) {
	start := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	records := make([]models.StockRecord, 15)
	for i := range records {
		records[i] = models.StockRecord{Time: start.Add(time.Duration(i) * time.Hour), Stock: 100 - i}
	}

	out := formatHistory("A", records, time.UTC)

	assert.NotContains(t, out, ": 100\n")
	assert.Contains(t, out, "2026-10-14 14:00: 86")
	assert.Equal(t, historyLimit+1, len(strings.Split(out, "\n")))
}
