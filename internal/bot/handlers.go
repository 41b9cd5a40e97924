package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"court_bot/internal/dispatch"
	"court_bot/internal/filter"
	"court_bot/internal/model"
	"court_bot/internal/storage"
)

const (
	msgInternalError = "Sorry, ein interner Fehler ist aufgetreten."
	msgUnreachable   = "Ich kann die Website des Gerichts gerade nicht erreichen."
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Willkommen beim Sitzungstermin-Bot!

Ich beobachte die Sitzungskalender der Gerichte und melde mich, sobald neue Termine zu deinen Abos veröffentlicht werden.

Mit /help gibt es eine Liste aller Befehle.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Unterstützte Befehle:
/help
/list - deine Abos
/sessions <Gericht> <Datum> <Aktenzeichen> - aktuelle Termine
/update <Gericht> - Kalender sofort neu laden

Wenn ein Parameter Leerzeichen enthält, muss er in Anführungszeichen gesetzt werden.

Der Name des Gerichts muss sein wie in der URL der Website, also z.B. "vg-koeln".

Das Datum (TT.MM.JJJJ oder JJJJ-MM-TT) kann auch "*" sein, um jedes Datum zu erfassen.

Im Aktenzeichen steht "?" für ein beliebiges einzelnes Zeichen, "*" für eine beliebige Zeichenkette.

Keine Gewähr für verpasste Termine!`)
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	subs, err := b.store.ListSubscriptionsByChat(ctx, chatID)
	if err != nil {
		b.log.Error("list subscriptions", "chat_id", chatID, "error", err)
		b.reply(chatID, msgInternalError)
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatSubscriptionList(subs))
	msg.DisableWebPagePreview = true
	if len(subs) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(subs))
		for _, s := range subs {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(sessionsButton(s.ID, s.Name)))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send subscription list", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleSessions(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseSessionsArgs(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\n\nMit /help gibt es eine Anleitung.", err))
		return
	}
	b.showSessions(ctx, chatID, parsed.Court, parsed.Date, parsed.Reference)
}

// showSessions refreshes the court if it is due and replies with the stored
// sessions passing the given filters.
func (b *Bot) showSessions(ctx context.Context, chatID int64, court, dateFilter, referenceFilter string) {
	var prefix string
	if _, err := b.engine.Refresh(ctx, court, false); err != nil {
		b.log.Warn("refresh before listing", "court", court, "chat_id", chatID, "error", err)
		prefix = msgUnreachable + " Die Liste kann veraltet sein.\n\n"
	}

	c, err := b.store.GetCourt(ctx, court)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "Leider sind keine Informationen für dieses Gericht verfügbar.")
		return
	}
	if err != nil {
		b.log.Error("get court", "court", court, "error", err)
		b.reply(chatID, msgInternalError)
		return
	}

	sessions, err := b.store.ListSessions(ctx, court)
	if err != nil {
		b.log.Error("list sessions", "court", court, "error", err)
		b.reply(chatID, msgInternalError)
		return
	}

	m := filter.Compile(model.Subscription{Court: court, DateFilter: dateFilter, ReferenceFilter: referenceFilter})
	var matched []model.Session
	for _, s := range sessions {
		if m.Match(s) {
			matched = append(matched, s)
		}
	}
	b.reply(chatID, prefix+FormatSessionList(c.DisplayName(), matched))
}

func (b *Bot) handleUpdate(ctx context.Context, chatID int64, args string) {
	court, err := ParseCourtArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	res, err := b.engine.Refresh(ctx, court, true)
	var fetchErr *dispatch.FetchError
	switch {
	case errors.As(err, &fetchErr):
		b.reply(chatID, fmt.Sprintf("%s (%v)", msgUnreachable, fetchErr.Err))
		return
	case err != nil:
		b.log.Error("forced refresh", "court", court, "error", err)
		b.reply(chatID, msgInternalError)
		return
	}

	b.reply(chatID, fmt.Sprintf("Kalender von %s aktualisiert: %d neue, %d entfallene Termine, %d Benachrichtigungen.",
		court, len(res.Diff.Added), len(res.Diff.Removed), len(res.Tasks)))
}
