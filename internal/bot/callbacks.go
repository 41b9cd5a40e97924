package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const cmdSessions = "sessions"

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, idStr, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	log := b.log.With("action", action, "id", id, "chat_id", chatID)
	if cb.From != nil {
		log = log.With("user_id", cb.From.ID, "username", cb.From.UserName)
	}
	log.Info("callback")

	switch action {
	case cmdSessions:
		sub, err := b.store.GetSubscription(ctx, id)
		if err != nil || sub.ChatID != chatID {
			b.reply(chatID, fmt.Sprintf("Abo #%d wurde nicht gefunden.", id))
			return
		}
		b.showSessions(ctx, chatID, sub.Court, sub.DateFilter, sub.ReferenceFilter)
	}
}

func sessionsButton(id int64, name string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(
		fmt.Sprintf("Termine: %s", name),
		fmt.Sprintf("%s:%d", cmdSessions, id),
	)
}
