package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"court_bot/internal/config"
	"court_bot/internal/dispatch"
	"court_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Refresher runs a processing pass for a single court.
type Refresher interface {
	Refresh(ctx context.Context, court string, force bool) (*dispatch.PassResult, error)
}

// Bot is the Telegram bot that answers chat commands and delivers notifications.
type Bot struct {
	api    telegramAPI
	store  storage.Storage
	engine Refresher
	cfg    *config.Config
	log    *slog.Logger
}

const pollTimeout = 60

// New creates a Bot with the given Telegram token, storage, engine and config.
func New(token string, store storage.Storage, engine Refresher, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	// Long polling holds a request open for pollTimeout seconds.
	client := &http.Client{Timeout: pollTimeout*time.Second + cfg.SendTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:    api,
		store:  store,
		engine: engine,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				from := update.CallbackQuery.From
				if from == nil || !b.cfg.IsUserAllowed(from.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Zugriff verweigert.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Send delivers a text message to the given chat.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.Send(context.Background(), chatID, text); err != nil {
		b.log.Error("send reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := msg.CommandArguments()
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "list":
		b.handleList(ctx, chatID)
	case cmdSessions:
		b.handleSessions(ctx, chatID, args)
	case "update":
		b.handleUpdate(ctx, chatID, args)
	default:
		b.reply(chatID, "Unbekannter Befehl. Mit /help gibt es eine Liste aller Befehle.")
	}
}
