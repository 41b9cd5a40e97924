// Package delivery sends queued notifications to their chats.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"court_bot/internal/bot"
	"court_bot/internal/model"
)

// Store hands out queued notifications. A claimed notification is removed
// from the queue, so each one is attempted at most once.
type Store interface {
	ClaimNotifications(ctx context.Context, limit int) ([]model.Notification, error)
}

// Sender delivers rendered text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Error reports a notification that could not be delivered.
type Error struct {
	NotificationID string
	ChatID         int64
	Err            error
}

func (e *Error) Error() string {
	return fmt.Sprintf("deliver notification %s to chat %d: %v", e.NotificationID, e.ChatID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const batchSize = 50

// Worker drains the notification queue at a bounded rate.
type Worker struct {
	store       Store
	sender      Sender
	log         *slog.Logger
	limiter     *rate.Limiter
	sendTimeout time.Duration
	poll        time.Duration
	wake        chan struct{}
}

// New creates a Worker sending at most perSecond messages per second.
func New(store Store, sender Sender, log *slog.Logger, perSecond int) *Worker {
	if perSecond < 1 {
		perSecond = 1
	}
	return &Worker{
		store:       store,
		sender:      sender,
		log:         log,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), perSecond),
		sendTimeout: 15 * time.Second,
		poll:        time.Minute,
		wake:        make(chan struct{}, 1),
	}
}

// SetSendTimeout overrides the default 15-second per-message timeout.
func (w *Worker) SetSendTimeout(d time.Duration) {
	w.sendTimeout = d
}

// SetPollInterval overrides how often the queue is checked without a wake-up.
func (w *Worker) SetPollInterval(d time.Duration) {
	w.poll = d
}

// Notify wakes the worker. It never blocks.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue whenever it is notified or the poll interval
// elapses, blocking until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.Drain(ctx)

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.Drain(ctx)
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain sends queued notifications until the queue is empty and reports
// how many were sent and how many failed.
func (w *Worker) Drain(ctx context.Context) (sent, failed int) {
	for ctx.Err() == nil {
		batch, err := w.store.ClaimNotifications(ctx, batchSize)
		if err != nil {
			w.log.Error("claim notifications", "error", err)
			return sent, failed
		}
		if len(batch) == 0 {
			break
		}

		for i, n := range batch {
			if err := w.limiter.Wait(ctx); err != nil {
				w.log.Warn("dropping claimed notifications", "count", len(batch)-i, "error", err)
				return sent, failed + len(batch) - i
			}
			if err := w.deliver(ctx, n); err != nil {
				w.log.Error("deliver notification",
					"notification_id", n.ID,
					"chat_id", n.ChatID,
					"subscription_id", n.SubscriptionID,
					"error", err,
				)
				failed++
				continue
			}
			sent++
		}
	}

	if sent > 0 || failed > 0 {
		w.log.Info("delivered notifications", "sent", sent, "failed", failed)
	}
	return sent, failed
}

func (w *Worker) deliver(ctx context.Context, n model.Notification) error {
	sctx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	if err := w.sender.Send(sctx, n.ChatID, bot.FormatNotification(n)); err != nil {
		return &Error{NotificationID: n.ID, ChatID: n.ChatID, Err: err}
	}
	return nil
}
