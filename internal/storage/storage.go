// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"court_bot/internal/model"
)

// Sentinel errors returned by Storage implementations.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("subscription name already exists in this chat")
)

// Commit is everything one court pass persists. It is applied in a single
// transaction: either all of it becomes visible or none of it does.
type Commit struct {
	Court      string
	FullName   string
	LastUpdate int64

	// ReplaceSessions replaces the stored listing with Sessions. When false
	// the stored listing is left as it is.
	ReplaceSessions bool
	Sessions        []model.Session

	// Confirmed lists subscriptions whose confirmation is being queued.
	Confirmed     []int64
	Notifications []model.Notification
}

// Storage is the interface for all persistence operations.
type Storage interface {
	GetCourt(ctx context.Context, name string) (*model.Court, error)
	ListCourts(ctx context.Context) ([]model.Court, error)
	ListSessions(ctx context.Context, court string) ([]model.Session, error)
	CommitPass(ctx context.Context, c *Commit) error

	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id int64) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	ListSubscriptionsByChat(ctx context.Context, chatID int64) ([]model.Subscription, error)
	ListActiveSubscriptions(ctx context.Context, court string) ([]model.Subscription, error)
	UpdateSubscriptionFilters(ctx context.Context, id int64, dateFilter, referenceFilter string) error
	DeleteSubscription(ctx context.Context, chatID int64, name string) (bool, error)

	ClaimNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	CountNotifications(ctx context.Context) (int, error)

	Close() error
}
