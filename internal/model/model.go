// Package model defines the domain types used across the application.
package model

import "time"

// Court is a hearing venue whose session calendar is tracked.
type Court struct {
	Name       string `db:"name"`
	FullName   string `db:"full_name"`
	LastUpdate int64  `db:"last_update"`
}

// DisplayName returns the full court name, falling back to the short name.
func (c Court) DisplayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	return c.Name
}

// LastUpdateTime returns LastUpdate as a UTC time, or the zero time if the
// court was never refreshed.
func (c Court) LastUpdateTime() time.Time {
	if c.LastUpdate == 0 {
		return time.Time{}
	}
	return time.Unix(c.LastUpdate, 0).UTC()
}

// Session is one scheduled hearing of a court. It has no surrogate key:
// two sessions are the same session iff all fields are equal.
type Session struct {
	Court     string `db:"court" json:"court"`
	Date      string `db:"date" json:"date"`
	Time      string `db:"time" json:"time"`
	Type      string `db:"type" json:"type"`
	Lawsuit   string `db:"lawsuit" json:"lawsuit"`
	Hall      string `db:"hall" json:"hall"`
	Reference string `db:"reference" json:"reference"`
	Note      string `db:"note" json:"note"`
}

// Subscription is a chat's standing request to be notified about sessions
// of one court that pass its filters.
type Subscription struct {
	ID               int64  `db:"subscription_id"`
	ChatID           int64  `db:"chat_id"`
	Court            string `db:"court"`
	Name             string `db:"name"`
	DateFilter       string `db:"date_filter"`
	ReferenceFilter  string `db:"reference_filter"`
	ConfirmationSent bool   `db:"confirmation_sent"`
}

// NotificationKind defines the type of an outbound notification.
type NotificationKind string

// Supported notification kinds.
const (
	KindConfirmation NotificationKind = "confirmation"
	KindSession      NotificationKind = "session"
)

// Notification is an outbound message task waiting in the outbox.
type Notification struct {
	ID               string
	Kind             NotificationKind
	ChatID           int64
	SubscriptionID   int64
	SubscriptionName string
	Court            string
	CourtName        string
	Sessions         []Session
	CreatedAt        time.Time
}
