package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"court_bot/internal/model"
	"court_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrations.Run(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func newFromDB(db *sqlx.DB) *SQLite {
	return &SQLite{db: db}
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetCourt returns a court by its short name.
func (s *SQLite) GetCourt(ctx context.Context, name string) (*model.Court, error) {
	var c model.Court
	err := s.db.GetContext(ctx, &c,
		`SELECT name, COALESCE(full_name, '') AS full_name, last_update FROM courts WHERE name = ?`, name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get court: %w", err)
	}
	return &c, nil
}

// ListCourts returns all known courts ordered by name.
func (s *SQLite) ListCourts(ctx context.Context) ([]model.Court, error) {
	var courts []model.Court
	err := s.db.SelectContext(ctx, &courts,
		`SELECT name, COALESCE(full_name, '') AS full_name, last_update FROM courts ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list courts: %w", err)
	}
	return courts, nil
}

// ListSessions returns the stored listing of a court in its original order.
func (s *SQLite) ListSessions(ctx context.Context, court string) ([]model.Session, error) {
	var sessions []model.Session
	err := s.db.SelectContext(ctx, &sessions,
		`SELECT court, date, time, type, lawsuit, hall, reference, note
		 FROM sessions WHERE court = ? ORDER BY position`, court,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// CommitPass atomically stores the outcome of a court pass: the court row,
// its listing, confirmation flags and queued notifications.
func (s *SQLite) CommitPass(ctx context.Context, c *Commit) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fullName sql.NullString
	if c.FullName != "" {
		fullName = sql.NullString{String: c.FullName, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO courts (name, full_name, last_update) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   full_name = COALESCE(excluded.full_name, courts.full_name),
		   last_update = MAX(courts.last_update, excluded.last_update)`,
		c.Court, fullName, c.LastUpdate,
	); err != nil {
		return fmt.Errorf("upsert court: %w", err)
	}

	if c.ReplaceSessions {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE court = ?`, c.Court); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		for i, ss := range c.Sessions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sessions (court, position, date, time, type, lawsuit, hall, reference, note)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.Court, i, ss.Date, ss.Time, ss.Type, ss.Lawsuit, ss.Hall, ss.Reference, ss.Note,
			); err != nil {
				return fmt.Errorf("insert session: %w", err)
			}
		}
	}

	// A subscription confirmed by an earlier commit keeps its flag and its
	// confirmation is not queued again.
	stale := make(map[int64]bool)
	for _, id := range c.Confirmed {
		res, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET confirmation_sent = 1
			 WHERE subscription_id = ? AND confirmation_sent = 0`, id,
		)
		if err != nil {
			return fmt.Errorf("confirm subscription %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("confirm subscription %d: %w", id, err)
		}
		if n == 0 {
			stale[id] = true
		}
	}

	for _, n := range c.Notifications {
		if n.Kind == model.KindConfirmation && stale[n.SubscriptionID] {
			continue
		}
		payload, err := json.Marshal(n.Sessions)
		if err != nil {
			return fmt.Errorf("encode notification payload: %w", err)
		}
		created := n.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notifications
			   (id, kind, chat_id, subscription_id, subscription_name, court, court_name, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, string(n.Kind), n.ChatID, n.SubscriptionID, n.SubscriptionName,
			n.Court, n.CourtName, string(payload), created.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("queue notification: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateSubscription inserts a new subscription and populates its ID.
// It returns ErrDuplicate if the chat already has a subscription of that name.
func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.GetContext(ctx, &exists,
		`SELECT COUNT(*) FROM subscriptions WHERE chat_id = ? AND name = ?`, sub.ChatID, sub.Name,
	); err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}
	if exists > 0 {
		return ErrDuplicate
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (chat_id, court, name, date_filter, reference_filter, confirmation_sent)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ChatID, sub.Court, sub.Name, sub.DateFilter, sub.ReferenceFilter, boolToInt(sub.ConfirmationSent),
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	sub.ID = id
	return nil
}

const subscriptionColumns = `subscription_id, chat_id, court, name, date_filter, reference_filter, confirmation_sent`

// GetSubscription returns a single subscription by its ID.
func (s *SQLite) GetSubscription(ctx context.Context, id int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.GetContext(ctx, &sub,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_id = ?`, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions returns every subscription.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	return s.selectSubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY subscription_id`)
}

// ListSubscriptionsByChat returns all subscriptions belonging to a chat.
func (s *SQLite) ListSubscriptionsByChat(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	return s.selectSubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE chat_id = ? ORDER BY subscription_id`, chatID)
}

// ListActiveSubscriptions returns the subscriptions bound to a court.
func (s *SQLite) ListActiveSubscriptions(ctx context.Context, court string) ([]model.Subscription, error) {
	return s.selectSubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE court = ? ORDER BY subscription_id`, court)
}

func (s *SQLite) selectSubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	var subs []model.Subscription
	if err := s.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateSubscriptionFilters replaces the filters of a subscription.
func (s *SQLite) UpdateSubscriptionFilters(ctx context.Context, id int64, dateFilter, referenceFilter string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET date_filter = ?, reference_filter = ? WHERE subscription_id = ?`,
		dateFilter, referenceFilter, id,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscription removes a chat's subscription by name and reports
// whether anything was deleted.
func (s *SQLite) DeleteSubscription(ctx context.Context, chatID int64, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ? AND name = ?`, chatID, name,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type notificationRow struct {
	Seq              int64  `db:"seq"`
	ID               string `db:"id"`
	Kind             string `db:"kind"`
	ChatID           int64  `db:"chat_id"`
	SubscriptionID   int64  `db:"subscription_id"`
	SubscriptionName string `db:"subscription_name"`
	Court            string `db:"court"`
	CourtName        string `db:"court_name"`
	Payload          string `db:"payload"`
	CreatedAt        string `db:"created_at"`
}

// ClaimNotifications removes up to limit queued notifications, oldest first,
// and returns them. A claimed notification is never handed out again.
func (s *SQLite) ClaimNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rows []notificationRow
	if err := tx.SelectContext(ctx, &rows,
		`SELECT seq, id, kind, chat_id, subscription_id, subscription_name, court, court_name, payload, created_at
		 FROM notifications ORDER BY seq LIMIT ?`, limit,
	); err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	seqs := make([]int64, len(rows))
	out := make([]model.Notification, 0, len(rows))
	for i, r := range rows {
		seqs[i] = r.Seq
		n := model.Notification{
			ID:               r.ID,
			Kind:             model.NotificationKind(r.Kind),
			ChatID:           r.ChatID,
			SubscriptionID:   r.SubscriptionID,
			SubscriptionName: r.SubscriptionName,
			Court:            r.Court,
			CourtName:        r.CourtName,
		}
		if err := json.Unmarshal([]byte(r.Payload), &n.Sessions); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", r.ID, err)
		}
		n.CreatedAt, _ = time.Parse(timeLayout, r.CreatedAt)
		out = append(out, n)
	}

	query, args, err := sqlx.In(`DELETE FROM notifications WHERE seq IN (?)`, seqs)
	if err != nil {
		return nil, fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("delete notifications: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// CountNotifications returns the number of queued notifications.
func (s *SQLite) CountNotifications(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM notifications`); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
