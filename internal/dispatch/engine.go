// Package dispatch runs processing passes: fetch a court's listing, diff it
// against the stored one, match the changes against subscriptions, queue
// notifications and commit everything at once.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"court_bot/internal/diff"
	"court_bot/internal/fetcher"
	"court_bot/internal/filter"
	"court_bot/internal/model"
	"court_bot/internal/registry"
	"court_bot/internal/storage"
	"court_bot/internal/subscription"
)

// Fetcher returns the current listing of a court.
type Fetcher interface {
	Fetch(ctx context.Context, court string) (*fetcher.Listing, error)
}

// Notifier is woken after a commit queued new notifications.
type Notifier interface {
	Notify()
}

// Store is the persistence the engine needs.
type Store interface {
	subscription.Source
	ListSessions(ctx context.Context, court string) ([]model.Session, error)
	CommitPass(ctx context.Context, c *storage.Commit) error
}

// PassResult describes what a pass did.
type PassResult struct {
	Court string
	// Skipped is set when the court was not due and nothing was fetched.
	Skipped   bool
	Diff      diff.Result
	Tasks     []model.Notification
	Confirmed []int64
}

// Engine runs passes. Passes for the same court are serialised, passes for
// different courts run independently.
type Engine struct {
	store        Store
	fetcher      Fetcher
	registry     *registry.Registry
	notifier     Notifier
	log          *slog.Logger
	fetchTimeout time.Duration
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine. notifier may be nil.
func New(store Store, f Fetcher, reg *registry.Registry, notifier Notifier, log *slog.Logger) *Engine {
	return &Engine{
		store:        store,
		fetcher:      f,
		registry:     reg,
		notifier:     notifier,
		log:          log,
		fetchTimeout: 60 * time.Second,
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
	}
}

// SetFetchTimeout overrides the default 60-second fetch timeout.
func (e *Engine) SetFetchTimeout(d time.Duration) {
	e.fetchTimeout = d
}

// SetNotifier sets the notifier woken after commits that queued notifications.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

func (e *Engine) lock(court string) func() {
	e.mu.Lock()
	l, ok := e.locks[court]
	if !ok {
		l = &sync.Mutex{}
		e.locks[court] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Refresh runs a pass for court with its subscriptions loaded under the
// court's lock.
func (e *Engine) Refresh(ctx context.Context, court string, force bool) (*PassResult, error) {
	unlock := e.lock(court)
	defer unlock()

	var ix subscription.Index
	if err := ix.Refresh(ctx, e.store, court); err != nil {
		return nil, err
	}
	return e.runPass(ctx, court, ix.For(court), force)
}

// RunPass processes one court against the given subscription snapshot.
// On a fetch error nothing is persisted and a *FetchError is returned; a
// failed commit returns a *ConsistencyError.
func (e *Engine) RunPass(ctx context.Context, court string, subs []model.Subscription, force bool) (*PassResult, error) {
	unlock := e.lock(court)
	defer unlock()

	subs, err := e.syncConfirmations(ctx, court, subs)
	if err != nil {
		return nil, err
	}
	return e.runPass(ctx, court, subs, force)
}

// syncConfirmations refreshes the confirmation flags of a snapshot taken
// before the court's lock was held. The snapshot's membership is kept.
func (e *Engine) syncConfirmations(ctx context.Context, court string, subs []model.Subscription) ([]model.Subscription, error) {
	if !hasUnconfirmed(subs) {
		return subs, nil
	}
	current, err := e.store.ListActiveSubscriptions(ctx, court)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", court, err)
	}
	sent := make(map[int64]bool, len(current))
	for _, sub := range current {
		sent[sub.ID] = sub.ConfirmationSent
	}

	out := make([]model.Subscription, len(subs))
	for i, sub := range subs {
		if sent[sub.ID] {
			sub.ConfirmationSent = true
		}
		out[i] = sub
	}
	return out, nil
}

func hasUnconfirmed(subs []model.Subscription) bool {
	for _, sub := range subs {
		if !sub.ConfirmationSent {
			return true
		}
	}
	return false
}

// runPass expects the court's lock to be held.
func (e *Engine) runPass(ctx context.Context, court string, subs []model.Subscription, force bool) (*PassResult, error) {
	status, err := e.registry.Check(ctx, court, force)
	if err != nil {
		return nil, err
	}
	if !status.Due {
		return e.confirmStored(ctx, court, status.Court, subs)
	}

	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	listing, err := e.fetcher.Fetch(fctx, court)
	cancel()
	if err != nil {
		return nil, &FetchError{Court: court, Err: err}
	}

	stored, err := e.store.ListSessions(ctx, court)
	if err != nil {
		return nil, fmt.Errorf("load sessions of %s: %w", court, err)
	}
	d := diff.Compute(stored, listing.Sessions)

	courtName := listing.FullName
	if courtName == "" {
		courtName = status.Court.DisplayName()
	}

	res := &PassResult{Court: court, Diff: d}
	newTask := e.taskBuilder(court, courtName)
	matchers := e.compile(court, subs)

	// Confirmations go first and carry what already matches. Added sessions
	// are left to the session tasks below so nothing is reported twice.
	res.Tasks, res.Confirmed = confirmationTasks(subs, matchers, d.Unchanged, newTask)

	for _, s := range d.Added {
		for i, sub := range subs {
			if matchers[i].Match(s) {
				res.Tasks = append(res.Tasks, newTask(model.KindSession, sub, []model.Session{s}))
			}
		}
	}

	commit := &storage.Commit{
		Court:           court,
		FullName:        listing.FullName,
		LastUpdate:      e.registry.NextTimestamp(status.Court),
		ReplaceSessions: !d.Empty(),
		Sessions:        listing.Sessions,
		Confirmed:       res.Confirmed,
		Notifications:   res.Tasks,
	}
	if err := e.store.CommitPass(ctx, commit); err != nil {
		return nil, &ConsistencyError{Court: court, Err: err}
	}
	e.notify(res.Tasks)

	e.log.Info("court refreshed",
		"court", court,
		"added", len(d.Added),
		"removed", len(d.Removed),
		"notifications", len(res.Tasks),
	)
	return res, nil
}

// confirmStored answers unconfirmed subscriptions of a court that is not due
// from its stored listing. Sessions and the refresh timestamp stay untouched.
func (e *Engine) confirmStored(ctx context.Context, court string, c model.Court, subs []model.Subscription) (*PassResult, error) {
	res := &PassResult{Court: court, Skipped: true}
	if !hasUnconfirmed(subs) {
		e.log.Debug("court not due", "court", court)
		return res, nil
	}

	stored, err := e.store.ListSessions(ctx, court)
	if err != nil {
		return nil, fmt.Errorf("load sessions of %s: %w", court, err)
	}
	newTask := e.taskBuilder(court, c.DisplayName())
	res.Tasks, res.Confirmed = confirmationTasks(subs, e.compile(court, subs), stored, newTask)

	commit := &storage.Commit{
		Court:         court,
		LastUpdate:    c.LastUpdate,
		Confirmed:     res.Confirmed,
		Notifications: res.Tasks,
	}
	if err := e.store.CommitPass(ctx, commit); err != nil {
		return nil, &ConsistencyError{Court: court, Err: err}
	}
	e.notify(res.Tasks)

	e.log.Info("subscriptions confirmed", "court", court, "count", len(res.Confirmed))
	return res, nil
}

type taskFunc func(kind model.NotificationKind, sub model.Subscription, sessions []model.Session) model.Notification

func (e *Engine) taskBuilder(court, courtName string) taskFunc {
	created := e.now().UTC()
	return func(kind model.NotificationKind, sub model.Subscription, sessions []model.Session) model.Notification {
		return model.Notification{
			ID:               ulid.Make().String(),
			Kind:             kind,
			ChatID:           sub.ChatID,
			SubscriptionID:   sub.ID,
			SubscriptionName: sub.Name,
			Court:            court,
			CourtName:        courtName,
			Sessions:         sessions,
			CreatedAt:        created,
		}
	}
}

func (e *Engine) compile(court string, subs []model.Subscription) []filter.Matcher {
	matchers := make([]filter.Matcher, len(subs))
	for i, sub := range subs {
		matchers[i] = filter.Compile(sub)
		if !matchers[i].Valid() {
			e.log.Warn("subscription has malformed filters",
				"court", court, "subscription_id", sub.ID,
				"date_filter", sub.DateFilter, "reference_filter", sub.ReferenceFilter)
		}
	}
	return matchers
}

// confirmationTasks builds one confirmation per unconfirmed subscription, each
// listing the sessions it already matches.
func confirmationTasks(subs []model.Subscription, matchers []filter.Matcher, sessions []model.Session, newTask taskFunc) ([]model.Notification, []int64) {
	var tasks []model.Notification
	var ids []int64
	for i, sub := range subs {
		if sub.ConfirmationSent {
			continue
		}
		var current []model.Session
		for _, s := range sessions {
			if matchers[i].Match(s) {
				current = append(current, s)
			}
		}
		tasks = append(tasks, newTask(model.KindConfirmation, sub, current))
		ids = append(ids, sub.ID)
	}
	return tasks, ids
}

func (e *Engine) notify(tasks []model.Notification) {
	if len(tasks) > 0 && e.notifier != nil {
		e.notifier.Notify()
	}
}
