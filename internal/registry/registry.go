// Package registry tracks when each court was last refreshed and decides
// whether a refresh is due.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // Europe/Berlin must resolve on minimal images.

	"github.com/robfig/cron/v3"

	"court_bot/internal/model"
	"court_bot/internal/storage"
)

// Store is the read side of the court table.
type Store interface {
	GetCourt(ctx context.Context, name string) (*model.Court, error)
}

// Policy says a court is due once a scheduled refresh instant has passed
// since its last update. With the default "0 8 * * *" in Europe/Berlin a
// court is refreshed at most once per day after 08:00 local time, unless forced.
type Policy struct {
	schedule cron.Schedule
}

// NewPolicy parses a standard five-field cron spec evaluated in timezone.
func NewPolicy(spec, timezone string) (*Policy, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	sched, err := cron.ParseStandard(fmt.Sprintf("CRON_TZ=%s %s", timezone, spec))
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	return &Policy{schedule: sched}, nil
}

// Due reports whether a court last updated at last needs a refresh at now.
func (p *Policy) Due(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return !p.schedule.Next(last).After(now)
}

// Status is the registry's view of one court before a pass.
type Status struct {
	Court model.Court
	Known bool
	Due   bool
}

// Registry combines the stored court rows with the refresh policy.
type Registry struct {
	store  Store
	policy *Policy
	now    func() time.Time
}

// New creates a Registry.
func New(store Store, policy *Policy) *Registry {
	return &Registry{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// SetClock overrides the time source (useful for testing).
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Check loads the court's row and decides whether a refresh is due.
// Unknown courts are always due.
func (r *Registry) Check(ctx context.Context, name string, force bool) (Status, error) {
	court, err := r.store.GetCourt(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return Status{Court: model.Court{Name: name}, Due: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("get court %s: %w", name, err)
	}
	due := force || r.policy.Due(court.LastUpdateTime(), r.now())
	return Status{Court: *court, Known: true, Due: due}, nil
}

// NextTimestamp returns the last-update value to commit after a successful
// refresh. It never goes backwards, even if the clock does.
func (r *Registry) NextTimestamp(c model.Court) int64 {
	return max(c.LastUpdate, r.now().Unix())
}
