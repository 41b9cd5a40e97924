// Package subscription indexes active subscriptions by court.
package subscription

import (
	"context"
	"fmt"
	"sort"

	"court_bot/internal/model"
)

// Source is the authoritative store of subscriptions.
type Source interface {
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	ListActiveSubscriptions(ctx context.Context, court string) ([]model.Subscription, error)
}

// Index is a snapshot of subscriptions grouped by court. It is built once
// per processing round and never refreshed behind the caller's back.
type Index struct {
	byCourt map[string][]model.Subscription
}

// Build loads every subscription from src and groups them by court.
func Build(ctx context.Context, src Source) (*Index, error) {
	subs, err := src.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	ix := &Index{byCourt: make(map[string][]model.Subscription)}
	for _, s := range subs {
		ix.byCourt[s.Court] = append(ix.byCourt[s.Court], s)
	}
	return ix, nil
}

// Refresh reloads the subscriptions of a single court.
func (ix *Index) Refresh(ctx context.Context, src Source, court string) error {
	subs, err := src.ListActiveSubscriptions(ctx, court)
	if err != nil {
		return fmt.Errorf("list subscriptions for %s: %w", court, err)
	}
	if ix.byCourt == nil {
		ix.byCourt = make(map[string][]model.Subscription)
	}
	if len(subs) == 0 {
		delete(ix.byCourt, court)
		return nil
	}
	ix.byCourt[court] = subs
	return nil
}

// For returns the subscriptions bound to court.
func (ix *Index) For(court string) []model.Subscription {
	return ix.byCourt[court]
}

// Courts returns the names of all courts with at least one subscription, sorted.
func (ix *Index) Courts() []string {
	courts := make([]string, 0, len(ix.byCourt))
	for c := range ix.byCourt {
		courts = append(courts, c)
	}
	sort.Strings(courts)
	return courts
}

// Len returns the total number of indexed subscriptions.
func (ix *Index) Len() int {
	n := 0
	for _, subs := range ix.byCourt {
		n += len(subs)
	}
	return n
}
