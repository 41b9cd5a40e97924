package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"court_bot/internal/dispatch"
	"court_bot/internal/model"
	"court_bot/internal/subscription"
)

// Runner runs a processing pass for one court.
type Runner interface {
	RunPass(ctx context.Context, court string, subs []model.Subscription, force bool) (*dispatch.PassResult, error)
}

// Scheduler periodically runs a pass for every court that has subscribers.
type Scheduler struct {
	engine  Runner
	source  subscription.Source
	log     *slog.Logger
	tick    time.Duration
	workers int
}

// New creates a Scheduler running at most workers passes at a time.
func New(engine Runner, source subscription.Source, log *slog.Logger, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		engine:  engine,
		source:  source,
		log:     log,
		tick:    5 * time.Minute,
		workers: workers,
	}
}

// SetTickInterval overrides the default 5-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

// checkAll takes one subscription snapshot and runs a pass for each of its
// courts. A failing court never stops the others.
func (s *Scheduler) checkAll(ctx context.Context) {
	ix, err := subscription.Build(ctx, s.source)
	if err != nil {
		s.log.Error("build subscription index", "error", err)
		return
	}

	courts := ix.Courts()
	s.log.Debug("checking courts", "courts", len(courts), "subscriptions", ix.Len())

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, court := range courts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.processCourt(ctx, court, ix.For(court))
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) processCourt(ctx context.Context, court string, subs []model.Subscription) {
	s.log.Debug("checking court", "court", court, "subscriptions", len(subs))

	res, err := s.engine.RunPass(ctx, court, subs, false)
	var fetchErr *dispatch.FetchError
	switch {
	case errors.As(err, &fetchErr):
		s.log.Warn("fetch court", "court", court, "error", fetchErr.Err)
		return
	case err != nil:
		s.log.Error("process court", "court", court, "error", err)
		return
	}

	if len(res.Tasks) > 0 {
		s.log.Info("queued notifications", "court", court, "count", len(res.Tasks))
	}
}
