package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/myrjola/ruckplan/internal/errors"
	"github.com/myrjola/ruckplan/internal/logging"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	Checked     int `json:"checked"`
	Regenerated int `json:"regenerated"`
	Failed      int `json:"failed"`
	Pruned      int `json:"pruned"`
}

// Sweeper periodically regenerates the workflows of sessions whose regeneration check fires and prunes the cache.
type Sweeper struct {
	service     *Service
	logger      *slog.Logger
	concurrency int

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper creates a sweeper regenerating at most concurrency sessions at a time.
func NewSweeper(service *Service, logger *slog.Logger, concurrency int) *Sweeper {
	return &Sweeper{
		service:     service,
		logger:      logger,
		concurrency: max(concurrency, 1),
		mu:          sync.Mutex{},
		cron:        nil,
	}
}

// Start runs a sweep on every tick of the cron schedule, e.g. "@every 1h" or "0 3 * * *", until Stop is called or
// ctx is done.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.LogAttrs(ctx, slog.LevelError, "sweep failed", errors.SlogError(err))
		}
	}); err != nil {
		return fmt.Errorf("%w: sweep schedule %q: %w", ErrInvalidParameters, schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.LogAttrs(ctx, slog.LevelInfo, "started regeneration sweeper",
		slog.String("schedule", schedule), slog.Int("concurrency", s.concurrency))
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// RunOnce checks every active session and regenerates those needing it with the first reason that fired. A failing
// session is logged and counted; it does not stop the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	ids, err := s.service.ActiveSessions(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var regenerated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			sctx := logging.WithSessionID(gctx, id)
			ok, sweepErr := s.sweepSession(sctx, id)
			switch {
			case sweepErr != nil:
				failed.Add(1)
				s.logger.LogAttrs(sctx, slog.LevelWarn, "sweep session", errors.SlogError(sweepErr))
			case ok:
				regenerated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	pruned, err := s.service.PruneCache(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{
		Checked:     len(ids),
		Regenerated: int(regenerated.Load()),
		Failed:      int(failed.Load()),
		Pruned:      pruned,
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "sweep completed",
		slog.Int("checked", result.Checked), slog.Int("regenerated", result.Regenerated),
		slog.Int("failed", result.Failed), slog.Int("pruned", result.Pruned))
	return result, nil
}

func (s *Sweeper) sweepSession(ctx context.Context, id string) (bool, error) {
	check, err := s.service.CheckRegeneration(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		// Deactivated after the listing.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !check.NeedsRegeneration {
		return false, nil
	}
	reason := check.Reasons[0]
	if reason != ReasonExpired && reason != ReasonInitial && !check.Metrics.RecordedAt.After(check.GeneratedAt) {
		// The workflow was already generated from these metrics.
		return false, nil
	}
	if reason == ReasonInitial {
		_, err = s.service.Generate(ctx, id)
	} else {
		_, err = s.service.Regenerate(ctx, id, reason)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
