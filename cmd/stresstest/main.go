package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/myrjola/ruckplan/internal/e2etest"
	"github.com/myrjola/ruckplan/internal/logging"
	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/myrjola/ruckplan/internal/testhelpers"
	"golang.org/x/sync/errgroup"
)

const (
	enrollTimeout           = 30 * time.Second
	scenarioTimeout         = 30 * time.Second
	maxConcurrentEnrollment = 10
	maxConcurrentOperations = 20
	defaultSessions         = 20
	scenarioRounds          = 5
	successRateThreshold    = 95.0
	percentageMultiplier    = 100
)

//nolint:gochecknoglobals // read-only scenario input.
var (
	categories = []plan.Category{
		plan.CategoryMilitary, plan.CategoryEndurance, plan.CategoryStrength, plan.CategoryGeneral,
	}
	difficulties = []plan.Difficulty{plan.DifficultyBeginner, plan.DifficultyIntermediate, plan.DifficultyAdvanced}
	weekdaySets = [][]string{{"mon", "wed", "fri"}, {"tue", "thu", "sat"}, {"mon", "tue", "thu", "sat"}, {"sun"}}
)

// EnrollSessions enrolls n sessions with a spread of categories, difficulties and weekdays.
func EnrollSessions(ctx context.Context, client *e2etest.Client, n int, logger *slog.Logger) ([]plan.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, enrollTimeout)
	defer cancel()

	sessions := make([]plan.Session, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEnrollment)
	for i := range n {
		g.Go(func() error {
			s, err := client.Enroll(gctx, categories[i%len(categories)], difficulties[i%len(difficulties)],
				weekdaySets[i%len(weekdaySets)]...)
			if err != nil {
				return fmt.Errorf("session %d: %w", i, err)
			}
			sessions[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enroll sessions: %w", err)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "enrolled sessions", slog.Int("count", n))
	return sessions, nil
}

// randomMetrics draws a performance snapshot that sometimes triggers adaptation.
//
//nolint:gosec,mnd // load test data
func randomMetrics() plan.PerformanceMetrics {
	m := plan.NeutralPerformance()
	m.Consistency = rand.Float64()
	m.AverageEffort = 0.5 + rand.Float64()*0.6
	m.ProgressTrend = rand.Float64()*0.4 - 0.2
	m.MissedWorkouts = rand.IntN(4)
	m.FeedbackRating = 1 + rand.IntN(5)
	m.CompletionTimeRatio = 0.8 + rand.Float64()*0.5
	return m
}

// SessionScenario records performance, checks and regenerates the workflow and completes an open workout.
func SessionScenario(ctx context.Context, client *e2etest.Client, session plan.Session) error {
	base := "/api/sessions/" + session.ID
	for range scenarioRounds {
		if err := client.PostJSON(ctx, base+"/performance", randomMetrics(), nil); err != nil {
			return fmt.Errorf("record performance: %w", err)
		}
		var check plan.RegenerationCheck
		if err := client.GetJSON(ctx, base+"/workflow/check", &check); err != nil {
			return fmt.Errorf("check regeneration: %w", err)
		}
		if check.NeedsRegeneration {
			body := map[string]plan.RegenerationReason{"reason": check.Reasons[0]}
			if err := client.PostJSON(ctx, base+"/workflow/regenerate", body, nil); err != nil {
				return fmt.Errorf("regenerate: %w", err)
			}
		}
		var schedule []plan.ScheduledWorkout
		if err := client.GetJSON(ctx, base+"/schedule", &schedule); err != nil {
			return fmt.Errorf("get schedule: %w", err)
		}
		if err := checkSchedule(schedule); err != nil {
			return err
		}
		for _, s := range schedule {
			if s.Completed || s.Locked {
				continue
			}
			if err := client.PostJSON(ctx, base+"/workouts/"+s.WorkoutID+"/complete", nil, nil); err != nil {
				return fmt.Errorf("complete workout: %w", err)
			}
			break
		}
	}
	return nil
}

// checkSchedule verifies the schedule holds at most one workout per day in date order. Concurrent regenerations of a
// session that interleave would break it.
func checkSchedule(schedule []plan.ScheduledWorkout) error {
	for i := 1; i < len(schedule); i++ {
		if !schedule[i-1].Date.Before(schedule[i].Date) {
			return fmt.Errorf("schedule out of order at %s: %s follows %s", schedule[i].WorkoutID,
				schedule[i].Date.Format(time.DateOnly), schedule[i-1].Date.Format(time.DateOnly))
		}
	}
	return nil
}

// RunLoadTest runs the session scenario for every session concurrently and fails below the success threshold.
func RunLoadTest(ctx context.Context, client *e2etest.Client, sessions []plan.Session, logger *slog.Logger) error {
	logger.LogAttrs(ctx, slog.LevelInfo, "Starting load test", slog.Int("num_sessions", len(sessions)))

	var successCount, failureCount atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOperations)
	for _, s := range sessions {
		g.Go(func() error {
			scenarioCtx, cancel := context.WithTimeout(gctx, scenarioTimeout)
			defer cancel()
			if err := SessionScenario(scenarioCtx, client, s); err != nil {
				failureCount.Add(1)
				logger.LogAttrs(scenarioCtx, slog.LevelWarn, "Scenario failed",
					slog.String("session_id", s.ID), slog.Any("error", err))
				return nil
			}
			successCount.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load test failed: %w", err)
	}

	successRate := float64(successCount.Load()) / float64(len(sessions)) * percentageMultiplier
	logger.LogAttrs(ctx, slog.LevelInfo, "Load test completed",
		slog.Int64("successful", successCount.Load()),
		slog.Int64("failed", failureCount.Load()),
		slog.Float64("success_rate", successRate))
	if successRate < successRateThreshold {
		return fmt.Errorf("load test failed: success rate %.1f%% below threshold", successRate)
	}
	return nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) < 2 || len(os.Args) > 3 { //nolint:mnd // hostname and optional session count
		logger.LogAttrs(ctx, slog.LevelError, "usage: stresstest <hostname> [sessions]")
		os.Exit(1)
	}
	var (
		hostname    = os.Args[1]
		numSessions = defaultSessions
		start       = time.Now()
		err         error
	)
	if len(os.Args) == 3 { //nolint:mnd // session count given
		if numSessions, err = strconv.Atoi(os.Args[2]); err != nil || numSessions < 1 {
			logger.LogAttrs(ctx, slog.LevelError, "sessions must be a positive number",
				slog.Any("error", errors.Join(err, errors.New("invalid session count"))))
			os.Exit(1)
		}
	}
	ctx = logging.WithAttrs(ctx, slog.String("hostname", hostname))

	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
	}
	client := e2etest.NewClient(url)
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready in time", slog.Any("error", err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Running smoke test first...")
	if err = e2etest.Smoke(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "smoke test failed", slog.Any("error", err))
		os.Exit(1)
	}

	sessions, err := EnrollSessions(ctx, client, numSessions, logger)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failed to enroll sessions", slog.Any("error", err))
		os.Exit(1)
	}

	loadTestStart := time.Now()
	if err = RunLoadTest(ctx, client, sessions, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "load test failed", slog.Any("error", err))
		os.Exit(1)
	}

	var sweep plan.SweepResult
	if err = client.PostJSON(ctx, "/api/sweep", nil, &sweep); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "sweep failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Load test completed successfully 🙌",
		slog.Duration("total_duration", time.Since(start)),
		slog.Duration("load_test_duration", time.Since(loadTestStart)),
		slog.Int("swept", sweep.Checked), slog.Int("sweep_regenerated", sweep.Regenerated))
}
