// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Accumulator resets run at local midnight: Monday for the week, the 1st for
// the month.
const (
	WeeklyResetCron  = "0 0 * * 1"
	MonthlyResetCron = "0 0 1 * *"
)

// StartProgressScheduler registers the periodic progression jobs and starts
// the scheduler. The caller owns Shutdown.
func (s *ProgressionService) StartProgressScheduler(ctx context.Context, rankEvery time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithLocation(s.Location),
		gocron.WithClock(s.Clock),
	)
	if err != nil {
		return nil, err
	}

	// Weekly leaderboard reset
	if _, err := sched.NewJob(
		gocron.CronJob(WeeklyResetCron, false),
		gocron.NewTask(func() {
			n, err := s.ResetWeeklyXP(ctx)
			if err != nil {
				log.Printf("[Scheduler] weekly XP reset failed: %v", err)
				return
			}
			log.Printf("✅ [Scheduler] weekly XP reset for %d users", n)
		}),
		gocron.WithName("weekly-xp-reset"),
	); err != nil {
		return nil, err
	}

	if _, err := sched.NewJob(
		gocron.CronJob(MonthlyResetCron, false),
		gocron.NewTask(func() {
			n, err := s.ResetMonthlyXP(ctx)
			if err != nil {
				log.Printf("[Scheduler] monthly XP reset failed: %v", err)
				return
			}
			log.Printf("✅ [Scheduler] monthly XP reset for %d users", n)
		}),
		gocron.WithName("monthly-xp-reset"),
	); err != nil {
		return nil, err
	}

	if rankEvery > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(rankEvery),
			gocron.NewTask(func() {
				n, err := s.RefreshRanks(ctx)
				if err != nil {
					log.Printf("[Scheduler] rank refresh failed: %v", err)
					return
				}
				log.Printf("[Scheduler] ranks refreshed for %d users", n)
			}),
			gocron.WithName("rank-refresh"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
