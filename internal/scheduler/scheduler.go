package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"nutrition-coach/internal/notify"
	"nutrition-coach/pkg/logger"
)

const reminderTimeout = 5 * time.Minute

type Reminder interface {
	SendEveningReminder(ctx context.Context) (notify.Report, error)
}

type Scheduler struct {
	cron   gocron.Scheduler
	job    gocron.Job
	logger *logger.Logger
}

// New registers the evening check-in reminder on a crontab schedule
// evaluated in timezone. Overlapping runs are skipped.
func New(cronExpr, timezone string, reminder Reminder, l *logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder timezone %q: %w", timezone, err)
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	job, err := s.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
			defer cancel()

			l.Infow("Starting evening reminder job")
			report, err := reminder.SendEveningReminder(ctx)
			if err != nil {
				l.Errorw("Evening reminder job failed", "error", err)
				return
			}
			l.Infow("Evening reminder job finished",
				"total", report.Total, "sent", report.Sent, "failed", report.Failed, "removed", report.Removed)
		}),
		gocron.WithName("evening-reminder"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to register reminder job: %w", err)
	}

	return &Scheduler{cron: s, job: job, logger: l}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if next, err := s.job.NextRun(); err == nil {
		s.logger.Infow("Scheduler started", "next_reminder", next)
	}
}

// RunNow triggers the reminder outside its schedule.
func (s *Scheduler) RunNow() error {
	return s.job.RunNow()
}

func (s *Scheduler) Stop() error {
	s.logger.Infow("Stopping scheduler")
	return s.cron.Shutdown()
}
