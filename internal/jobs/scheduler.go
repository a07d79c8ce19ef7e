package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/queue"
)

// NextFunc returns the first run strictly after now.
type NextFunc func(now time.Time) time.Time

type entry struct {
	task string
	next NextFunc
}

// Scheduler enqueues the periodic tasks at their wall-clock UTC times.
type Scheduler struct {
	q       Enqueuer
	entries []entry
	now     func() time.Time
	log     logrus.FieldLogger
}

// NewScheduler builds the reminder, admin report and monthly report
// entries from cfg.
func NewScheduler(cfg config.ScheduleConfig, q Enqueuer, log logrus.FieldLogger) (*Scheduler, error) {
	reminder, err := Daily(cfg.DailyReminder)
	if err != nil {
		return nil, fmt.Errorf("daily_reminder: %w", err)
	}
	admin, err := Daily(cfg.AdminReport)
	if err != nil {
		return nil, fmt.Errorf("admin_report: %w", err)
	}
	monthly, err := Monthly(cfg.MonthlyReportDay, cfg.MonthlyReport)
	if err != nil {
		return nil, fmt.Errorf("monthly_report: %w", err)
	}
	return &Scheduler{
		q: q,
		entries: []entry{
			{queue.TaskDailyReminder, reminder},
			{queue.TaskDailyAdminReport, admin},
			{queue.TaskMonthlyReport, monthly},
		},
		now: func() time.Time { return time.Now().UTC() },
		log: log.WithField("component", "scheduler"),
	}, nil
}

func parseClock(hhmm string) (int, int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", hhmm)
	}
	return t.Hour(), t.Minute(), nil
}

// Daily fires every day at hh:mm UTC.
func Daily(hhmm string) (NextFunc, error) {
	h, m, err := parseClock(hhmm)
	if err != nil {
		return nil, err
	}
	return func(now time.Time) time.Time {
		now = now.UTC()
		t := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, time.UTC)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t
	}, nil
}

// Monthly fires on the given day of every month at hh:mm UTC.  day must
// be in 1..28 so every month has it.
func Monthly(day int, hhmm string) (NextFunc, error) {
	if day < 1 || day > 28 {
		return nil, fmt.Errorf("invalid day %d, want 1..28", day)
	}
	h, m, err := parseClock(hhmm)
	if err != nil {
		return nil, err
	}
	return func(now time.Time) time.Time {
		now = now.UTC()
		t := time.Date(now.Year(), now.Month(), day, h, m, 0, 0, time.UTC)
		if !t.After(now) {
			t = t.AddDate(0, 1, 0)
		}
		return t
	}, nil
}

// Run blocks until ctx is done, enqueueing each task when it falls due.
// A failed enqueue is logged; the task waits for its next slot.
func (s *Scheduler) Run(ctx context.Context) {
	due := make([]time.Time, len(s.entries))
	now := s.now()
	for i, e := range s.entries {
		due[i] = e.next(now)
		s.log.WithFields(logrus.Fields{"task": e.task, "next": due[i]}).Info("scheduled")
	}

	for {
		i := 0
		for j := range due {
			if due[j].Before(due[i]) {
				i = j
			}
		}
		timer := time.NewTimer(time.Until(due[i]))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		e := s.entries[i]
		if id, err := s.q.Enqueue(ctx, e.task, struct{}{}); err != nil {
			s.log.WithError(err).WithField("task", e.task).Error("enqueue failed")
		} else {
			s.log.WithFields(logrus.Fields{"task": e.task, "job_id": id}).Info("enqueued")
		}
		due[i] = e.next(due[i])
	}
}
