package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/example/cardbot/pkg/models"
)

// Default notification window in user-local hours
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
)

// Notifier interface for sending notifications
type Notifier interface {
	SendReminders(userID int64, count int) error
}

// ReminderStore is the persistence the reminder job needs
type ReminderStore interface {
	ListReminderUsers(ctx context.Context) ([]models.User, error)
	CountDue(ctx context.Context, userID int64, now int64) (int, error)
	MarkReminded(ctx context.Context, userID int64, ts int64) error
}

// Options configures the reminder job
type Options struct {
	Interval  time.Duration
	StartHour int
	EndHour   int
	MinGap    time.Duration // minimum time between two reminders to the same user
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	store     ReminderStore
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new scheduler instance
func New(store ReminderStore, notifier Notifier, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		notifier:  notifier,
		store:     store,
		opts:      opts,
		logger:    logger.Named("scheduler"),
		now:       time.Now,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.opts.Interval).Do(func() {
		if err := s.CheckReminders(ctx); err != nil {
			s.logger.Error("reminder check failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("reminder job started", zap.Duration("interval", s.opts.Interval))
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// CheckReminders notifies every eligible user who has due cards
func (s *Scheduler) CheckReminders(ctx context.Context) error {
	users, err := s.store.ListReminderUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for reminders: %w", err)
	}

	now := s.now()
	sent := 0
	for _, user := range users {
		if !s.shouldRemind(user, now) {
			continue
		}

		count, err := s.store.CountDue(ctx, user.ID, now.Unix())
		if err != nil {
			s.logger.Warn("count due cards", zap.Int64("user_id", user.ID), zap.Error(err))
			continue
		}
		if count == 0 {
			continue
		}

		if err := s.notifier.SendReminders(user.ID, count); err != nil {
			s.logger.Warn("send reminder", zap.Int64("user_id", user.ID), zap.Error(err))
			continue
		}
		if err := s.store.MarkReminded(ctx, user.ID, now.Unix()); err != nil {
			s.logger.Warn("mark reminded", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		sent++
	}

	s.logger.Debug("reminder check done", zap.Int("users", len(users)), zap.Int("sent", sent))
	return nil
}

func (s *Scheduler) shouldRemind(user models.User, now time.Time) bool {
	hour := localHour(now, user.TimezoneOffset)
	if hour < s.opts.StartHour || hour > s.opts.EndHour {
		return false
	}
	if user.LastRemindedAt != nil && now.Unix()-*user.LastRemindedAt < int64(s.opts.MinGap/time.Second) {
		return false
	}
	return true
}

// localHour is the hour of day at now shifted by offsetHours
func localHour(now time.Time, offsetHours float64) int {
	shift := time.Duration(offsetHours * float64(time.Hour))
	return now.UTC().Add(shift).Hour()
}
