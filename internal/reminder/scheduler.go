package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrPermissionDenied means the user has not allowed notifications.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrNotConfigured means the notification service lacks its push credentials.
	ErrNotConfigured = errors.New("notification service not configured")
)

// Content is the visible part of a notification.
type Content struct {
	Title string
	Body  string
	Sound string
}

// RideReminderContent is the fixed content of every ride reminder.
var RideReminderContent = Content{
	Title: "Ride Reminder",
	Body:  "Your ride departs in 10 minutes!",
	Sound: "default",
}

// Request asks the notification service to fire Content at Trigger for a user.
type Request struct {
	UserID  string
	Content Content
	Trigger Trigger
}

// Scheduled is one pending notification as reported by the service.
type Scheduled struct {
	Identifier string
	Trigger    Trigger
}

// NotificationService is the external notification backend.
type NotificationService interface {
	RequestPermission(ctx context.Context, userID string) (bool, error)
	Schedule(ctx context.Context, req Request) (string, error)
	List(ctx context.Context, userID string) ([]Scheduled, error)
	Cancel(ctx context.Context, identifier string) error
}

// Metrics receives reminder outcomes.
type Metrics interface {
	RecordReminderScheduled()
	RecordReminderSkipped()
	RecordReminderCancel(cancelled bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordReminderScheduled()  {}
func (nopMetrics) RecordReminderSkipped()    {}
func (nopMetrics) RecordReminderCancel(bool) {}

// Scheduler schedules and cancels ride reminders.
type Scheduler struct {
	service   NotificationService
	logger    *slog.Logger
	metrics   Metrics
	tolerance time.Duration
	now       func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTolerance overrides the cancellation match window.
func WithTolerance(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tolerance = d
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a Scheduler on top of a notification service.
func NewScheduler(svc NotificationService, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		service:   svc,
		logger:    logger,
		metrics:   nopMetrics{},
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tolerance returns the match window used by CancelRideReminder.
func (s *Scheduler) Tolerance() time.Duration {
	return s.tolerance
}

// ScheduleRideReminder schedules one reminder LeadTime before departure.
// Nothing is scheduled when that instant has already passed. Permission and
// service errors are returned to the caller.
func (s *Scheduler) ScheduleRideReminder(ctx context.Context, userID string, departure time.Time) error {
	trigger := At(departure)
	if IsDue(trigger, s.now()) {
		s.logger.Info("reminder time already passed, skipping", "user_id", userID, "departure", departure)
		s.metrics.RecordReminderSkipped()
		return nil
	}

	granted, err := s.service.RequestPermission(ctx, userID)
	if err != nil {
		return fmt.Errorf("request notification permission: %w", err)
	}
	if !granted {
		return fmt.Errorf("schedule ride reminder: %w", ErrPermissionDenied)
	}

	id, err := s.service.Schedule(ctx, Request{
		UserID:  userID,
		Content: RideReminderContent,
		Trigger: NewEpochTrigger(trigger),
	})
	if err != nil {
		return fmt.Errorf("schedule ride reminder: %w", err)
	}

	s.metrics.RecordReminderScheduled()
	s.logger.Debug("ride reminder scheduled", "user_id", userID, "id", id, "fire_at", trigger)
	return nil
}

// CancelRideReminder finds the first pending reminder whose trigger matches
// the departure's reminder instant and cancels it. It reports whether a
// reminder was cancelled; service failures are logged and yield false.
func (s *Scheduler) CancelRideReminder(ctx context.Context, userID string, departure time.Time) bool {
	cancelled := s.cancel(ctx, userID, At(departure))
	s.metrics.RecordReminderCancel(cancelled)
	return cancelled
}

func (s *Scheduler) cancel(ctx context.Context, userID string, target time.Time) bool {
	pending, err := s.service.List(ctx, userID)
	if err != nil {
		s.logger.Error("list scheduled reminders", "user_id", userID, "error", err)
		return false
	}

	for _, p := range pending {
		if !Matches(p.Trigger, target, s.tolerance) {
			continue
		}
		if err := s.service.Cancel(ctx, p.Identifier); err != nil {
			s.logger.Error("cancel reminder", "id", p.Identifier, "error", err)
			return false
		}
		s.logger.Debug("ride reminder cancelled", "user_id", userID, "id", p.Identifier)
		return true
	}

	s.logger.Debug("no matching reminder", "user_id", userID, "target", target)
	return false
}
