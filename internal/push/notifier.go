package push

import (
	"context"
	"fmt"

	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/reminder"
	"github.com/kohrachel/weshare-sub000/internal/store"
)

// Notifier is the notification service behind ride reminders. Pending
// reminders are kept in the database until the Dispatcher delivers them.
type Notifier struct {
	reminders  *store.ReminderStore
	subs       *store.PushStore
	configured bool
}

// NewNotifier creates a Notifier. When configured is false every permission
// request fails with reminder.ErrNotConfigured.
func NewNotifier(reminders *store.ReminderStore, subs *store.PushStore, configured bool) *Notifier {
	return &Notifier{reminders: reminders, subs: subs, configured: configured}
}

// RequestPermission grants permission once the user has registered at least
// one device for push.
func (n *Notifier) RequestPermission(ctx context.Context, userID string) (bool, error) {
	if !n.configured {
		return false, reminder.ErrNotConfigured
	}
	if userID == "" {
		return false, nil
	}
	count, err := n.subs.CountByUser(userID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (n *Notifier) Schedule(ctx context.Context, req reminder.Request) (string, error) {
	fireAt, ok := reminder.Instant(req.Trigger)
	if !ok {
		return "", fmt.Errorf("schedule %T: trigger has no instant", req.Trigger)
	}
	raw, err := reminder.EncodeTrigger(req.Trigger)
	if err != nil {
		return "", err
	}
	return n.reminders.Create(ctx, model.ScheduledReminder{
		UserID:  req.UserID,
		Title:   req.Content.Title,
		Body:    req.Content.Body,
		Sound:   req.Content.Sound,
		Trigger: raw,
		FireAt:  fireAt,
	})
}

func (n *Notifier) List(ctx context.Context, userID string) ([]reminder.Scheduled, error) {
	rows, err := n.reminders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]reminder.Scheduled, 0, len(rows))
	for _, r := range rows {
		out = append(out, reminder.Scheduled{
			Identifier: r.ID,
			Trigger:    reminder.DecodeTrigger(r.Trigger),
		})
	}
	return out, nil
}

func (n *Notifier) Cancel(ctx context.Context, identifier string) error {
	return n.reminders.Delete(ctx, identifier)
}
