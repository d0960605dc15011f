package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/store"
)

// Sender delivers a single push message.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// DeliveryMetrics receives per-subscription delivery outcomes.
type DeliveryMetrics interface {
	RecordPushDelivery(outcome string)
}

// Delivery outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeExpired = "expired"
	OutcomeFailed  = "failed"
)

// Dispatcher periodically delivers reminders whose fire time has passed.
// Each reminder is removed after one delivery attempt. A reminder whose
// subscriptions cannot be read stays queued for the next tick.
type Dispatcher struct {
	mu        sync.RWMutex
	sender    Sender
	reminders *store.ReminderStore
	subs      *store.PushStore
	metrics   DeliveryMetrics
	interval  time.Duration
	now       func() time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *slog.Logger
}

// NewDispatcher creates a reminder dispatcher.
func NewDispatcher(sender Sender, reminders *store.ReminderStore, subs *store.PushStore, interval time.Duration, metrics DeliveryMetrics, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Dispatcher{
		sender:    sender,
		reminders: reminders,
		subs:      subs,
		metrics:   metrics,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Start begins the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the dispatcher.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	due, err := d.reminders.ListDue(ctx, d.now())
	if err != nil {
		d.logger.Error("list due reminders", "error", err)
		return
	}

	for _, r := range due {
		if err := d.deliver(ctx, r); err != nil {
			d.logger.Warn("reminder kept for retry", "id", r.ID, "user_id", r.UserID, "error", err)
			continue
		}
		if err := d.reminders.Delete(ctx, r.ID); err != nil {
			d.logger.Error("delete delivered reminder", "id", r.ID, "error", err)
		}
	}
}

// deliver sends r to every subscription of its user. Per-subscription send
// failures are counted, not returned; only a failed subscription lookup is.
func (d *Dispatcher) deliver(ctx context.Context, r model.ScheduledReminder) error {
	subs, err := d.subs.ListByUser(r.UserID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	payload := Payload{
		Title: r.Title,
		Body:  r.Body,
		Sound: r.Sound,
		URL:   "/rides",
		Tag:   "ride-reminder-" + r.ID,
	}

	for _, sub := range subs {
		err := d.sender.Send(ctx, &sub, payload)
		switch {
		case err == nil:
			d.record(OutcomeSent)
		case errors.Is(err, ErrExpired):
			d.record(OutcomeExpired)
			if err := d.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				d.logger.Error("delete expired subscription", "error", err)
			}
		default:
			d.record(OutcomeFailed)
			d.logger.Warn("send ride reminder", "user_id", r.UserID, "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) record(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordPushDelivery(outcome)
	}
}
