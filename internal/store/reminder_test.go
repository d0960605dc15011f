package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kohrachel/weshare-sub000/internal/database"
	"github.com/kohrachel/weshare-sub000/internal/model"
)

func setupReminderTestDB(t *testing.T) *ReminderStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReminderStore(db)
}

func reminderAt(userID string, at time.Time) model.ScheduledReminder {
	return model.ScheduledReminder{
		UserID:  userID,
		Title:   "Ride Reminder",
		Body:    "Your ride departs in 10 minutes!",
		Sound:   "default",
		Trigger: json.RawMessage(`1717350900000`),
		FireAt:  at,
	}
}

func TestReminderCreateAndList(t *testing.T) {
	rs := setupReminderTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	id1, err := rs.Create(ctx, reminderAt("u1", base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id2, _ := rs.Create(ctx, reminderAt("u1", base))
	rs.Create(ctx, reminderAt("u2", base))

	got, err := rs.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Scheduling order, not fire order.
	if got[0].ID != id1 || got[1].ID != id2 {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, id1, id2)
	}
	if string(got[0].Trigger) != `1717350900000` {
		t.Errorf("trigger = %s", got[0].Trigger)
	}
	if !got[0].FireAt.Equal(base.Add(time.Hour)) {
		t.Errorf("fire_at = %v, want %v", got[0].FireAt, base.Add(time.Hour))
	}
}

func TestReminderListDue(t *testing.T) {
	rs := setupReminderTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	rs.Create(ctx, reminderAt("u1", now.Add(-time.Minute)))
	rs.Create(ctx, reminderAt("u2", now))
	rs.Create(ctx, reminderAt("u3", now.Add(time.Minute)))

	due, err := rs.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len = %d, want 2", len(due))
	}
	if due[0].UserID != "u1" || due[1].UserID != "u2" {
		t.Errorf("due users = [%s %s], want [u1 u2]", due[0].UserID, due[1].UserID)
	}
}

func TestReminderDelete(t *testing.T) {
	rs := setupReminderTestDB(t)
	ctx := context.Background()

	id, _ := rs.Create(ctx, reminderAt("u1", time.Now()))
	if err := rs.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := rs.Delete(ctx, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	got, _ := rs.ListByUser(ctx, "u1")
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
