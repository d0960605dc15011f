package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kohrachel/weshare-sub000/internal/model"
)

// ReminderStore persists notifications waiting to be delivered.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

const reminderCols = `id, user_id, title, body, sound, trigger, fire_at, created_at`

// Create stores r under a new identifier, which is returned.
func (s *ReminderStore) Create(ctx context.Context, r model.ScheduledReminder) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_reminders (id, user_id, title, body, sound, trigger, fire_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, r.UserID, r.Title, r.Body, r.Sound, string(r.Trigger), r.FireAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert scheduled reminder: %w", err)
	}
	return id, nil
}

// ListByUser returns a user's pending reminders in scheduling order.
func (s *ReminderStore) ListByUser(ctx context.Context, userID string) ([]model.ScheduledReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM scheduled_reminders WHERE user_id = ? ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scheduled reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListDue returns reminders whose fire time is at or before now.
func (s *ReminderStore) ListDue(ctx context.Context, now time.Time) ([]model.ScheduledReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM scheduled_reminders WHERE fire_at <= ? ORDER BY fire_at, seq`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// Delete removes a reminder. Deleting an unknown id is not an error.
func (s *ReminderStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled reminder: %w", err)
	}
	return nil
}

func scanReminders(rows *sql.Rows) ([]model.ScheduledReminder, error) {
	var out []model.ScheduledReminder
	for rows.Next() {
		var r model.ScheduledReminder
		var trigger string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Body, &r.Sound, &trigger, &r.FireAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled reminder: %w", err)
		}
		r.Trigger = []byte(trigger)
		out = append(out, r)
	}
	return out, rows.Err()
}
