package model

import (
	"encoding/json"
	"time"
)

type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScheduledReminder is a pending notification row. Trigger holds the wire
// encoding the reminder was scheduled with; FireAt is the instant the
// dispatcher uses to pick it up.
type ScheduledReminder struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Sound     string          `json:"sound"`
	Trigger   json.RawMessage `json:"trigger"`
	FireAt    time.Time       `json:"fire_at"`
	CreatedAt time.Time       `json:"created_at"`
}
