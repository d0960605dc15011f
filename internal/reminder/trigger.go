package reminder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Trigger is the decoded form of a scheduled notification's firing rule.
// The notification service may hand back any of the three wire shapes, so
// the shape is resolved once here instead of at every comparison.
type Trigger interface {
	isTrigger()
}

// EpochTrigger is a bare epoch-millisecond number on the wire.
type EpochTrigger struct {
	Millis int64
}

// CalendarTrigger is a {year, month, day, hour, minute} tuple in local time.
// Month runs 1-12.
type CalendarTrigger struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// DateTrigger is a tagged {"type": "date", "value": <epoch ms>} object.
type DateTrigger struct {
	Millis int64
}

// UnknownTrigger carries any shape we could not decode. It never matches.
type UnknownTrigger struct {
	Raw json.RawMessage
}

func (EpochTrigger) isTrigger()    {}
func (CalendarTrigger) isTrigger() {}
func (DateTrigger) isTrigger()     {}
func (UnknownTrigger) isTrigger()  {}

// NewEpochTrigger encodes t as an absolute-instant trigger.
func NewEpochTrigger(t time.Time) EpochTrigger {
	return EpochTrigger{Millis: t.UnixMilli()}
}

// NewDateTrigger encodes t as a tagged date trigger.
func NewDateTrigger(t time.Time) DateTrigger {
	return DateTrigger{Millis: t.UnixMilli()}
}

// NewCalendarTrigger encodes t as a local-time calendar tuple, dropping
// anything below minute precision.
func NewCalendarTrigger(t time.Time) CalendarTrigger {
	lt := t.Local()
	return CalendarTrigger{
		Year:   lt.Year(),
		Month:  lt.Month(),
		Day:    lt.Day(),
		Hour:   lt.Hour(),
		Minute: lt.Minute(),
	}
}

// Instant returns the firing instant of epoch and date triggers.
func Instant(t Trigger) (time.Time, bool) {
	switch tr := t.(type) {
	case EpochTrigger:
		return time.UnixMilli(tr.Millis), true
	case DateTrigger:
		return time.UnixMilli(tr.Millis), true
	case CalendarTrigger:
		return time.Date(tr.Year, tr.Month, tr.Day, tr.Hour, tr.Minute, 0, 0, time.Local), true
	}
	return time.Time{}, false
}

type calendarWire struct {
	Year   *int `json:"year"`
	Month  *int `json:"month"`
	Day    *int `json:"day"`
	Hour   *int `json:"hour"`
	Minute *int `json:"minute"`
}

type dateWire struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value"`
}

// DecodeTrigger resolves a wire trigger into one of the known variants.
// It never fails; anything unrecognised becomes an UnknownTrigger.
func DecodeTrigger(raw json.RawMessage) Trigger {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return UnknownTrigger{Raw: raw}
	}

	if trimmed[0] != '{' {
		var ms float64
		if err := json.Unmarshal(trimmed, &ms); err != nil {
			return UnknownTrigger{Raw: raw}
		}
		return EpochTrigger{Millis: int64(ms)}
	}

	var d dateWire
	if err := json.Unmarshal(trimmed, &d); err == nil && d.Type == "date" {
		if d.Value == nil {
			return UnknownTrigger{Raw: raw}
		}
		return DateTrigger{Millis: int64(*d.Value)}
	}

	var c calendarWire
	if err := json.Unmarshal(trimmed, &c); err == nil &&
		c.Year != nil && c.Month != nil && c.Day != nil && c.Hour != nil && c.Minute != nil {
		return CalendarTrigger{
			Year:   *c.Year,
			Month:  time.Month(*c.Month),
			Day:    *c.Day,
			Hour:   *c.Hour,
			Minute: *c.Minute,
		}
	}

	return UnknownTrigger{Raw: raw}
}

// EncodeTrigger produces the wire form of a trigger.
func EncodeTrigger(t Trigger) (json.RawMessage, error) {
	switch tr := t.(type) {
	case EpochTrigger:
		return json.Marshal(tr.Millis)
	case DateTrigger:
		return json.Marshal(map[string]any{"type": "date", "value": tr.Millis})
	case CalendarTrigger:
		return json.Marshal(map[string]int{
			"year":   tr.Year,
			"month":  int(tr.Month),
			"day":    tr.Day,
			"hour":   tr.Hour,
			"minute": tr.Minute,
		})
	case UnknownTrigger:
		return tr.Raw, nil
	}
	return nil, fmt.Errorf("encode trigger %T: unsupported", t)
}
