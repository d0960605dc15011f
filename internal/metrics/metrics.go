// Package metrics exposes Prometheus counters for reminders, RSVPs, push
// delivery and backups.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the metrics hooks of the reminder, rsvp, push and
// backup packages.
type Collector struct {
	remindersScheduled prometheus.Counter
	remindersSkipped   prometheus.Counter
	reminderCancels    *prometheus.CounterVec
	rsvpToggles        *prometheus.CounterVec
	pushDeliveries     *prometheus.CounterVec
	backups            *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remindersScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weshare_reminders_scheduled_total",
			Help: "Ride reminders scheduled.",
		}),
		remindersSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weshare_reminders_skipped_total",
			Help: "Ride reminders skipped because the reminder time had passed.",
		}),
		reminderCancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weshare_reminder_cancels_total",
			Help: "Reminder cancellation attempts by result.",
		}, []string{"result"}),
		rsvpToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weshare_rsvp_toggles_total",
			Help: "Completed RSVP toggles by action.",
		}, []string{"action"}),
		pushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weshare_push_deliveries_total",
			Help: "Push deliveries by outcome.",
		}, []string{"outcome"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weshare_backups_total",
			Help: "Database backup runs by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.remindersScheduled,
		c.remindersSkipped,
		c.reminderCancels,
		c.rsvpToggles,
		c.pushDeliveries,
		c.backups,
	)

	return c
}

func (c *Collector) RecordReminderScheduled() {
	c.remindersScheduled.Inc()
}

func (c *Collector) RecordReminderSkipped() {
	c.remindersSkipped.Inc()
}

func (c *Collector) RecordReminderCancel(cancelled bool) {
	result := "not_found"
	if cancelled {
		result = "cancelled"
	}
	c.reminderCancels.WithLabelValues(result).Inc()
}

func (c *Collector) RecordRSVPToggle(action string) {
	c.rsvpToggles.WithLabelValues(action).Inc()
}

func (c *Collector) RecordPushDelivery(outcome string) {
	c.pushDeliveries.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordBackup(result string) {
	c.backups.WithLabelValues(result).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
