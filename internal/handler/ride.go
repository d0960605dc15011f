package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kohrachel/weshare-sub000/internal/auth"
	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/reminder"
	"github.com/kohrachel/weshare-sub000/internal/rides"
	"github.com/kohrachel/weshare-sub000/internal/rsvp"
)

type RideHandler struct {
	rides     *rides.Service
	rsvp      *rsvp.Coordinator
	reminders *reminder.Scheduler
	logger    *slog.Logger
}

func NewRideHandler(rs *rides.Service, coord *rsvp.Coordinator, reminders *reminder.Scheduler, logger *slog.Logger) *RideHandler {
	return &RideHandler{rides: rs, rsvp: coord, reminders: reminders, logger: logger}
}

type createRideRequest struct {
	Destination     string                  `json:"destination"`
	MeetingLocation string                  `json:"meeting_location"`
	Departure       time.Time               `json:"departure"`
	Return          *time.Time              `json:"return"`
	Gender          model.GenderRestriction `json:"gender"`
	Capacity        int                     `json:"capacity"`
	HasLuggageSpace bool                    `json:"has_luggage_space"`
	IsRoundTrip     bool                    `json:"is_round_trip"`
}

type rideView struct {
	Ride        *model.Ride `json:"ride"`
	Member      bool        `json:"member"`
	Eligible    bool        `json:"eligible"`
	Reason      string      `json:"reason,omitempty"`
	CreatorName string      `json:"creator_name"`
	RosterNames []string    `json:"roster_names"`
}

// List handles GET /api/rides
func (h *RideHandler) List(w http.ResponseWriter, r *http.Request) {
	feed, err := h.rides.Feed(r.Context())
	if err != nil {
		h.logger.Error("load ride feed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rides")
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// Create handles POST /api/rides
func (h *RideHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	created, err := h.rides.Create(r.Context(), auth.UserID(r.Context()), model.Ride{
		Destination:     req.Destination,
		MeetingLocation: req.MeetingLocation,
		Departure:       req.Departure,
		Return:          req.Return,
		Gender:          req.Gender,
		Capacity:        req.Capacity,
		HasLuggageSpace: req.HasLuggageSpace,
		IsRoundTrip:     req.IsRoundTrip,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, created)
	case errors.Is(err, rides.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case created != nil && (errors.Is(err, reminder.ErrPermissionDenied) || errors.Is(err, reminder.ErrNotConfigured)):
		// The ride exists; only the reminder could not be scheduled.
		writeJSON(w, http.StatusForbidden, map[string]any{"error": err.Error(), "ride": created})
	case created != nil:
		h.logger.Error("schedule creator reminder", "ride_id", created.ID, "error", err)
		writeJSON(w, http.StatusCreated, created)
	default:
		h.logger.Error("create ride", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create ride")
	}
}

// Get handles GET /api/rides/{id}
func (h *RideHandler) Get(w http.ResponseWriter, r *http.Request) {
	v := h.rsvp.View(r.PathValue("id"), auth.UserID(r.Context()))
	v.Activate(r.Context())

	ride, ok := v.Ride()
	if !ok {
		writeError(w, http.StatusNotFound, "ride not found")
		return
	}
	writeJSON(w, http.StatusOK, h.render(r, v, ride))
}

// ToggleRSVP handles POST /api/rides/{id}/rsvp
func (h *RideHandler) ToggleRSVP(w http.ResponseWriter, r *http.Request) {
	v := h.rsvp.View(r.PathValue("id"), auth.UserID(r.Context()))
	v.Activate(r.Context())

	if _, ok := v.Ride(); !ok {
		writeError(w, http.StatusNotFound, "ride not found")
		return
	}
	if !v.IsMember() {
		if ok, reason := v.Eligibility(); !ok {
			writeError(w, http.StatusForbidden, reason)
			return
		}
	}

	res, err := v.Toggle(r.Context())
	switch {
	case errors.Is(err, rsvp.ErrToggleInFlight):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, "failed to update rsvp")
		return
	}

	ride, _ := v.Ride()
	writeJSON(w, http.StatusOK, map[string]any{
		"action": res.Action,
		"view":   h.render(r, v, ride),
	})
}

// CancelReminder handles POST /api/rides/{id}/cancel-reminder
func (h *RideHandler) CancelReminder(w http.ResponseWriter, r *http.Request) {
	v := h.rsvp.View(r.PathValue("id"), auth.UserID(r.Context()))
	v.Activate(r.Context())

	ride, ok := v.Ride()
	if !ok {
		writeError(w, http.StatusNotFound, "ride not found")
		return
	}

	cancelled := h.reminders.CancelRideReminder(r.Context(), auth.UserID(r.Context()), ride.Departure)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (h *RideHandler) render(r *http.Request, v *rsvp.View, ride *model.Ride) rideView {
	eligible, reason := v.Eligibility()
	return rideView{
		Ride:        ride,
		Member:      v.IsMember(),
		Eligible:    eligible,
		Reason:      reason,
		CreatorName: v.CreatorName(),
		RosterNames: v.RosterNames(r.Context()),
	}
}
