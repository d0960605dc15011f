package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/kohrachel/weshare-sub000/internal/auth"
	"github.com/kohrachel/weshare-sub000/internal/push"
	"github.com/kohrachel/weshare-sub000/internal/reminder"
	"github.com/kohrachel/weshare-sub000/internal/store"
)

// DeviceSender pushes to a registered reminder device.
type DeviceSender interface {
	push.Sender
	VAPIDPublicKey() string
}

// ReminderPermission reports whether a user can receive ride reminders.
type ReminderPermission interface {
	RequestPermission(ctx context.Context, userID string) (bool, error)
}

// DeviceHandler manages the devices that receive a user's ride reminders.
type DeviceHandler struct {
	devices    *store.PushStore
	sender     DeviceSender
	permission ReminderPermission
	logger     *slog.Logger
}

func NewDeviceHandler(devices *store.PushStore, sender DeviceSender, permission ReminderPermission, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, sender: sender, permission: permission, logger: logger}
}

type registerDeviceRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

func (req registerDeviceRequest) validate() string {
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		return "endpoint, p256dh, and auth are required"
	}
	u, err := url.Parse(req.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "endpoint must be an https URL"
	}
	return ""
}

// Register handles POST /api/reminders/devices. Registering a known endpoint
// moves it to the caller and refreshes its keys.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	device, err := h.devices.CreateSubscription(userID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("register reminder device", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}

	writeJSON(w, http.StatusCreated, device)
}

// Remove handles DELETE /api/reminders/devices/{id}
func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	device, err := h.devices.GetByID(id, userID)
	if err != nil {
		h.logger.Error("get reminder device", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove device")
		return
	}
	if device == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	if err := h.devices.DeleteSubscription(id, userID); err != nil {
		h.logger.Error("remove reminder device", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/reminders/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	if devices == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// Permission handles GET /api/reminders/permission
func (h *DeviceHandler) Permission(w http.ResponseWriter, r *http.Request) {
	granted, err := h.permission.RequestPermission(r.Context(), auth.UserID(r.Context()))
	if err != nil && !errors.Is(err, reminder.ErrNotConfigured) {
		h.logger.Error("reminder permission", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check permission")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

// VAPIDKey handles GET /api/reminders/vapid-key
func (h *DeviceHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.sender.VAPIDPublicKey()})
}

// SendSample handles POST /api/reminders/devices/test by pushing a sample
// ride reminder to each of the caller's devices. Devices the push service
// reports as gone are removed.
func (h *DeviceHandler) SendSample(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	devices, err := h.devices.ListByUser(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	payload := push.Payload{
		Title: reminder.RideReminderContent.Title,
		Body:  reminder.RideReminderContent.Body,
		Sound: reminder.RideReminderContent.Sound,
		URL:   "/rides",
		Tag:   "ride-reminder-sample",
	}

	sent, removed := 0, 0
	for _, d := range devices {
		err := h.sender.Send(r.Context(), &d, payload)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, push.ErrExpired):
			if err := h.devices.DeleteByEndpoint(d.Endpoint); err != nil {
				h.logger.Error("remove expired device", "error", err)
				continue
			}
			removed++
		default:
			h.logger.Warn("sample ride reminder", "user_id", userID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"sent": sent, "removed": removed})
}
