package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kohrachel/weshare-sub000/internal/auth"
	"github.com/kohrachel/weshare-sub000/internal/model"
	"github.com/kohrachel/weshare-sub000/internal/store"
)

type UserHandler struct {
	users  *store.UserStore
	logger *slog.Logger
}

func NewUserHandler(us *store.UserStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: us, logger: logger}
}

type updateProfileRequest struct {
	Name   string                  `json:"name"`
	Gender model.GenderRestriction `json:"gender"`
	Email  string                  `json:"email"`
	Phone  string                  `json:"phone"`
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateMe handles PUT /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	// Co-ed is a ride setting, not a user gender.
	if req.Gender != "" && (!req.Gender.Valid() || req.Gender == model.GenderCoed) {
		writeError(w, http.StatusBadRequest, "invalid gender")
		return
	}

	u, err := h.users.Upsert(r.Context(), model.UserProfile{
		ID:     auth.UserID(r.Context()),
		Name:   name,
		Gender: req.Gender,
		Email:  strings.TrimSpace(req.Email),
		Phone:  strings.TrimSpace(req.Phone),
	})
	if err != nil {
		h.logger.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
