package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/service"
)

// SettingsHandler reads and changes a user's delivery preferences.
type SettingsHandler struct {
	prefs  *service.Preferences
	logger *zap.Logger
}

func NewSettingsHandler(prefs *service.Preferences, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{prefs: prefs, logger: logger}
}

// List handles GET /api/v1/users/{userID}/settings
//
// @Summary  Resolved preferences for every notice type
// @Tags     settings
// @Produce  json
// @Param    userID  path   string  true  "User ID"
// @Success  200     {array}  domain.SettingsRow
// @Router   /api/v1/users/{userID}/settings [get]
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.prefs.Settings(r.Context(), domain.UserID(chi.URLParam(r, "userID")))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// Set handles PUT /api/v1/users/{userID}/settings/{label}/{medium}
//
// @Summary  Enable or disable a notice type on a medium
// @Tags     settings
// @Accept   json
// @Produce  json
// @Param    userID  path  string  true  "User ID"
// @Param    label   path  string  true  "Notice type label"
// @Param    medium  path  string  true  "site or email"
// @Success  200     {object}  domain.NoticeSetting
// @Failure  404     {object}  map[string]string
// @Failure  422     {object}  map[string]string
// @Router   /api/v1/users/{userID}/settings/{label}/{medium} [put]
func (h *SettingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	user := domain.UserID(chi.URLParam(r, "userID"))
	label := chi.URLParam(r, "label")
	medium := domain.Medium(chi.URLParam(r, "medium"))
	if err := h.prefs.SetEnabled(r.Context(), user, label, medium, *req.Enabled); err != nil {
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.NoticeSetting{
		UserID:  user,
		Label:   label,
		Medium:  medium,
		Enabled: *req.Enabled,
	})
}
