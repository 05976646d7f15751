package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/notice-dispatch/internal/api/middleware"
	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/service"
)

// ObservationHandler manages users following application objects.
type ObservationHandler struct {
	observations *service.Observations
	logger       *zap.Logger
}

func NewObservationHandler(observations *service.Observations, logger *zap.Logger) *ObservationHandler {
	return &ObservationHandler{observations: observations, logger: logger}
}

type observationRequest struct {
	Observed domain.Ref    `json:"observed"`
	UserID   domain.UserID `json:"user_id"`
	Label    string        `json:"label,omitempty"`
	Signal   string        `json:"signal,omitempty"`
}

// Observe handles POST /api/v1/observations
//
// @Summary  Follow an object
// @Tags     observations
// @Accept   json
// @Param    body  body  observationRequest  true  "Observation"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/observations [post]
func (h *ObservationHandler) Observe(w http.ResponseWriter, r *http.Request) {
	var req observationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.observations.Observe(r.Context(), req.Observed, req.UserID, req.Label, req.Signal); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopObserving handles DELETE /api/v1/observations
//
// @Summary  Stop following an object
// @Tags     observations
// @Accept   json
// @Param    body  body  observationRequest  true  "Observation"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/observations [delete]
func (h *ObservationHandler) StopObserving(w http.ResponseWriter, r *http.Request) {
	var req observationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.observations.StopObserving(r.Context(), req.Observed, req.UserID, req.Signal); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notifyRequest struct {
	Observed domain.Ref     `json:"observed"`
	Signal   string         `json:"signal,omitempty"`
	Context  domain.Context `json:"context,omitempty"`
	Now      bool           `json:"now"`
	Queue    bool           `json:"queue"`
}

// Notify handles POST /api/v1/observations/notify
//
// @Summary  Notify everyone following an object
// @Tags     observations
// @Accept   json
// @Produce  json
// @Param    body  body      notifyRequest  true  "Signal"
// @Success  200   {object}  map[string]int
// @Router   /api/v1/observations/notify [post]
func (h *ObservationHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.observations.NotifyObservers(r.Context(), req.Observed, req.Signal, req.Context,
		service.SendOptions{Now: req.Now, Queue: req.Queue})
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("notify observers failed",
			zap.Stringer("observed", req.Observed),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"notified": n})
}
