package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/notice-dispatch/internal/api/middleware"
	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/service"
)

// NoticeTypeHandler exposes the notice type registry.
type NoticeTypeHandler struct {
	registry *service.Registry
	logger   *zap.Logger
}

func NewNoticeTypeHandler(registry *service.Registry, logger *zap.Logger) *NoticeTypeHandler {
	return &NoticeTypeHandler{registry: registry, logger: logger}
}

// Create handles POST /api/v1/notice-types
//
// Creating an existing label is not an error: the stored type is returned
// unchanged with 200 instead of 201.
//
// @Summary  Register a notice type
// @Tags     notice-types
// @Accept   json
// @Produce  json
// @Param    body  body      domain.NoticeType  true  "Notice type"
// @Success  201   {object}  domain.NoticeType
// @Success  200   {object}  domain.NoticeType  "Already registered"
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/notice-types [post]
func (h *NoticeTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.NoticeType
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.registry.CreateNoticeType(r.Context(), req.Label, req.Display, req.Description, req.DefaultFrequency)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("create notice type failed", zap.Error(err))
		mapError(w, err)
		return
	}
	nt, err := h.registry.Get(r.Context(), req.Label)
	if err != nil {
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, nt)
}

// List handles GET /api/v1/notice-types
//
// @Summary  List notice types ordered by label
// @Tags     notice-types
// @Produce  json
// @Success  200  {array}  domain.NoticeType
// @Router   /api/v1/notice-types [get]
func (h *NoticeTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.List(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/notice-types/{label}
//
// @Summary  Get a notice type
// @Tags     notice-types
// @Produce  json
// @Param    label  path      string  true  "Notice type label"
// @Success  200    {object}  domain.NoticeType
// @Failure  404    {object}  map[string]string
// @Router   /api/v1/notice-types/{label} [get]
func (h *NoticeTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	nt, err := h.registry.Get(r.Context(), chi.URLParam(r, "label"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nt)
}
