package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/notice-dispatch/internal/api/middleware"
	"github.com/notifyhub/notice-dispatch/internal/queue"
)

// QueueHandler drains the deferred queue on demand and reports its size.
// Prometheus metrics are available separately at /metrics.
type QueueHandler struct {
	q        *queue.DeferredQueue
	defaults queue.DrainOptions
	logger   *zap.Logger
}

func NewQueueHandler(q *queue.DeferredQueue, defaults queue.DrainOptions, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{q: q, defaults: defaults, logger: logger}
}

type drainRequest struct {
	BatchSize int `json:"batch_size"`
	MaxItems  int `json:"max_items"`
}

// Drain handles POST /api/v1/queue/drain
//
// The body is optional; zero fields use the server's drain settings.
//
// @Summary  Drain the deferred queue now
// @Tags     queue
// @Accept   json
// @Produce  json
// @Param    body  body      drainRequest  false  "Drain bounds"
// @Success  200   {object}  domain.DrainReport
// @Failure  503   {object}  map[string]string
// @Router   /api/v1/queue/drain [post]
func (h *QueueHandler) Drain(w http.ResponseWriter, r *http.Request) {
	opts := h.defaults
	if r.ContentLength != 0 {
		var req drainRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.BatchSize > 0 {
			opts.BatchSize = req.BatchSize
		}
		if req.MaxItems > 0 {
			opts.MaxItems = req.MaxItems
		}
	}

	report, err := h.q.Drain(r.Context(), opts)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Error("drain failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Stats handles GET /api/v1/queue/stats
//
// @Summary  Deferred queue snapshot
// @Tags     queue
// @Produce  json
// @Success  200  {object}  map[string]int
// @Router   /api/v1/queue/stats [get]
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	pending, err := h.q.Pending(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"pending": pending})
}
