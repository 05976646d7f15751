package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/notice-dispatch/internal/api/middleware"
	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/service"
)

// NoticeHandler accepts notices for delivery.
type NoticeHandler struct {
	router *service.Router
	logger *zap.Logger
}

func NewNoticeHandler(router *service.Router, logger *zap.Logger) *NoticeHandler {
	return &NoticeHandler{router: router, logger: logger}
}

// SendRequest is the body of POST /api/v1/notices/send.
type SendRequest struct {
	Recipients []domain.UserID `json:"recipients"`
	Label      string          `json:"label"`
	Context    domain.Context  `json:"context,omitempty"`
	OnSite     *bool           `json:"on_site,omitempty"`
	Sender     *domain.UserID  `json:"sender,omitempty"`
	Now        bool            `json:"now"`
	Queue      bool            `json:"queue"`
}

func (s SendRequest) dispatch() domain.DispatchRequest {
	onSite := true
	if s.OnSite != nil {
		onSite = *s.OnSite
	}
	return domain.DispatchRequest{
		Recipients: s.Recipients,
		Label:      s.Label,
		Context:    s.Context,
		OnSite:     onSite,
		Sender:     s.Sender,
	}
}

// Send handles POST /api/v1/notices/send
//
// on_site defaults to true. With neither now nor queue set the server's
// QUEUE_ALL_BY_DEFAULT decides.
//
// @Summary  Send or queue a notice
// @Tags     notices
// @Accept   json
// @Produce  json
// @Param    body  body      SendRequest  true  "Notice"
// @Success  200   {object}  domain.DispatchReport  "Dispatched now"
// @Success  202   {object}  domain.QueuedDispatch  "Queued"
// @Failure  404   {object}  map[string]string
// @Failure  409   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/notices/send [post]
func (h *NoticeHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.router.Send(r.Context(), req.dispatch(), service.SendOptions{Now: req.Now, Queue: req.Queue})
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("send notice failed",
			zap.String("label", req.Label),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	if res.Queued != nil {
		respondJSON(w, http.StatusAccepted, res.Queued)
		return
	}
	respondJSON(w, http.StatusOK, res.Report)
}
