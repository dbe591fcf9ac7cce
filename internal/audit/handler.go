package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cooperapp/cooperapp/internal/transport"
	"github.com/cooperapp/cooperapp/pkg/logger"
)

type ServiceAPI interface {
	Query(ctx context.Context, filters Filters, page, pageSize int) ([]*Event, int64, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// ListEvents serves the audit trail, newest first. Reserved to admins by
// the route gate; every filter is optional.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filters Filters

	if v := q.Get("project_id"); v != "" {
		projectID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid project_id")
			return
		}
		filters.ProjectID = &projectID
	}

	filters.ActorID = q.Get("actor_id")
	filters.Action = Action(q.Get("action"))
	if filters.Action != "" && !filters.Action.Valid() {
		h.WriteError(w, http.StatusBadRequest, "unknown action")
		return
	}

	for name, dst := range map[string]**time.Time{"from": &filters.From, "to": &filters.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				h.WriteError(w, http.StatusBadRequest, "invalid "+name+" timestamp, expected RFC3339")
				return
			}
			*dst = &t
		}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	events, total, err := h.Service.Query(r.Context(), filters, page, pageSize)
	if err != nil {
		h.Logger.Error("ListEvents: query failed", "error", err)
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListEventsResponse{
		Events: events,
		Total:  total,
	})
}

type ListEventsResponse struct {
	Events []*Event `json:"events"`
	Total  int64    `json:"total"`
}
