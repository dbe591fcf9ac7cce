package project

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/cooperapp/cooperapp/internal/auth"
	"github.com/cooperapp/cooperapp/internal/transport"
	"github.com/cooperapp/cooperapp/pkg/logger"
)

type ServiceAPI interface {
	List(ctx context.Context, actor *auth.AuthedUser, page, pageSize int) ([]*Project, int64, error)
	Get(ctx context.Context, id int64) (*Project, error)
	Summary(ctx context.Context, id int64) (*Summary, error)
	Create(ctx context.Context, actor *auth.AuthedUser, dto *CreateProjectDTO) (*Project, error)
	Update(ctx context.Context, actor *auth.AuthedUser, id int64, dto *UpdateProjectDTO) (*Project, error)
	Transition(ctx context.Context, actor *auth.AuthedUser, id int64, newStatus string) (*Project, error)
	Delete(ctx context.Context, actor *auth.AuthedUser, id int64) error
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

func (h *Handler) projectID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	return id, err == nil
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	projects, total, err := h.Service.List(r.Context(), actor, page, pageSize)
	if err != nil {
		h.Logger.Error("ListProjects: service error", "error", err)
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ListResponse{Projects: projects, Total: total})
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	p, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	p, err := h.Service.Create(r.Context(), actor, &dto)
	if err != nil {
		h.Logger.Error("CreateProject: service error", "error", err, "actor", actor.ID)
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := h.projectID(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	var dto UpdateProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	p, err := h.Service.Update(r.Context(), actor, id, &dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) TransitionProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := h.projectID(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	var dto TransitionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	p, err := h.Service.Transition(r.Context(), actor, id, dto.Status)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := h.projectID(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	if err := h.Service.Delete(r.Context(), actor, id); err != nil {
		h.Logger.Error("DeleteProject: service error", "error", err, "project_id", id)
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CounterpartSummary serves the portal view for the session's project.
func (h *Handler) CounterpartSummary(w http.ResponseWriter, r *http.Request) {
	cp, ok := auth.CounterpartFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := h.Service.Summary(r.Context(), cp.ProjectID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}
