package user

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/cooperapp/cooperapp/internal/auth"
	"github.com/cooperapp/cooperapp/internal/permission"
	"github.com/cooperapp/cooperapp/internal/transport"
	"github.com/cooperapp/cooperapp/pkg/logger"
)

type ServiceAPI interface {
	List(ctx context.Context, filters ListFilters, page, pageSize int) ([]*User, int64, error)
	Get(ctx context.Context, id string) (*User, error)
	UpdateRole(ctx context.Context, actor *auth.AuthedUser, userID string, newRole permission.Role) (*User, error)
	SetActive(ctx context.Context, actor *auth.AuthedUser, userID string, active bool) (*User, error)
	AssignProject(ctx context.Context, actor *auth.AuthedUser, userID string, projectID int64) error
	UnassignProject(ctx context.Context, actor *auth.AuthedUser, userID string, projectID int64) error
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

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := ListFilters{
		Role:   q.Get("role"),
		Search: q.Get("search"),
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid active filter")
			return
		}
		filters.Active = &active
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	users, total, err := h.Service.List(r.Context(), filters, page, pageSize)
	if err != nil {
		h.Logger.Error("ListUsers: service error", "error", err)
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{Users: users, Total: total})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto UpdateRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	u, err := h.Service.UpdateRole(r.Context(), actor, chi.URLParam(r, "id"), permission.Role(dto.Role))
	if err != nil {
		h.Logger.Error("UpdateRole: service error", "error", err, "actor", actor.ID)
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto SetActiveDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	u, err := h.Service.SetActive(r.Context(), actor, chi.URLParam(r, "id"), *dto.IsActive)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) AssignProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto AssignProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	if err := h.Service.AssignProject(r.Context(), actor, chi.URLParam(r, "id"), dto.ProjectID); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UnassignProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	if err := h.Service.UnassignProject(r.Context(), actor, chi.URLParam(r, "id"), projectID); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
