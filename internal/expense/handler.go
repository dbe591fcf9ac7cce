package expense

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
	List(ctx context.Context, projectID int64, status string, page, pageSize int) ([]*Expense, int64, error)
	Get(ctx context.Context, projectID, id int64) (*Expense, error)
	Create(ctx context.Context, actor *auth.AuthedUser, projectID int64, dto *CreateExpenseDTO) (*Expense, error)
	Update(ctx context.Context, actor *auth.AuthedUser, projectID, id int64, dto *UpdateExpenseDTO) (*Expense, error)
	Transition(ctx context.Context, actor *auth.AuthedUser, projectID, id int64, dto *TransitionExpenseDTO) (*Expense, error)
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

func (h *Handler) ids(r *http.Request) (projectID, expenseID int64, err error) {
	projectID, err = strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if raw := chi.URLParam(r, "expenseID"); raw != "" {
		expenseID, err = strconv.ParseInt(raw, 10, 64)
	}
	return projectID, expenseID, err
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	projectID, _, err := h.ids(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid ID")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	expenses, total, err := h.Service.List(r.Context(), projectID, q.Get("status"), page, pageSize)
	if err != nil {
		h.Logger.Error("ListExpenses: service error", "error", err, "project_id", projectID)
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ListResponse{Expenses: expenses, Total: total})
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	projectID, expenseID, err := h.ids(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid ID")
		return
	}

	exp, err := h.Service.Get(r.Context(), projectID, expenseID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, exp)
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, _, err := h.ids(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid ID")
		return
	}

	var dto CreateExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	exp, err := h.Service.Create(r.Context(), actor, projectID, &dto)
	if err != nil {
		h.Logger.Error("CreateExpense: service error", "error", err, "project_id", projectID)
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, exp)
}

func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, expenseID, err := h.ids(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid ID")
		return
	}

	var dto UpdateExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	exp, err := h.Service.Update(r.Context(), actor, projectID, expenseID, &dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, exp)
}

func (h *Handler) TransitionExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, expenseID, err := h.ids(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid ID")
		return
	}

	var dto TransitionExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	exp, err := h.Service.Transition(r.Context(), actor, projectID, expenseID, &dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, exp)
}
