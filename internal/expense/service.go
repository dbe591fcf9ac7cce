package expense

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/audit"
	"github.com/cooperapp/cooperapp/internal/auth"
	expenseDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/expense"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	"github.com/cooperapp/cooperapp/internal/permission"
)

const resourceType = "expense"

type RepositoryAPI interface {
	ListByProject(projectID int64, status string, page, pageSize int) ([]*expenseDatamodel.Expense, int64, error)
	GetByID(id int64) (*expenseDatamodel.Expense, error)
	GetProject(id int64) (*projectDatamodel.Project, error)
	Create(row *expenseDatamodel.Expense) error
	Update(row *expenseDatamodel.Expense) error
}

type TxManager interface {
	InTx(fn func(repo RepositoryAPI, recorder audit.Recorder) error) error
}

type Service struct {
	repo   RepositoryAPI
	tx     TxManager
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, tx TxManager, logger *slog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger, now: time.Now}
}

func (s *Service) List(ctx context.Context, projectID int64, status string, page, pageSize int) ([]*Expense, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}

	rows, total, err := s.repo.ListByProject(projectID, status, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	return FromDataModelSlice(rows), total, nil
}

func (s *Service) Get(ctx context.Context, projectID, id int64) (*Expense, error) {
	row, err := s.loadScoped(projectID, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

// Create registers a draft expense against a project in execution or
// justification.
func (s *Service) Create(ctx context.Context, actor *auth.AuthedUser, projectID int64, dto *CreateExpenseDTO) (*Expense, error) {
	project, err := s.repo.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, internal.ErrProjectNotFound
	}
	if project.Status != projectDatamodel.StatusExecution && project.Status != projectDatamodel.StatusJustification {
		return nil, internal.NewValidationError("project does not accept expenses in its current state", internal.ErrCodeInvalidTransition)
	}

	var created *Expense
	err = s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row := &expenseDatamodel.Expense{
			ProjectID:      projectID,
			InvoiceDate:    dto.InvoiceDate,
			Concept:        dto.Concept,
			Issuer:         dto.Issuer,
			AmountEUR:      dto.AmountEUR,
			Status:         StatusDraft,
			CreatedByID:    actor.ID,
			CreatedByLabel: actor.Name,
		}
		if err := repo.Create(row); err != nil {
			return err
		}

		if _, err := recorder.Record(ctx, audit.Entry{
			ActorKind:    audit.ActorInternal,
			ActorID:      actor.ID,
			ActorEmail:   &actor.Email,
			ActorLabel:   actor.Name,
			Action:       audit.ActionCreate,
			ResourceType: strPtr(resourceType),
			ResourceID:   strPtr(strconv.FormatInt(row.ID, 10)),
			Detail:       map[string]any{"concept": row.Concept, "amount_eur": row.AmountEUR},
			IPAddress:    internal.OriginFromContext(ctx),
			ProjectID:    &projectID,
		}); err != nil {
			return err
		}

		created = FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update edits an expense still in draft or rejected state.
func (s *Service) Update(ctx context.Context, actor *auth.AuthedUser, projectID, id int64, dto *UpdateExpenseDTO) (*Expense, error) {
	var updated *Expense
	err := s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if row == nil || row.ProjectID != projectID {
			return internal.ErrExpenseNotFound
		}
		if !Editable(row.Status) {
			return internal.NewValidationError(
				fmt.Sprintf("expense in state %s cannot be edited", row.Status),
				internal.ErrCodeInvalidTransition,
			)
		}

		changes := map[string]any{}
		if dto.InvoiceDate != nil {
			row.InvoiceDate = *dto.InvoiceDate
			changes["invoice_date"] = dto.InvoiceDate
		}
		if dto.Concept != nil {
			row.Concept = *dto.Concept
			changes["concept"] = *dto.Concept
		}
		if dto.Issuer != nil {
			row.Issuer = *dto.Issuer
			changes["issuer"] = *dto.Issuer
		}
		if dto.AmountEUR != nil {
			row.AmountEUR = *dto.AmountEUR
			changes["amount_eur"] = *dto.AmountEUR
		}
		if len(changes) == 0 {
			updated = FromDataModel(row)
			return nil
		}

		if err := repo.Update(row); err != nil {
			return err
		}

		if _, err := recorder.Record(ctx, audit.Entry{
			ActorKind:    audit.ActorInternal,
			ActorID:      actor.ID,
			ActorEmail:   &actor.Email,
			ActorLabel:   actor.Name,
			Action:       audit.ActionUpdate,
			ResourceType: strPtr(resourceType),
			ResourceID:   strPtr(strconv.FormatInt(id, 10)),
			Detail:       changes,
			IPAddress:    internal.OriginFromContext(ctx),
			ProjectID:    &projectID,
		}); err != nil {
			return err
		}

		updated = FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transition moves an expense through review. Each step carries its own
// permission: submission needs expense_edit, validation and rejection
// need expense_validate, justification needs expense_justify.
func (s *Service) Transition(ctx context.Context, actor *auth.AuthedUser, projectID, id int64, dto *TransitionExpenseDTO) (*Expense, error) {
	var updated *Expense
	err := s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if row == nil || row.ProjectID != projectID {
			return internal.ErrExpenseNotFound
		}

		required, ok := TransitionPermission(row.Status, dto.Status)
		if !ok {
			return internal.NewValidationError(
				fmt.Sprintf("cannot move expense from %s to %s", row.Status, dto.Status),
				internal.ErrCodeInvalidTransition,
			)
		}
		if !permission.IsAllowed(actor.Role, required) {
			return internal.ErrForbidden
		}

		old := row.Status
		row.Status = dto.Status
		if dto.Status == StatusValidated || dto.Status == StatusRejected {
			now := s.now().UTC()
			row.ReviewedAt = &now
		}
		if dto.Observations != nil {
			row.Observations = dto.Observations
		}
		if err := repo.Update(row); err != nil {
			return err
		}

		detail := map[string]any{"old": old, "new": dto.Status}
		if dto.Observations != nil {
			detail["observations"] = *dto.Observations
		}

		if _, err := recorder.Record(ctx, audit.Entry{
			ActorKind:    audit.ActorInternal,
			ActorID:      actor.ID,
			ActorEmail:   &actor.Email,
			ActorLabel:   actor.Name,
			Action:       audit.ActionStatusChange,
			ResourceType: strPtr(resourceType),
			ResourceID:   strPtr(strconv.FormatInt(id, 10)),
			Detail:       detail,
			IPAddress:    internal.OriginFromContext(ctx),
			ProjectID:    &projectID,
		}); err != nil {
			return err
		}

		updated = FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("expense status changed", "expense_id", id, "status", dto.Status, "by", actor.ID)
	return updated, nil
}

func (s *Service) loadScoped(projectID, id int64) (*expenseDatamodel.Expense, error) {
	row, err := s.repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	if row == nil || row.ProjectID != projectID {
		return nil, internal.ErrExpenseNotFound
	}
	return row, nil
}

func strPtr(s string) *string { return &s }
