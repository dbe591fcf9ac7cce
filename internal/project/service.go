package project

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/audit"
	"github.com/cooperapp/cooperapp/internal/auth"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	"github.com/cooperapp/cooperapp/internal/permission"
)

const resourceType = "project"

type RepositoryAPI interface {
	List(page, pageSize int) ([]*projectDatamodel.Project, int64, error)
	ListAssigned(userID string, page, pageSize int) ([]*projectDatamodel.Project, int64, error)
	GetByID(id int64) (*projectDatamodel.Project, error)
	AccountingCodeTaken(code string) (bool, error)
	Create(row *projectDatamodel.Project) error
	Update(row *projectDatamodel.Project) error
	Delete(id int64) error
}

type TxManager interface {
	InTx(fn func(repo RepositoryAPI, recorder audit.Recorder) error) error
}

type Service struct {
	repo   RepositoryAPI
	tx     TxManager
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, tx TxManager, logger *slog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger}
}

// List narrows to assigned projects for the project-scoped role; every
// other role sees the full portfolio.
func (s *Service) List(ctx context.Context, actor *auth.AuthedUser, page, pageSize int) ([]*Project, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}

	var (
		rows  []*projectDatamodel.Project
		total int64
		err   error
	)
	if actor.Role != nil && *actor.Role == permission.RoleCountryManager {
		rows, total, err = s.repo.ListAssigned(actor.ID, page, pageSize)
	} else {
		rows, total, err = s.repo.List(page, pageSize)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	return FromDataModelSlice(rows), total, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Project, error) {
	row, err := s.repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if row == nil {
		return nil, internal.ErrProjectNotFound
	}
	return FromDataModel(row), nil
}

// Summary is the counterpart portal read.
func (s *Service) Summary(ctx context.Context, id int64) (*Summary, error) {
	row, err := s.repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if row == nil {
		return nil, internal.ErrProjectNotFound
	}
	return SummaryFromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, actor *auth.AuthedUser, dto *CreateProjectDTO) (*Project, error) {
	taken, err := s.repo.AccountingCodeTaken(dto.AccountingCode)
	if err != nil {
		return nil, fmt.Errorf("check accounting code: %w", err)
	}
	if taken {
		return nil, internal.NewConflictError("accounting code already in use", internal.ErrCodeValidationFailed)
	}

	var created *Project
	err = s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row := &projectDatamodel.Project{
			Title:          dto.Title,
			AccountingCode: dto.AccountingCode,
			Country:        dto.Country,
			Status:         projectDatamodel.StatusFormulation,
			StartDate:      dto.StartDate,
			EndDate:        dto.EndDate,
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
			Detail:       map[string]any{"title": row.Title, "accounting_code": row.AccountingCode},
			IPAddress:    internal.OriginFromContext(ctx),
			ProjectID:    &row.ID,
		}); err != nil {
			return err
		}

		created = FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", created.ID, "by", actor.ID)
	return created, nil
}

// Update applies partial edits. The final-justification date is reserved
// to roles holding expense_justify; the project-scoped role cannot move
// it even though it may edit the rest.
func (s *Service) Update(ctx context.Context, actor *auth.AuthedUser, id int64, dto *UpdateProjectDTO) (*Project, error) {
	if dto.FinalJustificationDate != nil && !permission.IsAllowed(actor.Role, permission.ExpenseJustify) {
		return nil, internal.ErrForbidden
	}

	var updated *Project
	err := s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if row == nil {
			return internal.ErrProjectNotFound
		}

		changes := map[string]any{}
		if dto.Title != nil {
			row.Title = *dto.Title
			changes["title"] = *dto.Title
		}
		if dto.Country != nil {
			row.Country = *dto.Country
			changes["country"] = *dto.Country
		}
		if dto.StartDate != nil {
			row.StartDate = dto.StartDate
			changes["start_date"] = dto.StartDate
		}
		if dto.EndDate != nil {
			row.EndDate = dto.EndDate
			changes["end_date"] = dto.EndDate
		}
		if dto.FinalJustificationDate != nil {
			row.FinalJustificationDate = dto.FinalJustificationDate
			changes["final_justification_date"] = dto.FinalJustificationDate
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
			ProjectID:    &id,
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

// Transition moves the project one step along its lifecycle. Entering
// justification is tied to expense_justify, which the project-scoped
// role does not hold.
func (s *Service) Transition(ctx context.Context, actor *auth.AuthedUser, id int64, newStatus string) (*Project, error) {
	if newStatus == projectDatamodel.StatusJustification && !permission.IsAllowed(actor.Role, permission.ExpenseJustify) {
		return nil, internal.ErrForbidden
	}

	var updated *Project
	err := s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if row == nil {
			return internal.ErrProjectNotFound
		}

		if !CanTransition(row.Status, newStatus) {
			return internal.NewValidationError(
				fmt.Sprintf("cannot move project from %s to %s", row.Status, newStatus),
				internal.ErrCodeInvalidTransition,
			)
		}

		old := row.Status
		row.Status = newStatus
		if err := repo.Update(row); err != nil {
			return err
		}

		if _, err := recorder.Record(ctx, audit.Entry{
			ActorKind:    audit.ActorInternal,
			ActorID:      actor.ID,
			ActorEmail:   &actor.Email,
			ActorLabel:   actor.Name,
			Action:       audit.ActionStatusChange,
			ResourceType: strPtr(resourceType),
			ResourceID:   strPtr(strconv.FormatInt(id, 10)),
			Detail:       map[string]any{"old": old, "new": newStatus},
			IPAddress:    internal.OriginFromContext(ctx),
			ProjectID:    &id,
		}); err != nil {
			return err
		}

		updated = FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("project status changed", "project_id", id, "status", newStatus, "by", actor.ID)
	return updated, nil
}

// Delete removes a project. The route gate keeps this admin-only.
func (s *Service) Delete(ctx context.Context, actor *auth.AuthedUser, id int64) error {
	return s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if row == nil {
			return internal.ErrProjectNotFound
		}

		if err := repo.Delete(id); err != nil {
			return err
		}

		_, err = recorder.Record(ctx, audit.Entry{
			ActorKind:    audit.ActorInternal,
			ActorID:      actor.ID,
			ActorEmail:   &actor.Email,
			ActorLabel:   actor.Name,
			Action:       audit.ActionDelete,
			ResourceType: strPtr(resourceType),
			ResourceID:   strPtr(strconv.FormatInt(id, 10)),
			Detail:       map[string]any{"title": row.Title, "accounting_code": row.AccountingCode},
			IPAddress:    internal.OriginFromContext(ctx),
			ProjectID:    &id,
		})
		return err
	})
}

func strPtr(s string) *string { return &s }
