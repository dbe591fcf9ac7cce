package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/audit"
	"github.com/cooperapp/cooperapp/internal/auth"
	userDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
	"github.com/cooperapp/cooperapp/internal/permission"
)

const resourceType = "user"

type RepositoryAPI interface {
	List(filters ListFilters, page, pageSize int) ([]*userDatamodel.User, int64, error)
	GetByID(id string) (*userDatamodel.User, error)
	Update(user *userDatamodel.User) error
	Assignments(userID string) ([]int64, error)
	CreateAssignment(userID string, projectID int64) error
	// DeleteAssignment reports whether a row was actually removed.
	DeleteAssignment(userID string, projectID int64) (bool, error)
	HasAssignment(userID string, projectID int64) (bool, error)
	ProjectExists(projectID int64) (bool, error)
}

// TxManager runs a mutation and its audit event in one transaction, so
// an action that cannot be recorded does not happen.
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

func (s *Service) List(ctx context.Context, filters ListFilters, page, pageSize int) ([]*User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}

	rows, total, err := s.repo.List(filters, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return FromDataModelSlice(rows), total, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	row, err := s.repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if row == nil {
		return nil, internal.ErrUserNotFound
	}

	u := FromDataModel(row)
	u.ProjectIDs, err = s.repo.Assignments(id)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	return u, nil
}

// UpdateRole sets or changes a user's role. The old and new values land
// in the audit detail so role history can be reconstructed.
func (s *Service) UpdateRole(ctx context.Context, actor *auth.AuthedUser, userID string, newRole permission.Role) (*User, error) {
	if !newRole.Assignable() {
		return nil, internal.NewValidationError("unknown role", internal.ErrCodeValidationFailed)
	}

	var updated *User
	err := s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row, err := repo.GetByID(userID)
		if err != nil {
			return err
		}
		if row == nil {
			return internal.ErrUserNotFound
		}

		oldRole := "none"
		if row.Role != nil {
			oldRole = *row.Role
		}
		role := string(newRole)
		row.Role = &role
		if err := repo.Update(row); err != nil {
			return err
		}

		if _, err := recorder.Record(ctx, audit.Entry{
			ActorKind:    audit.ActorInternal,
			ActorID:      actor.ID,
			ActorEmail:   &actor.Email,
			ActorLabel:   actor.Name,
			Action:       audit.ActionRoleChange,
			ResourceType: strPtr(resourceType),
			ResourceID:   &userID,
			Detail:       map[string]any{"old": oldRole, "new": role},
			IPAddress:    internal.OriginFromContext(ctx),
		}); err != nil {
			return err
		}

		updated = FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role updated", "user_id", userID, "role", string(newRole), "by", actor.ID)
	return updated, nil
}

// SetActive toggles the soft-disable flag. Admins cannot lock themselves
// out by deactivating their own account.
func (s *Service) SetActive(ctx context.Context, actor *auth.AuthedUser, userID string, active bool) (*User, error) {
	if actor.ID == userID && !active {
		return nil, internal.NewValidationError("cannot deactivate your own account", internal.ErrCodeValidationFailed)
	}

	var updated *User
	err := s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row, err := repo.GetByID(userID)
		if err != nil {
			return err
		}
		if row == nil {
			return internal.ErrUserNotFound
		}

		row.IsActive = active
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
			ResourceID:   &userID,
			Detail:       map[string]any{"is_active": active},
			IPAddress:    internal.OriginFromContext(ctx),
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

// AssignProject attaches a project to a user. Assignments only matter
// for country managers but may be prepared ahead of a role change.
func (s *Service) AssignProject(ctx context.Context, actor *auth.AuthedUser, userID string, projectID int64) error {
	return s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		row, err := repo.GetByID(userID)
		if err != nil {
			return err
		}
		if row == nil {
			return internal.ErrUserNotFound
		}

		exists, err := repo.ProjectExists(projectID)
		if err != nil {
			return err
		}
		if !exists {
			return internal.ErrProjectNotFound
		}

		assigned, err := repo.HasAssignment(userID, projectID)
		if err != nil {
			return err
		}
		if assigned {
			return internal.NewConflictError("user already assigned to project", internal.ErrCodeAlreadyAssigned)
		}

		if err := repo.CreateAssignment(userID, projectID); err != nil {
			return err
		}

		_, err = recorder.Record(ctx, audit.Entry{
			ActorKind:    audit.ActorInternal,
			ActorID:      actor.ID,
			ActorEmail:   &actor.Email,
			ActorLabel:   actor.Name,
			Action:       audit.ActionProjectAssign,
			ResourceType: strPtr(resourceType),
			ResourceID:   &userID,
			IPAddress:    internal.OriginFromContext(ctx),
			ProjectID:    &projectID,
		})
		return err
	})
}

// UnassignProject removes an assignment. Removing a missing assignment
// is a no-op and records nothing.
func (s *Service) UnassignProject(ctx context.Context, actor *auth.AuthedUser, userID string, projectID int64) error {
	return s.tx.InTx(func(repo RepositoryAPI, recorder audit.Recorder) error {
		removed, err := repo.DeleteAssignment(userID, projectID)
		if err != nil {
			return err
		}
		if !removed {
			return nil
		}

		_, err = recorder.Record(ctx, audit.Entry{
			ActorKind:    audit.ActorInternal,
			ActorID:      actor.ID,
			ActorEmail:   &actor.Email,
			ActorLabel:   actor.Name,
			Action:       audit.ActionProjectUnassign,
			ResourceType: strPtr(resourceType),
			ResourceID:   &userID,
			IPAddress:    internal.OriginFromContext(ctx),
			ProjectID:    &projectID,
		})
		return err
	})
}

func strPtr(s string) *string { return &s }
