package user

import (
	errors "github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/core/common/validation"
	"github.com/cooperapp/cooperapp/internal/permission"
)

type UpdateRoleDTO struct {
	Role string `json:"role"`
}

func (d *UpdateRoleDTO) Validate() error {
	allowed := make([]string, len(permission.Roles))
	for i, role := range permission.Roles {
		allowed[i] = string(role)
	}

	validator := validation.NewValidator()
	validator.Field("role", d.Role).
		Required().
		OneOf(allowed)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type SetActiveDTO struct {
	IsActive *bool `json:"is_active"`
}

func (d *SetActiveDTO) Validate() error {
	if d.IsActive == nil {
		return errors.NewValidationFieldError("is_active", "is_active is required", errors.ErrCodeValidationFailed)
	}
	return nil
}

type AssignProjectDTO struct {
	ProjectID int64 `json:"project_id"`
}

func (d *AssignProjectDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("project_id", d.ProjectID).Required()
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type ListFilters struct {
	Role   string
	Active *bool
	Search string
}

type ListResponse struct {
	Users []*User `json:"users"`
	Total int64   `json:"total"`
}
