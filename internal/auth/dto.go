package auth

import (
	"github.com/cooperapp/cooperapp/internal/core/common/validation"
	"github.com/cooperapp/cooperapp/internal/permission"
)

type CounterpartLoginDTO struct {
	Code string `json:"code"`
}

func (d *CounterpartLoginDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("code", d.Code).
		Required().
		MaxLength(64)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type CounterpartLoginResponse struct {
	ProjectID int64 `json:"project_id"`
}

// MeResponse carries the principal plus its allowed actions so the
// frontend renders from the same table the gate enforces.
type MeResponse struct {
	User        *AuthedUser         `json:"user"`
	Permissions []permission.Action `json:"permissions"`
}

func NewMeResponse(user *AuthedUser) MeResponse {
	resp := MeResponse{User: user, Permissions: []permission.Action{}}
	if user.Role != nil {
		resp.Permissions = permission.Actions(*user.Role)
	}
	return resp
}
