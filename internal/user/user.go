package user

import (
	"time"

	userDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
	"github.com/cooperapp/cooperapp/internal/permission"
)

// User is the administration view of a staff account.
type User struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	GivenName    string           `json:"given_name"`
	FamilyName   string           `json:"family_name"`
	Role         *permission.Role `json:"role"`
	IsActive     bool             `json:"is_active"`
	LastAccessAt *time.Time       `json:"last_access_at,omitempty"`
	ProjectIDs   []int64          `json:"project_ids,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func FromDataModel(dm *userDatamodel.User) *User {
	u := &User{
		ID:           dm.ID,
		Email:        dm.Email,
		GivenName:    dm.GivenName,
		FamilyName:   dm.FamilyName,
		IsActive:     dm.IsActive,
		LastAccessAt: dm.LastAccessAt,
		CreatedAt:    dm.CreatedAt,
		UpdatedAt:    dm.UpdatedAt,
	}
	if dm.Role != nil {
		role := permission.Role(*dm.Role)
		u.Role = &role
	}
	return u
}

func FromDataModelSlice(rows []*userDatamodel.User) []*User {
	out := make([]*User, len(rows))
	for i, row := range rows {
		out[i] = FromDataModel(row)
	}
	return out
}
