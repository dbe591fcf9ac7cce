package project

import (
	"time"

	"github.com/cooperapp/cooperapp/internal/core/common/validation"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
)

type CreateProjectDTO struct {
	Title          string     `json:"title"`
	AccountingCode string     `json:"accounting_code"`
	Country        string     `json:"country"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
}

func (d *CreateProjectDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("title", d.Title).
		Required().
		MaxLength(300)
	validator.Field("accounting_code", d.AccountingCode).
		Required().
		MinLength(3).
		MaxLength(64)
	validator.Field("country", d.Country).
		MaxLength(100)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateProjectDTO struct {
	Title                  *string    `json:"title"`
	Country                *string    `json:"country"`
	StartDate              *time.Time `json:"start_date"`
	EndDate                *time.Time `json:"end_date"`
	FinalJustificationDate *time.Time `json:"final_justification_date"`
}

func (d *UpdateProjectDTO) Validate() error {
	validator := validation.NewValidator()
	if d.Title != nil {
		validator.Field("title", *d.Title).
			Required().
			MaxLength(300)
	}
	if d.Country != nil {
		validator.Field("country", *d.Country).
			MaxLength(100)
	}
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type TransitionDTO struct {
	Status string `json:"status"`
}

func (d *TransitionDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("status", d.Status).
		Required().
		OneOf([]string{
			projectDatamodel.StatusFormulation,
			projectDatamodel.StatusApproved,
			projectDatamodel.StatusExecution,
			projectDatamodel.StatusJustification,
			projectDatamodel.StatusClosed,
		})
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type ListResponse struct {
	Projects []*Project `json:"projects"`
	Total    int64      `json:"total"`
}
