package expense

import (
	"time"

	"github.com/cooperapp/cooperapp/internal/core/common/validation"

	errors "github.com/cooperapp/cooperapp/internal"
)

type CreateExpenseDTO struct {
	InvoiceDate time.Time `json:"invoice_date"`
	Concept     string    `json:"concept"`
	Issuer      string    `json:"issuer"`
	AmountEUR   float64   `json:"amount_eur"`
}

func (d *CreateExpenseDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("concept", d.Concept).
		Required().
		MaxLength(500)
	validator.Field("issuer", d.Issuer).
		Required().
		MaxLength(200)
	validator.Field("amount_eur", d.AmountEUR).
		Required().
		MinFloat(0.01, errors.ErrCodeInvalidAmount)
	validator.Field("invoice_date", d.InvoiceDate).
		NotFuture()
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateExpenseDTO struct {
	InvoiceDate *time.Time `json:"invoice_date"`
	Concept     *string    `json:"concept"`
	Issuer      *string    `json:"issuer"`
	AmountEUR   *float64   `json:"amount_eur"`
}

func (d *UpdateExpenseDTO) Validate() error {
	validator := validation.NewValidator()
	if d.Concept != nil {
		validator.Field("concept", *d.Concept).
			Required().
			MaxLength(500)
	}
	if d.Issuer != nil {
		validator.Field("issuer", *d.Issuer).
			Required().
			MaxLength(200)
	}
	if d.AmountEUR != nil {
		validator.Field("amount_eur", *d.AmountEUR).
			Required().
			MinFloat(0.01, errors.ErrCodeInvalidAmount)
	}
	if d.InvoiceDate != nil {
		validator.Field("invoice_date", *d.InvoiceDate).
			NotFuture()
	}
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

type TransitionExpenseDTO struct {
	Status       string  `json:"status"`
	Observations *string `json:"observations"`
}

func (d *TransitionExpenseDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("status", d.Status).
		Required().
		OneOf([]string{StatusPendingReview, StatusValidated, StatusRejected, StatusJustified})
	if err := validator.Validate(); err != nil {
		return err
	}
	if d.Status == StatusRejected && (d.Observations == nil || *d.Observations == "") {
		return errors.NewValidationFieldError("observations", "observations are required when rejecting", errors.ErrCodeValidationFailed)
	}
	return nil
}

type ListResponse struct {
	Expenses []*Expense `json:"expenses"`
	Total    int64      `json:"total"`
}
