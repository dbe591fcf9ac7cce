package expense

import (
	"time"

	expenseDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/expense"
	"github.com/cooperapp/cooperapp/internal/permission"
)

// Review states of an expense.
const (
	StatusDraft         = "draft"
	StatusPendingReview = "pending_review"
	StatusValidated     = "validated"
	StatusRejected      = "rejected"
	StatusJustified     = "justified"
)

// transitions maps each legal step to the permission that authorizes it.
var transitions = map[string]map[string]permission.Action{
	StatusDraft: {
		StatusPendingReview: permission.ExpenseEdit,
	},
	StatusPendingReview: {
		StatusValidated: permission.ExpenseValidate,
		StatusRejected:  permission.ExpenseValidate,
	},
	StatusRejected: {
		StatusPendingReview: permission.ExpenseEdit,
	},
	StatusValidated: {
		StatusJustified: permission.ExpenseJustify,
	},
}

// TransitionPermission returns the action required for from→to, or
// false when the step is not part of the lifecycle.
func TransitionPermission(from, to string) (permission.Action, bool) {
	action, ok := transitions[from][to]
	return action, ok
}

// Editable reports whether the expense fields may still be changed.
func Editable(status string) bool {
	return status == StatusDraft || status == StatusRejected
}

type Expense struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	InvoiceDate    time.Time  `json:"invoice_date"`
	Concept        string     `json:"concept"`
	Issuer         string     `json:"issuer"`
	AmountEUR      float64    `json:"amount_eur"`
	Status         string     `json:"status"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	Observations   *string    `json:"observations,omitempty"`
	CreatedByID    string     `json:"created_by_id"`
	CreatedByLabel string     `json:"created_by_label"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func FromDataModel(dm *expenseDatamodel.Expense) *Expense {
	return &Expense{
		ID:             dm.ID,
		ProjectID:      dm.ProjectID,
		InvoiceDate:    dm.InvoiceDate,
		Concept:        dm.Concept,
		Issuer:         dm.Issuer,
		AmountEUR:      dm.AmountEUR,
		Status:         dm.Status,
		ReviewedAt:     dm.ReviewedAt,
		Observations:   dm.Observations,
		CreatedByID:    dm.CreatedByID,
		CreatedByLabel: dm.CreatedByLabel,
		CreatedAt:      dm.CreatedAt,
		UpdatedAt:      dm.UpdatedAt,
	}
}

func FromDataModelSlice(rows []*expenseDatamodel.Expense) []*Expense {
	out := make([]*Expense, len(rows))
	for i, row := range rows {
		out[i] = FromDataModel(row)
	}
	return out
}
