package project

import (
	"time"

	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
)

// Project is the internal API view.
type Project struct {
	ID                     int64      `json:"id"`
	Title                  string     `json:"title"`
	AccountingCode         string     `json:"accounting_code"`
	Country                string     `json:"country"`
	Status                 string     `json:"status"`
	StartDate              *time.Time `json:"start_date,omitempty"`
	EndDate                *time.Time `json:"end_date,omitempty"`
	FinalJustificationDate *time.Time `json:"final_justification_date,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Summary is the reduced view served to the counterpart portal. No
// budget or accounting detail crosses that boundary.
type Summary struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Country   string     `json:"country"`
	Status    string     `json:"status"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// nextStatus holds the single legal forward transition per state.
var nextStatus = map[string]string{
	projectDatamodel.StatusFormulation:   projectDatamodel.StatusApproved,
	projectDatamodel.StatusApproved:      projectDatamodel.StatusExecution,
	projectDatamodel.StatusExecution:     projectDatamodel.StatusJustification,
	projectDatamodel.StatusJustification: projectDatamodel.StatusClosed,
}

// CanTransition reports whether from→to is a legal lifecycle step.
func CanTransition(from, to string) bool {
	return nextStatus[from] == to
}

func FromDataModel(dm *projectDatamodel.Project) *Project {
	return &Project{
		ID:                     dm.ID,
		Title:                  dm.Title,
		AccountingCode:         dm.AccountingCode,
		Country:                dm.Country,
		Status:                 dm.Status,
		StartDate:              dm.StartDate,
		EndDate:                dm.EndDate,
		FinalJustificationDate: dm.FinalJustificationDate,
		CreatedAt:              dm.CreatedAt,
		UpdatedAt:              dm.UpdatedAt,
	}
}

func FromDataModelSlice(rows []*projectDatamodel.Project) []*Project {
	out := make([]*Project, len(rows))
	for i, row := range rows {
		out[i] = FromDataModel(row)
	}
	return out
}

func SummaryFromDataModel(dm *projectDatamodel.Project) *Summary {
	return &Summary{
		ID:        dm.ID,
		Title:     dm.Title,
		Country:   dm.Country,
		Status:    dm.Status,
		StartDate: dm.StartDate,
		EndDate:   dm.EndDate,
	}
}
