package project

import "time"

// Lifecycle states, in order.
const (
	StatusFormulation   = "formulation"
	StatusApproved      = "approved"
	StatusExecution     = "execution"
	StatusJustification = "justification"
	StatusClosed        = "closed"
)

// CounterpartAccessible reports whether a project in the given state may
// be entered through the counterpart portal.
func CounterpartAccessible(status string) bool {
	return status == StatusExecution || status == StatusJustification
}

// Project is a cooperation project. AccountingCode doubles as the shared
// counterpart access code while the project is in execution or justification.
type Project struct {
	ID                     int64      `gorm:"primaryKey"`
	Title                  string     `gorm:"column:title;not null"`
	AccountingCode         string     `gorm:"column:accounting_code;uniqueIndex;not null"`
	Country                string     `gorm:"column:country"`
	Status                 string     `gorm:"column:status;not null;default:'formulation'"`
	StartDate              *time.Time `gorm:"column:start_date"`
	EndDate                *time.Time `gorm:"column:end_date"`
	FinalJustificationDate *time.Time `gorm:"column:final_justification_date"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (Project) TableName() string {
	return "projects"
}
