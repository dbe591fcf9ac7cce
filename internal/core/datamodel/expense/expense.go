package expense

import "time"

// Expense is one justified cost against a project budget.
type Expense struct {
	ID             int64      `gorm:"primaryKey"`
	ProjectID      int64      `gorm:"column:project_id;not null;index"`
	InvoiceDate    time.Time  `gorm:"column:invoice_date;not null"`
	Concept        string     `gorm:"column:concept;not null"`
	Issuer         string     `gorm:"column:issuer;not null"`
	AmountEUR      float64    `gorm:"column:amount_eur;not null"`
	Status         string     `gorm:"column:status;not null;default:'draft'"`
	ReviewedAt     *time.Time `gorm:"column:reviewed_at"`
	Observations   *string    `gorm:"column:observations"`
	CreatedByID    string     `gorm:"column:created_by_id;type:varchar(36)"`
	CreatedByLabel string     `gorm:"column:created_by_label"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (Expense) TableName() string {
	return "expenses"
}
