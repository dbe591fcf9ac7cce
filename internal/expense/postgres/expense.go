package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cooperapp/cooperapp/internal/audit"
	auditPostgres "github.com/cooperapp/cooperapp/internal/audit/postgres"
	expenseDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/expense"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	"github.com/cooperapp/cooperapp/internal/expense"
)

type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) ListByProject(projectID int64, status string, page, pageSize int) ([]*expenseDatamodel.Expense, int64, error) {
	query := r.db.Model(&expenseDatamodel.Expense{}).Where("project_id = ?", projectID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*expenseDatamodel.Expense
	err := query.Order("invoice_date DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	return rows, total, err
}

func (r *ExpenseRepository) GetByID(id int64) (*expenseDatamodel.Expense, error) {
	var row expenseDatamodel.Expense
	err := r.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ExpenseRepository) GetProject(id int64) (*projectDatamodel.Project, error) {
	var row projectDatamodel.Project
	err := r.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ExpenseRepository) Create(row *expenseDatamodel.Expense) error {
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	return r.db.Create(row).Error
}

func (r *ExpenseRepository) Update(row *expenseDatamodel.Expense) error {
	row.UpdatedAt = time.Now().UTC()
	return r.db.Model(row).Select("*").Updates(row).Error
}

type TxManager struct {
	db       *gorm.DB
	auditSvc *audit.Service
}

func NewTxManager(db *gorm.DB, auditSvc *audit.Service) *TxManager {
	return &TxManager{db: db, auditSvc: auditSvc}
}

func (m *TxManager) InTx(fn func(repo expense.RepositoryAPI, recorder audit.Recorder) error) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewExpenseRepository(tx), m.auditSvc.WithRepo(auditPostgres.NewAuditRepository(tx)))
	})
}
