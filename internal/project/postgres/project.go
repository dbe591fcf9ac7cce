package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cooperapp/cooperapp/internal/audit"
	auditPostgres "github.com/cooperapp/cooperapp/internal/audit/postgres"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	"github.com/cooperapp/cooperapp/internal/project"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) List(page, pageSize int) ([]*projectDatamodel.Project, int64, error) {
	var total int64
	if err := r.db.Model(&projectDatamodel.Project{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*projectDatamodel.Project
	err := r.db.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	return rows, total, err
}

func (r *ProjectRepository) ListAssigned(userID string, page, pageSize int) ([]*projectDatamodel.Project, int64, error) {
	base := r.db.Model(&projectDatamodel.Project{}).
		Joins("JOIN project_assignments ON project_assignments.project_id = projects.id").
		Where("project_assignments.user_id = ?", userID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*projectDatamodel.Project
	err := base.Order("projects.created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	return rows, total, err
}

func (r *ProjectRepository) GetByID(id int64) (*projectDatamodel.Project, error) {
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

func (r *ProjectRepository) AccountingCodeTaken(code string) (bool, error) {
	var count int64
	err := r.db.Model(&projectDatamodel.Project{}).
		Where("accounting_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

func (r *ProjectRepository) Create(row *projectDatamodel.Project) error {
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	return r.db.Create(row).Error
}

func (r *ProjectRepository) Update(row *projectDatamodel.Project) error {
	row.UpdatedAt = time.Now().UTC()
	return r.db.Model(row).Select("*").Updates(row).Error
}

func (r *ProjectRepository) Delete(id int64) error {
	return r.db.Delete(&projectDatamodel.Project{}, id).Error
}

type TxManager struct {
	db       *gorm.DB
	auditSvc *audit.Service
}

func NewTxManager(db *gorm.DB, auditSvc *audit.Service) *TxManager {
	return &TxManager{db: db, auditSvc: auditSvc}
}

func (m *TxManager) InTx(fn func(repo project.RepositoryAPI, recorder audit.Recorder) error) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewProjectRepository(tx), m.auditSvc.WithRepo(auditPostgres.NewAuditRepository(tx)))
	})
}
