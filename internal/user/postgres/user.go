package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cooperapp/cooperapp/internal/audit"
	auditPostgres "github.com/cooperapp/cooperapp/internal/audit/postgres"
	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	userDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
	"github.com/cooperapp/cooperapp/internal/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) List(filters user.ListFilters, page, pageSize int) ([]*userDatamodel.User, int64, error) {
	query := r.db.Model(&userDatamodel.User{})

	if filters.Role != "" {
		query = query.Where("role = ?", filters.Role)
	}
	if filters.Active != nil {
		query = query.Where("is_active = ?", *filters.Active)
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		query = query.Where(
			"email LIKE ? OR given_name LIKE ? OR family_name LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*userDatamodel.User
	err := query.Order("email ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	return rows, total, err
}

func (r *UserRepository) GetByID(id string) (*userDatamodel.User, error) {
	var row userDatamodel.User
	err := r.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *UserRepository) Update(row *userDatamodel.User) error {
	row.UpdatedAt = time.Now().UTC()
	// Save skips zero-valued fields through Updates; Select forces the
	// nullable role and active flag to persist as written.
	return r.db.Model(row).Select("*").Updates(row).Error
}

func (r *UserRepository) Assignments(userID string) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&userDatamodel.ProjectAssignment{}).
		Where("user_id = ?", userID).
		Order("project_id ASC").
		Pluck("project_id", &ids).Error
	return ids, err
}

func (r *UserRepository) CreateAssignment(userID string, projectID int64) error {
	return r.db.Create(&userDatamodel.ProjectAssignment{
		UserID:    userID,
		ProjectID: projectID,
		CreatedAt: time.Now().UTC(),
	}).Error
}

func (r *UserRepository) DeleteAssignment(userID string, projectID int64) (bool, error) {
	result := r.db.Where("user_id = ? AND project_id = ?", userID, projectID).
		Delete(&userDatamodel.ProjectAssignment{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *UserRepository) HasAssignment(userID string, projectID int64) (bool, error) {
	var count int64
	err := r.db.Model(&userDatamodel.ProjectAssignment{}).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ProjectExists(projectID int64) (bool, error) {
	var count int64
	err := r.db.Model(&projectDatamodel.Project{}).
		Where("id = ?", projectID).
		Count(&count).Error
	return count > 0, err
}

// TxManager gives the user service a single transaction spanning the
// mutation and its audit event.
type TxManager struct {
	db       *gorm.DB
	auditSvc *audit.Service
}

func NewTxManager(db *gorm.DB, auditSvc *audit.Service) *TxManager {
	return &TxManager{db: db, auditSvc: auditSvc}
}

func (m *TxManager) InTx(fn func(repo user.RepositoryAPI, recorder audit.Recorder) error) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewUserRepository(tx), m.auditSvc.WithRepo(auditPostgres.NewAuditRepository(tx)))
	})
}
