package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	projectDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	sessionDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/session"
	userDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
)

// AuthRepository backs the auth service with GORM. Lookup methods return
// (nil, nil) when no row matches so the service decides what a miss means.
type AuthRepository struct {
	db *gorm.DB
}

func NewAuthRepository(db *gorm.DB) *AuthRepository {
	return &AuthRepository{db: db}
}

func (r *AuthRepository) GetUserBySubject(subjectID string) (*userDatamodel.User, error) {
	var user userDatamodel.User
	err := r.db.Where("subject_id = ?", subjectID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *AuthRepository) GetUserByEmail(email string) (*userDatamodel.User, error) {
	var user userDatamodel.User
	err := r.db.Where("lower(email) = lower(?)", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *AuthRepository) GetUserByID(id string) (*userDatamodel.User, error) {
	var user userDatamodel.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *AuthRepository) CreateUser(user *userDatamodel.User) error {
	return r.db.Create(user).Error
}

func (r *AuthRepository) UpdateUser(user *userDatamodel.User) error {
	user.UpdatedAt = time.Now().UTC()
	return r.db.Save(user).Error
}

func (r *AuthRepository) CreateInternalSession(session *sessionDatamodel.InternalSession) error {
	return r.db.Create(session).Error
}

func (r *AuthRepository) GetInternalSession(id string) (*sessionDatamodel.InternalSession, error) {
	var session sessionDatamodel.InternalSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *AuthRepository) TouchInternalSession(id string, at time.Time) error {
	return r.db.Model(&sessionDatamodel.InternalSession{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
}

func (r *AuthRepository) DeactivateInternalSession(id string) error {
	return r.db.Model(&sessionDatamodel.InternalSession{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *AuthRepository) GetProjectByAccountingCode(code string) (*projectDatamodel.Project, error) {
	var project projectDatamodel.Project
	err := r.db.Where("accounting_code = ?", code).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *AuthRepository) GetProjectByID(id int64) (*projectDatamodel.Project, error) {
	var project projectDatamodel.Project
	err := r.db.Where("id = ?", id).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *AuthRepository) CreateCounterpartSession(session *sessionDatamodel.CounterpartSession) error {
	return r.db.Create(session).Error
}

func (r *AuthRepository) GetCounterpartSessionByDigest(digest string) (*sessionDatamodel.CounterpartSession, error) {
	var session sessionDatamodel.CounterpartSession
	err := r.db.Where("token_digest = ?", digest).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *AuthRepository) TouchCounterpartSession(id string, at time.Time) error {
	return r.db.Model(&sessionDatamodel.CounterpartSession{}).
		Where("id = ?", id).
		Update("last_activity_at", at).Error
}

// DeactivateCounterpartIfActive closes the session only if it is still
// open. The affected-rows count tells concurrent callers apart: exactly
// one of them observes the flip.
func (r *AuthRepository) DeactivateCounterpartIfActive(id string) (bool, error) {
	result := r.db.Model(&sessionDatamodel.CounterpartSession{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *AuthRepository) HasAssignment(userID string, projectID int64) (bool, error) {
	var count int64
	err := r.db.Model(&userDatamodel.ProjectAssignment{}).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Count(&count).Error
	return count > 0, err
}
