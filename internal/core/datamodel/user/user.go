package user

import "time"

// User is an internal staff account. Role is nil until an administrator
// activates the account; a nil-role or inactive user holds no permissions.
type User struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)"`
	Email        string     `gorm:"column:email;uniqueIndex;not null"`
	GivenName    string     `gorm:"column:given_name;not null"`
	FamilyName   string     `gorm:"column:family_name;not null"`
	SubjectID    *string    `gorm:"column:subject_id;uniqueIndex"`
	Role         *string    `gorm:"column:role"`
	IsActive     bool       `gorm:"column:is_active;default:true"`
	LastAccessAt *time.Time `gorm:"column:last_access_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// ProjectAssignment scopes a country-manager user to a project. Rows are
// inert for any other role.
type ProjectAssignment struct {
	UserID    string    `gorm:"column:user_id;primaryKey;type:varchar(36)"`
	ProjectID int64     `gorm:"column:project_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (ProjectAssignment) TableName() string {
	return "project_assignments"
}
