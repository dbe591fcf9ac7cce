package session

import "time"

// InternalSession backs the staff login cookie. The cookie itself carries a
// signed token whose subject is this row's ID, so deactivating the row
// revokes the cookie at the next validation.
type InternalSession struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	UserID     string    `gorm:"column:user_id;not null;index;type:varchar(36)"`
	IPAddress  string    `gorm:"column:ip_address"`
	UserAgent  string    `gorm:"column:user_agent"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	IsActive   bool      `gorm:"column:is_active;default:true"`
}

func (InternalSession) TableName() string {
	return "internal_sessions"
}

// CounterpartSession grants one external partner time-limited access to a
// single project. TokenDigest is a deterministic digest of the opaque token
// handed to the client; the raw token is never stored.
type CounterpartSession struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	ProjectID      int64     `gorm:"column:project_id;not null;index"`
	TokenDigest    string    `gorm:"column:token_digest;uniqueIndex;not null"`
	IPAddress      string    `gorm:"column:ip_address"`
	UserAgent      string    `gorm:"column:user_agent"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	ExpiresAt      time.Time `gorm:"column:expires_at;not null"`
	LastActivityAt time.Time `gorm:"column:last_activity_at;not null"`
	IsActive       bool      `gorm:"column:is_active;default:true"`
}

func (CounterpartSession) TableName() string {
	return "counterpart_sessions"
}
