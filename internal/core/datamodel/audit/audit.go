package audit

import "time"

// Event is one append-only audit record. Rows are inserted once and never
// updated or deleted by the application.
type Event struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Timestamp    time.Time `gorm:"column:timestamp;index;not null"`
	ActorKind    string    `gorm:"column:actor_kind;not null"`
	ActorID      string    `gorm:"column:actor_id;index;not null"`
	ActorEmail   *string   `gorm:"column:actor_email"`
	ActorLabel   string    `gorm:"column:actor_label;not null"`
	Action       string    `gorm:"column:action;index;not null"`
	ResourceType *string   `gorm:"column:resource_type"`
	ResourceID   *string   `gorm:"column:resource_id"`
	Detail       *string   `gorm:"column:detail;type:text"`
	IPAddress    string    `gorm:"column:ip_address"`
	ProjectID    *int64    `gorm:"column:project_id;index"`
}

func (Event) TableName() string {
	return "audit_events"
}
