package postgres

import (
	"gorm.io/gorm"

	"github.com/cooperapp/cooperapp/internal/audit"
	auditDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/audit"
)

// AuditRepository persists audit events with GORM. Insert and query only;
// the table is append-only from every code path.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WithTx returns a repository bound to tx so callers can commit an audit
// write together with the business mutation it describes.
func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Create(event *auditDatamodel.Event) error {
	return r.db.Create(event).Error
}

func (r *AuditRepository) Query(filters audit.Filters, page, pageSize int) ([]*auditDatamodel.Event, int64, error) {
	query := r.db.Model(&auditDatamodel.Event{})

	if filters.ProjectID != nil {
		query = query.Where("project_id = ?", *filters.ProjectID)
	}
	if filters.ActorID != "" {
		query = query.Where("actor_id = ?", filters.ActorID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", string(filters.Action))
	}
	if filters.From != nil {
		query = query.Where("timestamp >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("timestamp <= ?", *filters.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []*auditDatamodel.Event
	err := query.
		Order("timestamp DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
