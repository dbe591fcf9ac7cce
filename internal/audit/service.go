package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/audit"
)

// RepositoryAPI is the append-only persistence surface. There is no update
// or delete: recorded events are immutable.
type RepositoryAPI interface {
	Create(event *auditDatamodel.Event) error
	Query(filters Filters, page, pageSize int) ([]*auditDatamodel.Event, int64, error)
}

// Recorder is the write-side contract consumed by every audited component.
type Recorder interface {
	Record(ctx context.Context, entry Entry) (*Event, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// WithRepo returns a Service writing through the given repository,
// typically one bound to an open transaction, so an event commits or
// rolls back together with the mutation it describes.
func (s *Service) WithRepo(repo RepositoryAPI) *Service {
	return &Service{repo: repo, logger: s.logger}
}

// NewEvent stamps an entry with identity and write time.
func NewEvent(entry Entry) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		ActorKind:    entry.ActorKind,
		ActorID:      entry.ActorID,
		ActorEmail:   entry.ActorEmail,
		ActorLabel:   entry.ActorLabel,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Detail:       entry.Detail,
		IPAddress:    entry.IPAddress,
		ProjectID:    entry.ProjectID,
	}
}

// Record writes one event synchronously. Callers must treat a returned error
// as a failure of the action being audited, not as a loggable warning.
func (s *Service) Record(ctx context.Context, entry Entry) (*Event, error) {
	if !entry.Action.Valid() {
		return nil, fmt.Errorf("unknown audit action %q", entry.Action)
	}

	event := NewEvent(entry)
	if err := s.repo.Create(ToDataModel(event)); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed",
			"action", entry.Action,
			"actor_id", entry.ActorID,
			"error", err)
		return nil, fmt.Errorf("record audit event: %w", err)
	}

	return event, nil
}

// Query returns a newest-first page of events plus the unpaged total.
func (s *Service) Query(ctx context.Context, filters Filters, page, pageSize int) ([]*Event, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	rows, total, err := s.repo.Query(filters, page, pageSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit query failed", "error", err)
		return nil, 0, err
	}

	return FromDataModelSlice(rows), total, nil
}
