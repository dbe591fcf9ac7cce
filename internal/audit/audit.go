package audit

import (
	"encoding/json"
	"time"

	auditDatamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/audit"
)

// ActorKind identifies which population performed an audited action.
type ActorKind string

const (
	ActorInternal    ActorKind = "internal"
	ActorCounterpart ActorKind = "counterpart"
)

// Action is the closed set of audited action kinds.
type Action string

const (
	ActionLogin           Action = "login"
	ActionLogout          Action = "logout"
	ActionLoginFailed     Action = "login_failed"
	ActionSessionExpired  Action = "session_expired"
	ActionCreate          Action = "create"
	ActionUpdate          Action = "update"
	ActionDelete          Action = "delete"
	ActionStatusChange    Action = "status_change"
	ActionUpload          Action = "upload"
	ActionDownload        Action = "download"
	ActionExport          Action = "export"
	ActionRoleChange      Action = "role_change"
	ActionProjectAssign   Action = "project_assign"
	ActionProjectUnassign Action = "project_unassign"
)

var knownActions = map[Action]struct{}{
	ActionLogin: {}, ActionLogout: {}, ActionLoginFailed: {}, ActionSessionExpired: {},
	ActionCreate: {}, ActionUpdate: {}, ActionDelete: {}, ActionStatusChange: {},
	ActionUpload: {}, ActionDownload: {}, ActionExport: {}, ActionRoleChange: {},
	ActionProjectAssign: {}, ActionProjectUnassign: {},
}

func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Entry is the input for one audit record.
type Entry struct {
	ActorKind    ActorKind
	ActorID      string
	ActorEmail   *string
	ActorLabel   string
	Action       Action
	ResourceType *string
	ResourceID   *string
	Detail       map[string]any
	IPAddress    string
	ProjectID    *int64
}

// Event is a recorded, immutable audit entry.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	ActorKind    ActorKind      `json:"actor_kind"`
	ActorID      string         `json:"actor_id"`
	ActorEmail   *string        `json:"actor_email,omitempty"`
	ActorLabel   string         `json:"actor_label"`
	Action       Action         `json:"action"`
	ResourceType *string        `json:"resource_type,omitempty"`
	ResourceID   *string        `json:"resource_id,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	ProjectID    *int64         `json:"project_id,omitempty"`
}

// Filters narrows an audit query. Zero values mean "no filter".
type Filters struct {
	ProjectID *int64
	ActorID   string
	Action    Action
	From      *time.Time
	To        *time.Time
}

func ToDataModel(e *Event) *auditDatamodel.Event {
	var detail *string
	if len(e.Detail) > 0 {
		if raw, err := json.Marshal(e.Detail); err == nil {
			s := string(raw)
			detail = &s
		}
	}
	return &auditDatamodel.Event{
		ID:           e.ID,
		Timestamp:    e.Timestamp,
		ActorKind:    string(e.ActorKind),
		ActorID:      e.ActorID,
		ActorEmail:   e.ActorEmail,
		ActorLabel:   e.ActorLabel,
		Action:       string(e.Action),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Detail:       detail,
		IPAddress:    e.IPAddress,
		ProjectID:    e.ProjectID,
	}
}

func FromDataModel(e *auditDatamodel.Event) *Event {
	var detail map[string]any
	if e.Detail != nil && *e.Detail != "" {
		_ = json.Unmarshal([]byte(*e.Detail), &detail)
	}
	return &Event{
		ID:           e.ID,
		Timestamp:    e.Timestamp,
		ActorKind:    ActorKind(e.ActorKind),
		ActorID:      e.ActorID,
		ActorEmail:   e.ActorEmail,
		ActorLabel:   e.ActorLabel,
		Action:       Action(e.Action),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Detail:       detail,
		IPAddress:    e.IPAddress,
		ProjectID:    e.ProjectID,
	}
}

func FromDataModelSlice(events []*auditDatamodel.Event) []*Event {
	result := make([]*Event, len(events))
	for i, e := range events {
		result[i] = FromDataModel(e)
	}
	return result
}
