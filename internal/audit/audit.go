// Package audit keeps an append-only trail of staff changes to capacity
// configuration and bookings.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-capacity/internal/scoped"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

// EventType names a staff action.
type EventType string

const (
	EventOverrideUpserted    EventType = "override.upserted"
	EventOverrideDeleted     EventType = "override.deleted"
	EventTemplateCreated     EventType = "template.created"
	EventTemplateUpdated     EventType = "template.updated"
	EventTemplateDeleted     EventType = "template.deleted"
	EventBookingStatusChange EventType = "booking.status_changed"
)

var auditRel = scoped.OwnedRelation("audit_events")

// Event is an immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	TenantID  string          `json:"tenant_id"`
	Actor     string          `json:"actor,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Recorder is implemented by Service. Handlers depend on it so tests can
// record events in memory.
type Recorder interface {
	LogEvent(ctx context.Context, scope tenancy.Scope, event Event) error
}

// Service writes audit events through database/sql.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records event for the scoped tenant.
func (s *Service) LogEvent(ctx context.Context, scope tenancy.Scope, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage("{}")
	}

	query, args, err := scoped.Insert(scope, auditRel,
		[]string{"id", "event_type", "actor", "subject", "details", "created_at"},
		event.ID, string(event.EventType), nullString(event.Actor), nullString(event.Subject), []byte(event.Details), event.CreatedAt,
	).Build()
	if err != nil {
		return fmt.Errorf("audit: build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// Filter narrows QueryEvents.
type Filter struct {
	EventType EventType
	Subject   string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// QueryEvents lists the scoped tenant's events, newest first.
func (s *Service) QueryEvents(ctx context.Context, scope tenancy.Scope, filter Filter) ([]Event, error) {
	q := scoped.Select(scope, auditRel, "id", "event_type", "tenant_id", "actor", "subject", "details", "created_at")
	if filter.EventType != "" {
		q.Where("event_type = ?", string(filter.EventType))
	}
	if filter.Subject != "" {
		q.Where("subject = ?", filter.Subject)
	}
	if !filter.StartTime.IsZero() {
		q.Where("created_at >= ?", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		q.Where("created_at <= ?", filter.EndTime)
	}
	q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q.Limit(filter.Limit)
	}
	query, args, err := q.Build()
	if err != nil {
		return nil, fmt.Errorf("audit: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType string
		var actor, subject sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &eventType, &e.TenantID, &actor, &subject, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.Actor = actor.String
		e.Subject = subject.String
		e.Details = append(json.RawMessage(nil), details...)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Details marshals v for Event.Details, falling back to an empty object.
func Details(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
