package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

// MemoryRecorder keeps events in process for memory-backed deployments.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) LogEvent(_ context.Context, scope tenancy.Scope, event Event) error {
	if err := scope.Check(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.TenantID = scope.TenantID()
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// Events returns the scoped tenant's events in insertion order.
func (m *MemoryRecorder) Events(scope tenancy.Scope) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if scope.Owns(e.TenantID) {
			out = append(out, e)
		}
	}
	return out
}
