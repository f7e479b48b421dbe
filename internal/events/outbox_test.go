package events

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox (tenant_id, id, type, payload) VALUES ($1, $2, $3, $4)")).
		WithArgs("clinic-1", pgxmock.AnyArg(), "event.v1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), tenancy.MustScope("clinic-1"), "event.v1", map[string]string{"foo": "bar"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "tenant_id", "type", "payload", "created_at"}).AddRow(id, "clinic-1", "event.v1", []byte("{\"foo\":\"bar\"}"), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].TenantID != "clinic-1" {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOutboxInsertRequiresScope(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	if _, err := NewOutboxStore(mock).Insert(context.Background(), tenancy.Scope{}, "event.v1", nil); err == nil {
		t.Fatal("expected error without tenant scope")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query issued: %v", err)
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	entries []OutboxEntry
	fail    bool
}

func (h *recordingHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return context.DeadlineExceeded
	}
	h.entries = append(h.entries, entry)
	return nil
}

func TestDelivererDrainsMemoryOutbox(t *testing.T) {
	outbox := NewMemoryOutbox()
	ctx := context.Background()
	scope := tenancy.MustScope("clinic-1")
	for i := 0; i < 3; i++ {
		if _, err := outbox.Insert(ctx, scope, TypeBookingAdmitted, BookingAdmittedV1{BookingID: uuid.NewString()}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	handler := &recordingHandler{}
	d := NewDeliverer(outbox, handler, logging.Default()).WithBatchSize(2)
	d.drain(ctx)
	d.drain(ctx)

	if len(handler.entries) != 3 {
		t.Fatalf("expected 3 delivered entries, got %d", len(handler.entries))
	}
	pending, _ := outbox.FetchPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d", len(pending))
	}

	var payload BookingAdmittedV1
	if err := json.Unmarshal(handler.entries[0].Payload, &payload); err != nil || payload.BookingID == "" {
		t.Fatalf("unexpected payload %s err=%v", handler.entries[0].Payload, err)
	}
}

func TestDelivererKeepsFailedEntries(t *testing.T) {
	outbox := NewMemoryOutbox()
	ctx := context.Background()
	if _, err := outbox.Insert(ctx, tenancy.MustScope("clinic-1"), TypeBookingAdmitted, map[string]any{}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	observer := &countingObserver{}
	d := NewDeliverer(outbox, &recordingHandler{fail: true}, nil).WithObserver(observer)
	d.drain(ctx)

	pending, _ := outbox.FetchPending(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("expected entry to stay pending, got %d", len(pending))
	}
	if observer.failed != 1 || observer.ok != 0 {
		t.Fatalf("expected one failed delivery observed, got ok=%d failed=%d", observer.ok, observer.failed)
	}
}

type countingObserver struct {
	ok, failed int
}

func (o *countingObserver) ObserveDelivery(_ string, ok bool) {
	if ok {
		o.ok++
		return
	}
	o.failed++
}

func TestDelivererStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d := NewDeliverer(NewMemoryOutbox(), &recordingHandler{}, nil).WithInterval(5 * time.Millisecond)
	go func() {
		d.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliverer did not stop")
	}
}
