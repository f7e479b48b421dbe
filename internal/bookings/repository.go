package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/medspa-capacity/internal/events"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/scoped"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

var bookingsRel = scoped.OwnedRelation("bookings")

var bookingColumns = []string{
	"id::text", "tenant_id", "package_id", "tier", "to_char(date, 'YYYY-MM-DD')", "time", "seat", "status",
	"name", "phone", "email", "note", "metadata", "to_char(effective_date, 'YYYY-MM-DD')", "created_at", "updated_at",
}

// uniqueViolation is the Postgres SQLSTATE raised by the active-seat index.
const uniqueViolation = "23505"

// PostgresRepository is the pgx-backed ledger.
type PostgresRepository struct {
	pool   scoped.Pool
	outbox *events.OutboxStore
	now    func() time.Time
}

// NewPostgresRepository creates a repository. outbox may be nil.
func NewPostgresRepository(pool scoped.Pool, outbox *events.OutboxStore) *PostgresRepository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresRepository{pool: pool, outbox: outbox, now: func() time.Time { return time.Now().UTC() }}
}

// Admit serializes admissions per tenant and date with a transaction-scoped
// advisory lock, counts active bookings under that lock and inserts only
// when every limit has room. The partial unique index on
// (tenant_id, date, time, seat) for active rows backs the lock up: a
// duplicate seat fails the insert and is reported as ErrFull. Any failure
// rolls the whole transaction back, so no partial booking is left behind.
func (r *PostgresRepository) Admit(ctx context.Context, scope tenancy.Scope, b Booking, limits Limits) (*Booking, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin admit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, admissionLockKey(scope, b.Date)); err != nil {
		return nil, fmt.Errorf("bookings: admission lock: %w", err)
	}

	rows, err := scoped.Query(ctx, tx, scoped.Select(scope, bookingsRel, "time", "tier", "seat").
		Where("date = ?::date", b.Date).
		Where("status = ANY(?)", activeStatusStrings()))
	if err != nil {
		return nil, fmt.Errorf("bookings: count active: %w", err)
	}
	var slot, day, tier int
	var seats []int
	for rows.Next() {
		var clock, rowTier string
		var seat int
		if err := rows.Scan(&clock, &rowTier, &seat); err != nil {
			rows.Close()
			return nil, fmt.Errorf("bookings: scan active: %w", err)
		}
		day++
		if clock == b.Time {
			slot++
			seats = append(seats, seat)
		}
		if tierOf(rowTier) == b.Tier {
			tier++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: count active: %w", err)
	}
	if exceeds(limits, slot, day, tier) {
		return nil, ErrFull
	}

	now := r.now()
	b.ID = uuid.NewString()
	b.TenantID = scope.TenantID()
	b.Seat = lowestFreeSeat(seats)
	b.CreatedAt = now
	b.UpdatedAt = now
	meta, err := marshalMetadata(b.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = scoped.Exec(ctx, tx, scoped.Insert(scope, bookingsRel,
		[]string{"id", "package_id", "tier", "date", "time", "seat", "status", "name", "phone", "email", "note", "metadata", "effective_date", "created_at", "updated_at"},
		b.ID, b.PackageID, string(b.Tier), b.Date, b.Time, b.Seat, string(b.Status), b.Name, b.Phone, b.Email, b.Note, meta, b.EffectiveDate, b.CreatedAt, b.UpdatedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrFull
		}
		return nil, fmt.Errorf("bookings: insert: %w", err)
	}

	if r.outbox != nil {
		if _, err := r.outbox.InsertWith(ctx, tx, scope, events.TypeBookingAdmitted, admittedEvent(&b)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit admit: %w", err)
	}
	return &b, nil
}

// admissionLockKey names the advisory lock shared by every admission for
// one tenant and date.
func admissionLockKey(scope tenancy.Scope, date string) string {
	return "admission:" + scope.TenantID() + ":" + date
}

// CountActive returns active booking counts grouped by date and tier in one query.
func (r *PostgresRepository) CountActive(ctx context.Context, scope tenancy.Scope, from, to string) ([]DayCount, error) {
	rows, err := scoped.Query(ctx, r.pool, scoped.Select(scope, bookingsRel, "to_char(date, 'YYYY-MM-DD')", "tier", "COUNT(*)").
		Where("date BETWEEN ?::date AND ?::date", from, to).
		Where("status = ANY(?)", activeStatusStrings()).
		GroupBy("date", "tier").
		OrderBy("date, tier"))
	if err != nil {
		return nil, fmt.Errorf("bookings: count active: %w", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var c DayCount
		var tier string
		if err := rows.Scan(&c.Date, &tier, &c.Count); err != nil {
			return nil, fmt.Errorf("bookings: scan count: %w", err)
		}
		c.Tier = tierOf(tier)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get looks the booking up by primary key only, then re-verifies that it
// belongs to scope. A foreign booking is indistinguishable from a missing one.
func (r *PostgresRepository) Get(ctx context.Context, scope tenancy.Scope, id string) (*Booking, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	sql, args, err := scoped.Select(tenancy.Scope{}, scoped.SharedRelation("bookings"), bookingColumns...).
		Where("id::text = ?", id).
		Build()
	if err != nil {
		return nil, err
	}
	b, err := scanBooking(r.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	if !scope.Owns(b.TenantID) {
		return nil, ErrNotFound
	}
	return b, nil
}

func (r *PostgresRepository) List(ctx context.Context, scope tenancy.Scope, from, to string) ([]Booking, error) {
	rows, err := scoped.Query(ctx, r.pool, scoped.Select(scope, bookingsRel, bookingColumns...).
		Where("date BETWEEN ?::date AND ?::date", from, to).
		OrderBy("date, time, seat"))
	if err != nil {
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateStatus applies the change only if the row still has status from,
// and records the change in the outbox within the same transaction.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, scope tenancy.Scope, b Booking, from Status) (*Booking, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	meta, err := marshalMetadata(b.Metadata)
	if err != nil {
		return nil, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := scanBooking(scoped.QueryRow(ctx, tx, scoped.Update(scope, bookingsRel).
		Set("status = ?", string(b.Status)).
		Set("metadata = ?", meta).
		Set("effective_date = ?::date", b.EffectiveDate).
		Set("updated_at = ?", r.now()).
		Where("id::text = ?", b.ID).
		Where("status = ?", string(from)).
		Returning(bookingColumns...)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: update status: %w", err)
	}

	if r.outbox != nil {
		if _, err := r.outbox.InsertWith(ctx, tx, scope, events.TypeBookingStatusChanged, statusChangedEvent(updated, from)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit update: %w", err)
	}
	return updated, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var tier, status string
	var meta []byte
	if err := row.Scan(&b.ID, &b.TenantID, &b.PackageID, &tier, &b.Date, &b.Time, &b.Seat, &status,
		&b.Name, &b.Phone, &b.Email, &b.Note, &meta, &b.EffectiveDate, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Tier = tierOf(tier)
	b.Status = Status(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &b.Metadata); err != nil {
			return nil, fmt.Errorf("bookings: decode metadata: %w", err)
		}
	}
	return &b, nil
}

func marshalMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("bookings: encode metadata: %w", err)
	}
	return data, nil
}

func tierOf(s string) schedule.Tier {
	if s == "" {
		return schedule.TierBasic
	}
	return schedule.Tier(s)
}
