package bookings

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-capacity/internal/events"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

var activeArg = []string{"requested", "reserved", "confirmed"}

func newMockRepo(t *testing.T, withOutbox bool) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	var outbox *events.OutboxStore
	if withOutbox {
		outbox = events.NewOutboxStore(mock)
	}
	repo := NewPostgresRepository(mock, outbox)
	fixed := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	return repo, mock
}

func expectLockAndCount(mock pgxmock.PgxPoolIface, rows *pgxmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtextextended($1, 0))")).
		WithArgs("admission:clinic-a:2025-01-06").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT time, tier, seat FROM bookings WHERE tenant_id = $1 AND (date = $2::date) AND (status = ANY($3))")).
		WithArgs("clinic-a", "2025-01-06", activeArg).
		WillReturnRows(rows)
}

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresAdmitInsertsUnderLock(t *testing.T) {
	repo, mock := newMockRepo(t, true)

	expectLockAndCount(mock, pgxmock.NewRows([]string{"time", "tier", "seat"}).
		AddRow("10:00", "basic", 0).
		AddRow("10:00", "basic", 2).
		AddRow("11:00", "tierA", 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings (tenant_id, id, package_id, tier, date, time, seat, status")).
		WithArgs("clinic-a", pgxmock.AnyArg(), "pkg-1", "basic", "2025-01-06", "10:00", 1, "requested",
			"Ada", "+15550100", "", "", pgxmock.AnyArg(), "2025-01-06", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox (tenant_id, id, type, payload)")).
		WithArgs("clinic-a", pgxmock.AnyArg(), events.TypeBookingAdmitted, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	got, err := repo.Admit(context.Background(), tenancy.MustScope("clinic-a"),
		request("2025-01-06", "10:00", schedule.TierBasic), Limits{Slot: 3, Day: 10, Tier: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Seat, "lowest free ordinal is reused")
	assert.Equal(t, "clinic-a", got.TenantID)
	assert.NotEmpty(t, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdmitFullRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t, false)

	expectLockAndCount(mock, pgxmock.NewRows([]string{"time", "tier", "seat"}).
		AddRow("10:00", "basic", 0))
	mock.ExpectRollback()

	_, err := repo.Admit(context.Background(), tenancy.MustScope("clinic-a"),
		request("2025-01-06", "10:00", schedule.TierBasic), Limits{Slot: 1, Day: 10, Tier: 10})
	assert.ErrorIs(t, err, ErrFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdmitTierLimit(t *testing.T) {
	repo, mock := newMockRepo(t, false)

	expectLockAndCount(mock, pgxmock.NewRows([]string{"time", "tier", "seat"}).
		AddRow("09:00", "tierA", 0).
		AddRow("09:30", "tierA", 0))
	mock.ExpectRollback()

	_, err := repo.Admit(context.Background(), tenancy.MustScope("clinic-a"),
		request("2025-01-06", "14:00", schedule.TierA), Limits{Slot: 5, Day: 10, Tier: 2})
	assert.ErrorIs(t, err, ErrFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdmitUniqueViolationIsFull(t *testing.T) {
	repo, mock := newMockRepo(t, false)

	expectLockAndCount(mock, pgxmock.NewRows([]string{"time", "tier", "seat"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WithArgs(anyArgs(16)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "bookings_active_seat_idx"})
	mock.ExpectRollback()

	_, err := repo.Admit(context.Background(), tenancy.MustScope("clinic-a"),
		request("2025-01-06", "10:00", schedule.TierBasic), Limits{Slot: 1, Day: 10, Tier: 10})
	assert.ErrorIs(t, err, ErrFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdmitOutboxFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t, true)

	expectLockAndCount(mock, pgxmock.NewRows([]string{"time", "tier", "seat"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WithArgs(anyArgs(16)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox")).
		WithArgs("clinic-a", pgxmock.AnyArg(), events.TypeBookingAdmitted, pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Admit(context.Background(), tenancy.MustScope("clinic-a"),
		request("2025-01-06", "10:00", schedule.TierBasic), Limits{Slot: 1, Day: 10, Tier: 10})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdmitRequiresScope(t *testing.T) {
	repo, mock := newMockRepo(t, false)
	_, err := repo.Admit(context.Background(), tenancy.Scope{}, request("2025-01-06", "10:00", schedule.TierBasic), Limits{Slot: 1, Day: 1, Tier: 1})
	assert.ErrorIs(t, err, tenancy.ErrNoTenant)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountActiveGroupsByDateAndTier(t *testing.T) {
	repo, mock := newMockRepo(t, false)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT to_char(date, 'YYYY-MM-DD'), tier, COUNT(*) FROM bookings WHERE tenant_id = $1 AND (date BETWEEN $2::date AND $3::date) AND (status = ANY($4)) GROUP BY date, tier ORDER BY date, tier")).
		WithArgs("clinic-a", "2025-01-01", "2025-01-31", activeArg).
		WillReturnRows(pgxmock.NewRows([]string{"date", "tier", "count"}).
			AddRow("2025-01-06", "basic", 3).
			AddRow("2025-01-06", "tierA", 1))

	counts, err := repo.CountActive(context.Background(), tenancy.MustScope("clinic-a"), "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, []DayCount{
		{Date: "2025-01-06", Tier: schedule.TierBasic, Count: 3},
		{Date: "2025-01-06", Tier: schedule.TierA, Count: 1},
	}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func bookingRow(tenantID, status string) *pgxmock.Rows {
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{"id", "tenant_id", "package_id", "tier", "date", "time", "seat", "status",
		"name", "phone", "email", "note", "metadata", "effective_date", "created_at", "updated_at"}).
		AddRow("b1", tenantID, "pkg-1", "basic", "2025-01-06", "10:00", 0, status,
			"Ada", "+15550100", "", "", []byte(`{"source":"web"}`), "2025-01-06", now, now)
}

func TestPostgresGetHidesForeignBookings(t *testing.T) {
	repo, mock := newMockRepo(t, false)

	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE (id::text = $1)")).
		WithArgs("b1").
		WillReturnRows(bookingRow("clinic-b", "requested"))

	_, err := repo.Get(context.Background(), tenancy.MustScope("clinic-a"), "b1")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetOwnBooking(t *testing.T) {
	repo, mock := newMockRepo(t, false)

	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE (id::text = $1)")).
		WithArgs("b1").
		WillReturnRows(bookingRow("clinic-a", "confirmed"))

	b, err := repo.Get(context.Background(), tenancy.MustScope("clinic-a"), "b1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, "web", b.Metadata["source"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissing(t *testing.T) {
	repo, mock := newMockRepo(t, false)

	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE (id::text = $1)")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), tenancy.MustScope("clinic-a"), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatusWritesOutbox(t *testing.T) {
	repo, mock := newMockRepo(t, true)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		"UPDATE bookings SET status = $1, metadata = $2, effective_date = $3::date, updated_at = $4 WHERE tenant_id = $5 AND (id::text = $6) AND (status = $7) RETURNING")).
		WithArgs("confirmed", pgxmock.AnyArg(), "2025-01-02", pgxmock.AnyArg(), "clinic-a", "b1", "requested").
		WillReturnRows(bookingRow("clinic-a", "confirmed"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox")).
		WithArgs("clinic-a", pgxmock.AnyArg(), events.TypeBookingStatusChanged, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	next := request("2025-01-06", "10:00", schedule.TierBasic)
	next.ID = "b1"
	next.Status = StatusConfirmed
	next.EffectiveDate = "2025-01-02"
	updated, err := repo.UpdateStatus(context.Background(), tenancy.MustScope("clinic-a"), next, StatusRequested)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatusStale(t *testing.T) {
	repo, mock := newMockRepo(t, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE bookings SET status = $1")).
		WithArgs(anyArgs(7)...).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	next := request("2025-01-06", "10:00", schedule.TierBasic)
	next.ID = "b1"
	next.Status = StatusCompleted
	_, err := repo.UpdateStatus(context.Background(), tenancy.MustScope("clinic-a"), next, StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}
