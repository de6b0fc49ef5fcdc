package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"deskbook/backend/internal/domain"
	"deskbook/backend/internal/store"
)

const (
	pgExclusionViolation  = "23P01"
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	noOverlapConstraint = "appointments_no_overlap"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)

type calendarTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockStaffCalendar(ctx, tx, staffID); err != nil {
			return err
		}
		return fn(ctx, calendarTx{tx: tx})
	})
}

func (r *AppointmentRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, calendarTx{tx: tx})
	})
}

func lockStaffCalendar(ctx context.Context, tx bun.Tx, staffID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "staff:"+staffID.String()).Exec(ctx)
	return err
}

func (r *AppointmentRepo) ListActiveAppointments(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActiveAppointments(ctx, r.db, staffID, windowStart, windowEnd)
}

func (r *AppointmentRepo) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentDetail, error) {
	return getAppointmentDetail(ctx, r.db, appointmentID)
}

func (r *AppointmentRepo) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentDetail, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Relation("Client").
		Relation("Staff")
	if filter.ClientID != uuid.Nil {
		q = q.Where("a.client_id = ?", filter.ClientID)
	}
	if filter.StaffID != uuid.Nil {
		q = q.Where("a.staff_id = ?", filter.StaffID)
	}
	if !filter.Day.Start.IsZero() {
		q = q.Where("a.start_time >= ?", filter.Day.Start).
			Where("a.start_time < ?", filter.Day.End)
	}
	err := q.OrderExpr("a.start_time ASC, a.id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AppointmentDetail, 0, len(rows))
	for _, a := range rows {
		out = append(out, a.Detail())
	}
	return out, nil
}

func (r calendarTx) ListActiveAppointments(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActiveAppointments(ctx, r.tx, staffID, windowStart, windowEnd)
}

func (r calendarTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:        appt.ID,
		ClientID:  appt.ClientID,
		StaffID:   appt.StaffID,
		StartTime: appt.StartTime,
		EndTime:   appt.EndTime,
		Status:    appt.Status,
		Notes:     appt.Notes,
		CreatedAt: appt.CreatedAt,
		UpdatedAt: appt.UpdatedAt,
	}

	// A replayed id must not abort the transaction, so the primary key clash
	// is absorbed here and resolved by comparing with the stored row.
	res, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, classifyWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		var existing domain.Appointment
		err := r.tx.NewSelect().
			Model(&existing).
			Where("a.id = ?", m.ID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return domain.Appointment{}, err
		}
		if !existing.SameBooking(appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}

	return m, nil
}

func (r calendarTx) GetAppointmentDetail(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentDetail, error) {
	return getAppointmentDetail(ctx, r.tx, appointmentID)
}

func (r calendarTx) GetAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().
		Model(&a).
		Where("a.id = ?", appointmentID).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return a, nil
}

func (r calendarTx) UpdateAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	res, err := r.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return classifyWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func listActiveAppointments(ctx context.Context, db bun.IDB, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("a.staff_id = ?", staffID).
		Where("a.status <> ?", domain.AppointmentStatusCancelled).
		Where("a.start_time < ?", windowEnd).
		Where("a.end_time > ?", windowStart).
		OrderExpr("a.start_time ASC, a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func getAppointmentDetail(ctx context.Context, db bun.IDB, appointmentID uuid.UUID) (domain.AppointmentDetail, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Relation("Client").
		Relation("Staff").
		Where("a.id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.AppointmentDetail{}, notFound(err)
	}
	return a.Detail(), nil
}

// classifyWriteError maps constraint violations raised by Postgres onto the
// store sentinel errors.
func classifyWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		if pgErr.ConstraintName == noOverlapConstraint {
			return store.ErrConflict
		}
	case pgForeignKeyViolation:
		return store.ErrUnknownParty
	case pgUniqueViolation:
		return store.ErrIdempotencyConflict
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
