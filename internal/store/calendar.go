package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"deskbook/backend/internal/domain"
)

// CalendarTx is the set of operations available inside a calendar
// transaction. Implementations hold the transaction open until the callback
// passed to InStaffTransaction or InTransaction returns.
type CalendarTx interface {
	// ListActiveAppointments returns non-cancelled appointments of the staff
	// member whose [start_time, end_time) overlaps the window.
	ListActiveAppointments(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetAppointmentDetail(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentDetail, error)
	// GetAppointmentForUpdate row-locks the appointment for the rest of the
	// transaction.
	GetAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus) error
}
