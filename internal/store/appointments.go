package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"deskbook/backend/internal/domain"
)

type AppointmentFilter struct {
	ClientID uuid.UUID
	StaffID  uuid.UUID
	// Day restricts results to appointments starting inside the range. A zero
	// value disables the filter.
	Day domain.Interval
}

type AppointmentRepository interface {
	// InStaffTransaction runs fn in a transaction that holds the staff
	// member's calendar lock, so concurrent bookings for the same staff member
	// are serialised.
	InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, tx CalendarTx) error) error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx CalendarTx) error) error

	ListActiveAppointments(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]domain.AppointmentDetail, error)
}
