package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"deskbook/backend/internal/domain"
)

type activeAppointmentLister interface {
	ListActiveAppointments(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

// HasConflict reports whether any non-cancelled appointment of staffID
// overlaps [start, end). The appointment with id exclude, if any, is ignored.
func HasConflict(ctx context.Context, src activeAppointmentLister, staffID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	candidate := domain.Interval{Start: start, End: end}
	rows, err := src.ListActiveAppointments(ctx, staffID, start, end)
	if err != nil {
		return false, err
	}
	for _, a := range rows {
		if a.ID == exclude && exclude != uuid.Nil {
			continue
		}
		if !a.Status.Active() {
			continue
		}
		if a.Interval().Overlaps(candidate) {
			return true, nil
		}
	}
	return false, nil
}

type AvailabilityInput struct {
	StaffID string
	Start   string
	End     string
}

// CheckAvailability reports whether the slot is free at the time of the
// call. The answer is advisory; Create repeats the check under the staff
// lock.
func (s *Service) CheckAvailability(ctx context.Context, actor domain.Actor, in AvailabilityInput) (available bool, err error) {
	ctx, span := s.startSpan(ctx, "CheckAvailability", attribute.String("staff_id", in.StaffID))
	defer func() { endSpan(span, err) }()

	if err := validateActor(actor); err != nil {
		return false, err
	}
	staffID, err := parseID("staffId", in.StaffID)
	if err != nil {
		return false, err
	}
	start, err := parseTimestamp("start", in.Start)
	if err != nil {
		return false, err
	}
	end, err := parseTimestamp("end", in.End)
	if err != nil {
		return false, err
	}
	if !end.After(start) {
		return false, validationError("end must be after start")
	}

	conflict, err := HasConflict(ctx, s.repo, staffID, start, end, uuid.Nil)
	if err != nil {
		return false, err
	}
	return !conflict, nil
}
