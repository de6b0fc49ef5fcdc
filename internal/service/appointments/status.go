package appointments

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"deskbook/backend/internal/domain"
	"deskbook/backend/internal/store"
)

// SetStatus moves an appointment to the requested status. Cancelling is
// one-way; repeating the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, actor domain.Actor, appointmentID, status string) (err error) {
	ctx, span := s.startSpan(ctx, "SetStatus",
		attribute.String("appointment_id", appointmentID),
		attribute.String("status", status),
	)
	defer func() { endSpan(span, err) }()

	if err := validateActor(actor); err != nil {
		return err
	}
	id, err := parseID("appointment id", appointmentID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return validationError("status is required")
	}
	next, ok := domain.ParseAppointmentStatus(status)
	if !ok {
		return validationError("invalid status: must be confirmed or cancelled")
	}

	return s.repo.InTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeAppointment(actor, current); err != nil {
			return err
		}
		switch {
		case current.Status == next:
			return nil
		case current.Status == domain.AppointmentStatusCancelled:
			return ErrInvalidTransition
		}
		return tx.UpdateAppointmentStatus(ctx, id, next)
	})
}
