package appointments

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"deskbook/backend/internal/domain"
	"deskbook/backend/internal/store"
)

type ListInput struct {
	ClientID string
	StaffID  string
	// Date is YYYY-MM-DD and matches the UTC calendar day of start_time.
	Date string
}

func (s *Service) List(ctx context.Context, actor domain.Actor, in ListInput) (rows []domain.AppointmentDetail, err error) {
	ctx, span := s.startSpan(ctx, "List",
		attribute.String("client_id", in.ClientID),
		attribute.String("staff_id", in.StaffID),
		attribute.String("date", in.Date),
	)
	defer func() { endSpan(span, err) }()

	if err := validateActor(actor); err != nil {
		return nil, err
	}

	var filter store.AppointmentFilter
	if filter.ClientID, err = parseOptionalID("clientId", in.ClientID); err != nil {
		return nil, err
	}
	if filter.StaffID, err = parseOptionalID("staffId", in.StaffID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Date) != "" {
		day, err := parseDate("date", in.Date)
		if err != nil {
			return nil, err
		}
		filter.Day = domain.DayBounds(day)
	}

	filter, err = scopeFilter(actor, filter)
	if err != nil {
		return nil, err
	}

	rows, err = s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.AppointmentDetail{}
	}
	span.SetAttributes(attribute.Int("result_count", len(rows)))
	return rows, nil
}

func (s *Service) Get(ctx context.Context, actor domain.Actor, appointmentID string) (out domain.AppointmentDetail, err error) {
	ctx, span := s.startSpan(ctx, "Get", attribute.String("appointment_id", appointmentID))
	defer func() { endSpan(span, err) }()

	if err := validateActor(actor); err != nil {
		return domain.AppointmentDetail{}, err
	}
	id, err := parseID("appointment id", appointmentID)
	if err != nil {
		return domain.AppointmentDetail{}, err
	}

	out, err = s.repo.GetAppointment(ctx, id)
	if err != nil {
		return domain.AppointmentDetail{}, err
	}
	// Records the actor may not see are reported as missing.
	if err := authorizeAppointment(actor, out.Appointment); err != nil {
		return domain.AppointmentDetail{}, store.ErrNotFound
	}
	return out, nil
}
