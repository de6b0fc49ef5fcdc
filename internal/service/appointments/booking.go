package appointments

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"deskbook/backend/internal/domain"
	"deskbook/backend/internal/store"
)

const maxIdempotencyKeyLen = 256

type CreateInput struct {
	ClientID       string
	StaffID        string
	Start          string
	End            string
	Notes          string
	IdempotencyKey string
}

type bookingRequest struct {
	appt domain.Appointment
	key  string
}

func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (out domain.AppointmentDetail, err error) {
	ctx, span := s.startSpan(ctx, "Create",
		attribute.String("staff_id", in.StaffID),
		attribute.String("client_id", in.ClientID),
	)
	defer func() { endSpan(span, err) }()

	if err := validateActor(actor); err != nil {
		return domain.AppointmentDetail{}, err
	}
	req, err := parseBooking(in)
	if err != nil {
		return domain.AppointmentDetail{}, err
	}
	appt := req.appt
	if err := authorizeBooking(actor, appt.ClientID, appt.StaffID); err != nil {
		return domain.AppointmentDetail{}, err
	}
	if req.key != "" {
		appt.ID = idempotentAppointmentID(actor, req.key)
	}

	err = s.repo.InStaffTransaction(ctx, appt.StaffID, func(ctx context.Context, tx store.CalendarTx) error {
		if req.key != "" {
			existing, err := tx.GetAppointmentDetail(ctx, appt.ID)
			switch {
			case err == nil:
				if !existing.SameBooking(appt) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		conflict, err := HasConflict(ctx, tx, appt.StaffID, appt.StartTime, appt.EndTime, uuid.Nil)
		if err != nil {
			return err
		}
		if conflict {
			return store.ErrConflict
		}

		created, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out, err = tx.GetAppointmentDetail(ctx, created.ID)
		return err
	})
	if err != nil {
		return domain.AppointmentDetail{}, err
	}
	return out, nil
}

func parseBooking(in CreateInput) (bookingRequest, error) {
	if strings.TrimSpace(in.ClientID) == "" ||
		strings.TrimSpace(in.StaffID) == "" ||
		strings.TrimSpace(in.Start) == "" ||
		strings.TrimSpace(in.End) == "" {
		return bookingRequest{}, validationError("clientId, staffId, start and end are required")
	}

	clientID, err := parseID("clientId", in.ClientID)
	if err != nil {
		return bookingRequest{}, err
	}
	staffID, err := parseID("staffId", in.StaffID)
	if err != nil {
		return bookingRequest{}, err
	}
	start, err := parseTimestamp("start", in.Start)
	if err != nil {
		return bookingRequest{}, err
	}
	end, err := parseTimestamp("end", in.End)
	if err != nil {
		return bookingRequest{}, err
	}
	if !end.After(start) {
		return bookingRequest{}, validationError("end must be after start")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return bookingRequest{}, validationError("idempotency key too long")
	}

	return bookingRequest{
		appt: domain.Appointment{
			ClientID:  clientID,
			StaffID:   staffID,
			StartTime: start,
			EndTime:   end,
			Status:    domain.AppointmentStatusConfirmed,
			Notes:     normalizeNotes(in.Notes),
		},
		key: key,
	}, nil
}

func idempotentAppointmentID(actor domain.Actor, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("deskbook:create_appointment:"+string(actor.Role)+":"+actor.ID.String()+":"+key))
}
