package appointments

import (
	"github.com/google/uuid"

	"deskbook/backend/internal/domain"
	"deskbook/backend/internal/store"
)

func validateActor(actor domain.Actor) error {
	if _, ok := domain.ParseRole(string(actor.Role)); !ok {
		return ErrForbidden
	}
	if actor.ID == uuid.Nil {
		return ErrForbidden
	}
	return nil
}

// authorizeBooking checks that the actor may place a booking for clientID on
// staffID's calendar.
func authorizeBooking(actor domain.Actor, clientID, staffID uuid.UUID) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleClient:
		if actor.ID == clientID {
			return nil
		}
	case domain.RoleStaff:
		if actor.ID == staffID {
			return nil
		}
	}
	return ErrForbidden
}

// authorizeAppointment checks that the actor is a party to the appointment.
func authorizeAppointment(actor domain.Actor, appt domain.Appointment) error {
	return authorizeBooking(actor, appt.ClientID, appt.StaffID)
}

// scopeFilter pins a list filter to the actor's own records. Asking for
// somebody else's records explicitly is refused rather than silently
// narrowed.
func scopeFilter(actor domain.Actor, filter store.AppointmentFilter) (store.AppointmentFilter, error) {
	switch actor.Role {
	case domain.RoleAdmin:
		return filter, nil
	case domain.RoleClient:
		if filter.ClientID != uuid.Nil && filter.ClientID != actor.ID {
			return store.AppointmentFilter{}, ErrForbidden
		}
		filter.ClientID = actor.ID
		return filter, nil
	case domain.RoleStaff:
		if filter.StaffID != uuid.Nil && filter.StaffID != actor.ID {
			return store.AppointmentFilter{}, ErrForbidden
		}
		filter.StaffID = actor.ID
		return filter, nil
	default:
		return store.AppointmentFilter{}, ErrForbidden
	}
}
