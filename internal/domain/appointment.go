package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// ParseAppointmentStatus accepts the stored spellings plus the common
// "cancel"/"canceled" variants sent by callers.
func ParseAppointmentStatus(raw string) (AppointmentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "confirmed", "confirm":
		return AppointmentStatusConfirmed, true
	case "cancelled", "canceled", "cancel":
		return AppointmentStatusCancelled, true
	default:
		return "", false
	}
}

// Active reports whether the appointment still occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s != AppointmentStatusCancelled
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID        uuid.UUID         `bun:"id,pk,type:uuid"`
	ClientID  uuid.UUID         `bun:"client_id,notnull,type:uuid"`
	StaffID   uuid.UUID         `bun:"staff_id,notnull,type:uuid"`
	StartTime time.Time         `bun:"start_time,notnull"`
	EndTime   time.Time         `bun:"end_time,notnull"`
	Status    AppointmentStatus `bun:"status,notnull"`
	Notes     *string           `bun:"notes"`
	CreatedAt time.Time         `bun:"created_at,notnull"`
	UpdatedAt time.Time         `bun:"updated_at,notnull"`

	Client *Client `bun:"rel:belongs-to,join:client_id=id"`
	Staff  *Staff  `bun:"rel:belongs-to,join:staff_id=id"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = AppointmentStatusConfirmed
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// AppointmentDetail is an appointment joined with the display attributes of
// the client and staff member it references.
type AppointmentDetail struct {
	Appointment
	ClientName string
	StaffName  string
	StaffRole  string
}

// Detail flattens loaded relations into an AppointmentDetail. Missing
// relations leave the display fields empty.
func (a Appointment) Detail() AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	if a.Client != nil {
		d.ClientName = a.Client.Name
	}
	if a.Staff != nil {
		d.StaffName = a.Staff.Name
		d.StaffRole = a.Staff.Role
	}
	d.Appointment.Client = nil
	d.Appointment.Staff = nil
	return d
}

// SameBooking reports whether two appointments describe the same booking
// request. It is used to tell an idempotent replay from a reused key.
func (a Appointment) SameBooking(b Appointment) bool {
	return a.ClientID == b.ClientID &&
		a.StaffID == b.StaffID &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime) &&
		stringPtrEqual(a.Notes, b.Notes)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
