package appointments

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"deskbook/backend/internal/domain"
	"deskbook/backend/internal/store"
)

// memCalendar is an in-memory AppointmentRepository. Staff transactions are
// serialised with one mutex per staff member, mirroring the advisory lock
// taken by the Postgres repository.
type memCalendar struct {
	mu         sync.Mutex
	staffLocks map[uuid.UUID]*sync.Mutex
	rowLock    sync.Mutex
	rows       map[uuid.UUID]domain.Appointment
	clients    map[uuid.UUID]domain.Client
	staff      map[uuid.UUID]domain.Staff
	writes     int
}

func newMemCalendar() *memCalendar {
	return &memCalendar{
		staffLocks: make(map[uuid.UUID]*sync.Mutex),
		rows:       make(map[uuid.UUID]domain.Appointment),
		clients:    make(map[uuid.UUID]domain.Client),
		staff:      make(map[uuid.UUID]domain.Staff),
	}
}

func (m *memCalendar) addClient(id uuid.UUID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[id] = domain.Client{ID: id, Name: name}
}

func (m *memCalendar) addStaff(id uuid.UUID, name, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[id] = domain.Staff{ID: id, Name: name, Role: role}
}

func (m *memCalendar) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memCalendar) snapshot() []domain.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Appointment, 0, len(m.rows))
	for _, a := range m.rows {
		out = append(out, a)
	}
	sortAppointments(out)
	return out
}

func (m *memCalendar) staffLock(staffID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.staffLocks[staffID]
	if !ok {
		l = &sync.Mutex{}
		m.staffLocks[staffID] = l
	}
	return l
}

func (m *memCalendar) InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	l := m.staffLock(staffID)
	l.Lock()
	defer l.Unlock()
	return fn(ctx, memTx{m: m})
}

func (m *memCalendar) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	m.rowLock.Lock()
	defer m.rowLock.Unlock()
	return fn(ctx, memTx{m: m})
}

func (m *memCalendar) ListActiveAppointments(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return memTx{m: m}.ListActiveAppointments(ctx, staffID, windowStart, windowEnd)
}

func (m *memCalendar) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentDetail, error) {
	return memTx{m: m}.GetAppointmentDetail(ctx, appointmentID)
}

func (m *memCalendar) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []domain.Appointment
	for _, a := range m.rows {
		if filter.ClientID != uuid.Nil && a.ClientID != filter.ClientID {
			continue
		}
		if filter.StaffID != uuid.Nil && a.StaffID != filter.StaffID {
			continue
		}
		if !filter.Day.Start.IsZero() && (a.StartTime.Before(filter.Day.Start) || !a.StartTime.Before(filter.Day.End)) {
			continue
		}
		rows = append(rows, a)
	}
	sortAppointments(rows)

	out := make([]domain.AppointmentDetail, 0, len(rows))
	for _, a := range rows {
		out = append(out, m.detailLocked(a))
	}
	return out, nil
}

func (m *memCalendar) detailLocked(a domain.Appointment) domain.AppointmentDetail {
	if c, ok := m.clients[a.ClientID]; ok {
		a.Client = &c
	}
	if s, ok := m.staff[a.StaffID]; ok {
		a.Staff = &s
	}
	return a.Detail()
}

func sortAppointments(rows []domain.Appointment) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].StartTime.Equal(rows[j].StartTime) {
			return rows[i].StartTime.Before(rows[j].StartTime)
		}
		return bytes.Compare(rows[i].ID[:], rows[j].ID[:]) < 0
	})
}

type memTx struct {
	m *memCalendar
}

func (t memTx) ListActiveAppointments(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	var out []domain.Appointment
	for _, a := range t.m.rows {
		if a.StaffID != staffID || !a.Status.Active() {
			continue
		}
		if a.StartTime.Before(windowEnd) && a.EndTime.After(windowStart) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (t memTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if _, ok := t.m.clients[appt.ClientID]; !ok {
		return domain.Appointment{}, store.ErrUnknownParty
	}
	if _, ok := t.m.staff[appt.StaffID]; !ok {
		return domain.Appointment{}, store.ErrUnknownParty
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.Must(uuid.NewV7())
	}
	if existing, ok := t.m.rows[appt.ID]; ok {
		if !existing.SameBooking(appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}
	if appt.Status == "" {
		appt.Status = domain.AppointmentStatusConfirmed
	}
	// timestamptz keeps microseconds.
	appt.StartTime = appt.StartTime.Truncate(time.Microsecond)
	appt.EndTime = appt.EndTime.Truncate(time.Microsecond)
	if !appt.EndTime.After(appt.StartTime) {
		return domain.Appointment{}, errors.New("appointments_time_order check violated")
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.m.rows[appt.ID] = appt
	t.m.writes++
	return appt, nil
}

func (t memTx) GetAppointmentDetail(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentDetail, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	a, ok := t.m.rows[appointmentID]
	if !ok {
		return domain.AppointmentDetail{}, store.ErrNotFound
	}
	return t.m.detailLocked(a), nil
}

func (t memTx) GetAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	a, ok := t.m.rows[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t memTx) UpdateAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	a, ok := t.m.rows[appointmentID]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	t.m.rows[appointmentID] = a
	t.m.writes++
	return nil
}
