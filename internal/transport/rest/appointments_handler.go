package rest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"deskbook/backend/internal/domain"
	"deskbook/backend/internal/service/appointments"
	"deskbook/backend/internal/store"
)

type AppointmentService interface {
	Create(ctx context.Context, actor domain.Actor, in appointments.CreateInput) (domain.AppointmentDetail, error)
	List(ctx context.Context, actor domain.Actor, in appointments.ListInput) ([]domain.AppointmentDetail, error)
	Get(ctx context.Context, actor domain.Actor, appointmentID string) (domain.AppointmentDetail, error)
	SetStatus(ctx context.Context, actor domain.Actor, appointmentID, status string) error
	CheckAvailability(ctx context.Context, actor domain.Actor, in appointments.AvailabilityInput) (bool, error)
}

type AppointmentsHandler struct {
	service AppointmentService
	log     *slog.Logger
}

func NewAppointmentsHandler(service AppointmentService, log *slog.Logger) *AppointmentsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsHandler{service: service, log: log}
}

type createAppointmentRequest struct {
	ClientID string `json:"clientId"`
	StaffID  string `json:"staffId"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Notes    string `json:"notes"`
}

type updateAppointmentRequest struct {
	Status string `json:"status"`
}

type appointmentResponse struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	StaffID    string    `json:"staff_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
	Notes      *string   `json:"notes"`
	ClientName string    `json:"client_name"`
	StaffName  string    `json:"staff_name"`
	StaffRole  string    `json:"staff_role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAppointmentResponse(d domain.AppointmentDetail) appointmentResponse {
	return appointmentResponse{
		ID:         d.ID.String(),
		ClientID:   d.ClientID.String(),
		StaffID:    d.StaffID.String(),
		StartTime:  d.StartTime.UTC(),
		EndTime:    d.EndTime.UTC(),
		Status:     string(d.Status),
		Notes:      d.Notes,
		ClientName: d.ClientName,
		StaffName:  d.StaffName,
		StaffRole:  d.StaffRole,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

func toAppointmentResponses(rows []domain.AppointmentDetail) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, toAppointmentResponse(d))
	}
	return out
}

func (h *AppointmentsHandler) Create(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthenticated"})
	}

	var req createAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "code": "validation"})
	}

	detail, err := h.service.Create(c.UserContext(), actor, appointments.CreateInput{
		ClientID:       req.ClientID,
		StaffID:        req.StaffID,
		Start:          req.Start,
		End:            req.End,
		Notes:          req.Notes,
		IdempotencyKey: c.Get("Idempotency-Key"),
	})
	if err != nil {
		return h.writeError(c, "create", err)
	}

	return c.Status(fiber.StatusCreated).JSON(toAppointmentResponse(detail))
}

func (h *AppointmentsHandler) List(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthenticated"})
	}

	rows, err := h.service.List(c.UserContext(), actor, appointments.ListInput{
		ClientID: c.Query("clientId"),
		StaffID:  c.Query("staffId"),
		Date:     c.Query("date"),
	})
	if err != nil {
		return h.writeError(c, "list", err)
	}
	return c.JSON(toAppointmentResponses(rows))
}

func (h *AppointmentsHandler) ListForClient(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthenticated"})
	}

	rows, err := h.service.List(c.UserContext(), actor, appointments.ListInput{
		ClientID: c.Params("id"),
		Date:     c.Query("date"),
	})
	if err != nil {
		return h.writeError(c, "list_for_client", err)
	}
	return c.JSON(toAppointmentResponses(rows))
}

func (h *AppointmentsHandler) Get(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthenticated"})
	}

	detail, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return h.writeError(c, "get", err)
	}
	return c.JSON(toAppointmentResponse(detail))
}

func (h *AppointmentsHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthenticated"})
	}

	var req updateAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "code": "validation"})
	}

	if err := h.service.SetStatus(c.UserContext(), actor, c.Params("id"), req.Status); err != nil {
		return h.writeError(c, "update_status", err)
	}
	return c.JSON(fiber.Map{"message": "Appointment updated"})
}

func (h *AppointmentsHandler) Availability(c *fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthenticated"})
	}

	available, err := h.service.CheckAvailability(c.UserContext(), actor, appointments.AvailabilityInput{
		StaffID: c.Params("id"),
		Start:   c.Query("start"),
		End:     c.Query("end"),
	})
	if err != nil {
		return h.writeError(c, "availability", err)
	}
	return c.JSON(fiber.Map{"available": available})
}

// writeError is the single place service errors become HTTP responses.
func (h *AppointmentsHandler) writeError(c *fiber.Ctx, op string, err error) error {
	log := h.log.With("op", op, "method", c.Method(), "path", c.Path())

	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("validation failed", "err", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Error(), "code": "validation"})
	case errors.Is(err, store.ErrUnknownParty):
		log.Warn("validation failed", "err", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown client or staff member", "code": "validation"})
	case errors.Is(err, store.ErrConflict):
		log.Info("booking conflict")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Time conflict with another appointment", "code": "conflict"})
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency key reused")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Idempotency key already used for a different appointment", "code": "idempotency_conflict"})
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Appointment not found"})
	case errors.Is(err, appointments.ErrForbidden):
		log.Info("forbidden")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, appointments.ErrInvalidTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Cancelled appointments cannot be reinstated"})
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("request timed out", "err", err)
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "request timed out"})
	default:
		log.Error("request failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
