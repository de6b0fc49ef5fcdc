package appointments

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deskbook/backend/internal/store"
)

const tracerName = "deskbook/backend/internal/service/appointments"

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Service struct {
	repo   store.AppointmentRepository
	tracer trace.Tracer
}

func NewService(repo store.AppointmentRepository) *Service {
	return &Service{
		repo:   repo,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "appointments."+name, trace.WithAttributes(attrs...))
}

// endSpan marks the span failed only for errors that are not expected
// business outcomes.
func endSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrUnknownParty),
		errors.Is(err, store.ErrIdempotencyConflict),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidTransition):
		span.SetAttributes(attribute.String("outcome", err.Error()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
