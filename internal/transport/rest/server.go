package rest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

type Config struct {
	RequestTimeout time.Duration
	AllowOrigins   string
	BodyLimit      int
	RateLimit      RateLimitConfig
}

type Deps struct {
	Appointments AppointmentService
	Log          *slog.Logger
	// Ready reports whether downstream dependencies can serve traffic. A nil
	// func is treated as always ready.
	Ready func(ctx context.Context) error
	// Redis backs the rate limiter when set; otherwise an in-process limiter
	// is used.
	Redis *redis.Client
}

func NewApp(cfg Config, deps Deps) *fiber.App {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")

	app := fiber.New(fiber.Config{
		AppName:               "deskbook",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          fallbackErrorHandler,
		// Request values outlive the handler in exported span attributes.
		Immutable: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Idempotency-Key, " + HeaderActorID + ", " + HeaderActorRole,
	}))
	app.Use(accessLog(log))
	app.Use(tracing(otel.Tracer("deskbook/backend/internal/transport/rest"), otel.GetTextMapPropagator()))
	app.Use(requestTimeout(cfg.RequestTimeout))

	api := app.Group("/api")
	api.Get("/health", healthHandler(deps.Ready))

	h := NewAppointmentsHandler(deps.Appointments, log)
	actor := actorRequired()
	// The limiter keys on the validated actor, so it must run after actorRequired.
	limit := newRateLimiter(cfg.RateLimit, deps.Redis, log)

	appts := api.Group("/appointments", actor, limit)
	appts.Post("", h.Create)
	appts.Get("", h.List)
	appts.Get("/:id", h.Get)
	appts.Patch("/:id", h.UpdateStatus)

	api.Get("/clients/:id/appointments", actor, limit, h.ListForClient)
	api.Get("/staff/:id/availability", actor, limit, h.Availability)

	return app
}

func healthHandler(ready func(ctx context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ready != nil {
			if err := ready(c.UserContext()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

func fallbackErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"
	var fErr *fiber.Error
	if errors.As(err, &fErr) {
		code = fErr.Code
		msg = fErr.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
