package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"deskbook/backend/internal/config"
	"deskbook/backend/internal/service/appointments"
	"deskbook/backend/internal/store/postgres"
	"deskbook/backend/internal/telemetry"
	grpcTransport "deskbook/backend/internal/transport/grpc"
	"deskbook/backend/internal/transport/rest"
)

const serviceName = "deskbook-server"

func main() {
	log := newLogger("info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr()),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("telemetry setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("telemetry shutdown failed", slog.Any("err", err))
		}
	}()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		Log:             log,
		SlowQuery:       cfg.DBSlowQuery,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	if cfg.DBMigrateOnStart {
		migrator, err := postgres.NewMigrator(db, log)
		if err != nil {
			log.Error("migrator setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		if err := migrator.Up(ctx); err != nil {
			log.Error("migrations failed", slog.Any("err", err))
			os.Exit(1)
		}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("invalid redis url", slog.Any("err", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		log.Info("rate limiter backed by redis", slog.String("redis_addr", opts.Addr))
	}

	ready := func(ctx context.Context) error {
		return postgres.Ping(ctx, db)
	}

	repo := postgres.NewAppointmentRepo(db)
	svc := appointments.NewService(repo)

	app := rest.NewApp(rest.Config{
		RequestTimeout: cfg.HTTPRequestTimeout,
		AllowOrigins:   cfg.CORSAllowOrigins,
		BodyLimit:      cfg.HTTPBodyLimit,
		RateLimit: rest.RateLimitConfig{
			Limit:    cfg.RateLimit,
			Window:   cfg.RateLimitWindow,
			FailOpen: cfg.RateLimitFailOpen,
		},
	}, rest.Deps{
		Appointments: svc,
		Log:          log,
		Ready:        ready,
		Redis:        rdb,
	})

	mgmt := grpcTransport.NewManagementServer(log, cfg.GRPCRequestTimeout)
	go mgmt.Watch(ctx, cfg.GRPCHealthInterval, ready)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := mgmt.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	go func() {
		errCh <- app.Listen(cfg.HTTPAddr())
	}()

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr()), slog.String("grpc_addr", cfg.GRPCAddr()))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	mgmt.SetServing(false)
	log.Info("shutting down http server", slog.Duration("timeout", cfg.ShutdownTimeout))
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.Warn("http shutdown failed", slog.Any("err", err))
	}
	mgmt.Shutdown(cfg.ShutdownTimeout)

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", serviceName),
	)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
