package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"deskbook/backend/internal/config"
	"deskbook/backend/internal/store/postgres"
)

const usage = "usage: deskbook-migrate [up|down|status|version]"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "deskbook-migrate"))

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if !validCommand(cmd) {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		log.Error("database connection failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer postgres.Close(db)

	m, err := postgres.NewMigrator(db, log)
	if err != nil {
		log.Error("migrator setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(ctx, m, cmd, log); err != nil {
		log.Error("migration command failed", slog.String("command", cmd), slog.Any("err", err))
		os.Exit(1)
	}
}

func validCommand(cmd string) bool {
	switch cmd {
	case "up", "down", "status", "version":
		return true
	default:
		return false
	}
}

func run(ctx context.Context, m *postgres.Migrator, cmd string, log *slog.Logger) error {
	switch cmd {
	case "down":
		if err := m.Down(ctx); err != nil {
			return err
		}
		log.Info("migration down successful")
	case "status":
		return m.Status(ctx)
	case "version":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		log.Info("current schema version", slog.Int64("version", v))
	default:
		if err := m.Up(ctx); err != nil {
			return err
		}
		log.Info("migration up successful")
	}
	return nil
}
