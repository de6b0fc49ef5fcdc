package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const connectTimeout = 5 * time.Second

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Log receives slow query warnings and, at debug level, every query.
	// Nil disables query logging.
	Log       *slog.Logger
	SlowQuery time.Duration
}

// Open connects to the scheduling database through the pgx stdlib driver and
// verifies the connection before returning.
func Open(ctx context.Context, databaseURL string, pool PoolConfig) (*bun.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is empty")
	}
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if pool.Log != nil {
		db.AddQueryHook(queryLogHook{log: pool.Log.With("component", "store.postgres"), slow: pool.SlowQuery})
	}
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Ping reports whether the database is reachable. It backs the readiness
// checks of the HTTP and gRPC health endpoints.
func Ping(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return errors.New("database not configured")
	}
	return db.PingContext(ctx)
}

type queryLogHook struct {
	log  *slog.Logger
	slow time.Duration
}

var _ bun.QueryHook = queryLogHook{}

func (h queryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h queryLogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	attrs := []any{
		slog.String("operation", event.Operation()),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		attrs = append(attrs, slog.Any("err", event.Err))
	}
	if h.slow > 0 && elapsed >= h.slow {
		h.log.WarnContext(ctx, "slow query", append(attrs, slog.String("query", event.Query))...)
		return
	}
	h.log.DebugContext(ctx, "query", attrs...)
}
