//go:build testutil
// +build testutil

// Package testdb starts a throwaway Postgres in Docker for repository tests.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Spok95/tutorcenter/internal/db"
)

type DBHandle struct {
	DB     *sql.DB
	cancel func()
	stop   func(context.Context) error
}

func (h *DBHandle) Close() {
	if h.DB != nil {
		_ = h.DB.Close()
	}
	if h.stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.stop(ctx)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Start runs postgres:17-alpine and applies the embedded migrations.
func Start(ctx context.Context) (*DBHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:17-alpine"),
		postgres.WithDatabase("tutorcenter"),
		postgres.WithUsername("tutorcenter"),
		postgres.WithPassword("tutorcenter"),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	fail := func(err error) (*DBHandle, error) {
		_ = pg.Terminate(ctx)
		cancel()
		return nil, err
	}

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fail(err)
	}

	conn, err := sql.Open("postgres", uri)
	if err != nil {
		return fail(err)
	}
	if err := waitReady(ctx, conn); err != nil {
		_ = conn.Close()
		return fail(err)
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return fail(err)
	}

	return &DBHandle{
		DB:     conn,
		cancel: cancel,
		stop:   pg.Terminate,
	}, nil
}

func waitReady(ctx context.Context, conn *sql.DB) error {
	dead := time.Now().Add(20 * time.Second)
	for time.Now().Before(dead) {
		if err := conn.PingContext(ctx); err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("db not ready")
}

// Truncate empties every domain table between tests.
func (h *DBHandle) Truncate(ctx context.Context) error {
	_, err := h.DB.ExecContext(ctx, `
		TRUNCATE password_reset_tokens, payroll_records, fee_payments, fees, late_arrivals,
			attendance, class_sessions, enrollments, students, users, departments
		RESTART IDENTITY CASCADE`)
	return err
}
