package liverow

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// Retry and reconnect behavior
// ---------------------------------------------------------------------------

func TestGatewayRunRetriesAfterReconnect(t *testing.T) {
	g := newGateway("sqlite", ":memory:", PoolConfig{}, 0, slog.Default())
	if err := g.connect(context.Background()); err != nil {
		t.Fatalf("connect() error: %v", err)
	}
	t.Cleanup(func() { g.close() })
	before := g.database()

	hooks := 0
	g.onReconnect = func(ctx context.Context, db *sqlx.DB) error {
		hooks++
		if db != g.database() {
			t.Error("hook received a pool other than the published one")
		}
		return nil
	}

	calls := 0
	err := g.run(context.Background(), func(ctx context.Context, db *sqlx.DB) error {
		calls++
		if calls == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if hooks != 1 {
		t.Errorf("reconnect hooks = %d, want 1", hooks)
	}
	if g.database() == before {
		t.Error("pool not replaced by reconnect")
	}
}

func TestGatewayRunNoRetryOnStatementError(t *testing.T) {
	g := newGateway("sqlite", ":memory:", PoolConfig{}, 0, slog.Default())
	if err := g.connect(context.Background()); err != nil {
		t.Fatalf("connect() error: %v", err)
	}
	t.Cleanup(func() { g.close() })

	g.onReconnect = func(context.Context, *sqlx.DB) error {
		t.Error("reconnect hook fired for a statement-level error")
		return nil
	}

	calls := 0
	want := errors.New("no such table: nope")
	err := g.run(context.Background(), func(ctx context.Context, db *sqlx.DB) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("run() error = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestGatewayRunSurfacesHookFailure(t *testing.T) {
	g := newGateway("sqlite", ":memory:", PoolConfig{}, 0, slog.Default())
	if err := g.connect(context.Background()); err != nil {
		t.Fatalf("connect() error: %v", err)
	}
	t.Cleanup(func() { g.close() })

	hookErr := errors.New("rebuild failed")
	g.onReconnect = func(context.Context, *sqlx.DB) error { return hookErr }

	calls := 0
	err := g.run(context.Background(), func(ctx context.Context, db *sqlx.DB) error {
		calls++
		return driver.ErrBadConn
	})
	if !errors.Is(err, hookErr) || !errors.Is(err, driver.ErrBadConn) {
		t.Fatalf("run() error = %v, want both original and hook errors", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after a failed rebuild)", calls)
	}
}
