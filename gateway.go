package liverow

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PoolConfig holds connection pool tuning parameters. Zero values leave the
// driver defaults in place.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// gateway owns the live *sqlx.DB and the reconnect machinery. It is the only
// part of the session that touches the wire; statement builders above it
// never see a connection.
type gateway struct {
	driver string
	dsn    string
	pool   PoolConfig
	log    *slog.Logger
	id     string // stable per-gateway id carried on every log record

	reconnectTimeout time.Duration

	// onReconnect runs after an in-band reconnect succeeds, before the failed
	// call is retried. The session rebuilds its catalog snapshot here so no
	// statement runs against a schema the new connection no longer has.
	onReconnect func(ctx context.Context, db *sqlx.DB) error

	mu sync.Mutex // serializes reconnect attempts
	db atomic.Pointer[sqlx.DB]
}

func newGateway(driverName, dsn string, pool PoolConfig, timeout time.Duration, log *slog.Logger) *gateway {
	return &gateway{
		driver:           driverName,
		dsn:              normalizeDSN(driverName, dsn),
		pool:             pool,
		log:              log,
		id:               uuid.New().String(),
		reconnectTimeout: timeout,
	}
}

// connect opens the pool and verifies it with a ping.
func (g *gateway) connect(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, g.driver, g.dsn)
	if err != nil {
		return errf(KindSchema, "connect", "", "%s connect: %w", g.driver, err)
	}

	if g.pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(g.pool.MaxOpenConns)
	}
	if g.pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(g.pool.MaxIdleConns)
	}
	if g.pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(g.pool.ConnMaxLifetime)
	}
	if g.pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(g.pool.ConnMaxIdleTime)
	}

	if old := g.db.Swap(db); old != nil {
		_ = old.Close()
	}
	g.log.Debug("database connected", "gateway", g.id, "driver", g.driver)
	return nil
}

// database returns the current pool. Callers must not retain it across a
// reconnect; run hands each closure a consistent snapshot.
func (g *gateway) database() *sqlx.DB { return g.db.Load() }

// run executes fn against the pool, retrying exactly once after a reconnect
// when the failure looks like a dropped connection. The retry window is
// bounded by the configured reconnect timeout so a dead database fails fast.
// Reconnects are serialized; concurrent calls keep reading the old pool
// pointer until the swapped one is published.
func (g *gateway) run(ctx context.Context, fn func(ctx context.Context, db *sqlx.DB) error) error {
	err := fn(ctx, g.db.Load())
	if err == nil || !isConnectionError(err) {
		return err
	}

	g.log.Warn("connection lost, reconnecting", "gateway", g.id, "driver", g.driver, "error", err)

	rctx := ctx
	if g.reconnectTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, g.reconnectTimeout)
		defer cancel()
	}

	g.mu.Lock()
	rerr := g.connect(rctx)
	if rerr == nil && g.onReconnect != nil {
		rerr = g.onReconnect(rctx, g.db.Load())
	}
	g.mu.Unlock()
	if rerr != nil {
		return errors.Join(err, rerr)
	}
	return fn(ctx, g.db.Load())
}

// close releases the pool. Safe to call on a never-connected gateway.
func (g *gateway) close() error {
	old := g.db.Swap(nil)
	if old == nil {
		return nil
	}
	return old.Close()
}

// isConnectionError reports whether err indicates a lost or unusable
// connection rather than a statement-level failure.
func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"server has gone away",
		"unexpected eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// normalizeDSN fixes up DSN forms users commonly get wrong before handing
// them to the driver. URL-style DSNs get their credentials re-encoded; MySQL
// DSNs get the tcp() wrapper the driver requires.
func normalizeDSN(driverName, dsn string) string {
	switch driverName {
	case "pgx", "postgres":
		return normalizeURLDSN(dsn)
	case "mysql":
		return normalizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" with no tcp() wrapper.
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// normalizeMySQLDSN rewrites a MySQL DSN into the form go-sql-driver/mysql
// expects:
//
//	user:pass@tcp(host:port)/dbname
//
// Common mistakes handled here:
//
//	user:pass@host:port/db    → missing tcp() wrapper
//	user:pass@(host:port)/db  → missing "tcp" before parens
//
// When the password contains "@", ParseDSN splits on the last "@" before "/"
// only when "tcp(" is present, so the rewrite has to happen before parsing.
func normalizeMySQLDSN(dsn string) string {
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return cfg.FormatDSN()
	}

	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		fixed := dsn[:idx] + "@tcp" + dsn[idx+1:]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		fixed := m[1] + "@tcp(" + m[2] + ")" + m[3]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Nothing worked; let the connect call produce the real error.
	return dsn
}

// normalizeURLDSN re-encodes the userinfo of a URL-style DSN. Raw passwords
// containing @, #, or % make the URL parser mis-split the authority
// component, which surfaces as a confusing host-not-found error.
func normalizeURLDSN(dsn string) string {
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // key=value style, nothing to fix
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:]

	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn // no credentials
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	user := userinfo
	pass := ""
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
	}

	return scheme + "://" + url.PathEscape(user) + ":" + url.PathEscape(pass) + "@" + hostpath + query
}
