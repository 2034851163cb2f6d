// Package eventlog persists follower call events to PostgreSQL. The log
// is optional: an empty database URL disables it entirely, and insert
// failures never propagate into the trunking core.
package eventlog

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo/internal/trunk"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS call_events (
    id          BIGSERIAL PRIMARY KEY,
    event_time  TIMESTAMPTZ NOT NULL,
    event_type  TEXT NOT NULL,
    tg          BIGINT NOT NULL DEFAULT 0,
    src_rid     BIGINT NOT NULL DEFAULT 0,
    freq_hz     BIGINT NOT NULL DEFAULT 0,
    channel     INTEGER NOT NULL DEFAULT 0,
    slot        INTEGER NOT NULL DEFAULT -1,
    alg_id      INTEGER NOT NULL DEFAULT 0,
    key_id      INTEGER NOT NULL DEFAULT 0,
    reason      TEXT NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_call_events_time ON call_events (event_time DESC);
CREATE INDEX IF NOT EXISTS idx_call_events_tg ON call_events (tg, event_time DESC);
`

// Log is a thin pgx pool wrapper for call-event inserts.
type Log struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens the pool, pings it, and applies the idempotent schema.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*Log, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("url", maskDSN(databaseURL)).Msg("event log connected")
	return &Log{pool: pool, log: log}, nil
}

// InsertCallEvent writes one follower event row.
func (l *Log) InsertCallEvent(ctx context.Context, ev trunk.OutEvent) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO call_events
			(event_time, event_type, tg, src_rid, freq_hz, channel, slot, alg_id, key_id, reason, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.Time, ev.Type, int64(ev.TG), int64(ev.SrcRID), ev.FreqHz, int32(ev.Channel),
		int32(ev.Slot), int32(ev.AlgID), int32(ev.KeyID), ev.Reason, ev.Duration.Milliseconds(),
	)
	return err
}

// HealthCheck pings the pool with a short deadline.
func (l *Log) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.pool.Ping(ctx)
}

// Close releases the pool.
func (l *Log) Close() {
	l.log.Info().Msg("closing event log pool")
	l.pool.Close()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
