// Package analytics writes event and session streams into ClickHouse for
// aggregation queries that Postgres is not suited for.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/tracklight/tracklight/internal/config"
)

// EventRow is one row of the analytics events table.
type EventRow struct {
	ID          uint64
	Project     string
	Level       string
	Fingerprint string
	Title       string
	Message     string
	ReceivedAt  time.Time
}

// SessionRow is one row of the analytics sessions table.
type SessionRow struct {
	Project     string
	Release     string
	Environment string
	Status      string
	SessionID   string
	User        string
	DurationMS  uint32
	StartedAt   time.Time
}

// Writer owns a ClickHouse connection and the analytics schema.
type Writer struct {
	conn     driver.Conn
	database string
}

// Connect opens a native-protocol connection and verifies it with a ping.
func Connect(ctx context.Context, cfg config.ClickHouseConfig) (*Writer, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &Writer{conn: conn, database: cfg.Database}, nil
}

// EnsureSchema creates the analytics database and tables if missing. Safe to
// call on every startup.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, w.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.events (
			id          UInt64,
			project     String,
			level       String,
			fingerprint String,
			title       String,
			message     String,
			received_at DateTime
		) ENGINE = MergeTree() ORDER BY (project, received_at)`, w.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sessions (
			project     String,
			release     String,
			environment String,
			status      String,
			session_id  String,
			user        String,
			duration_ms UInt32,
			started_at  DateTime
		) ENGINE = MergeTree() ORDER BY (project, started_at)`, w.database),
	}
	for _, stmt := range stmts {
		if err := w.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure analytics schema: %w", err)
		}
	}
	return nil
}

// InsertEvents bulk-inserts event rows. A nil or empty batch is a no-op.
func (w *Writer) InsertEvents(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s.events`, w.database))
	if err != nil {
		return fmt.Errorf("prepare events batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.ID, r.Project, r.Level, r.Fingerprint, r.Title, r.Message, r.ReceivedAt); err != nil {
			return fmt.Errorf("append event row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send events batch: %w", err)
	}
	return nil
}

// InsertSessions bulk-inserts session rows. A nil or empty batch is a no-op.
func (w *Writer) InsertSessions(ctx context.Context, rows []SessionRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s.sessions`, w.database))
	if err != nil {
		return fmt.Errorf("prepare sessions batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.Project, r.Release, r.Environment, r.Status, r.SessionID, r.User, r.DurationMS, r.StartedAt); err != nil {
			return fmt.Errorf("append session row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send sessions batch: %w", err)
	}
	return nil
}

// Close terminates the connection.
func (w *Writer) Close() error {
	return w.conn.Close()
}
