// Package consumer drains the Kafka event and session topics into the
// ClickHouse analytics store.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tracklight/tracklight/internal/analytics"
	"github.com/tracklight/tracklight/internal/config"
)

const (
	maxBatch     = 100
	pollTimeout  = 500 * time.Millisecond
	cycleSleep   = 200 * time.Millisecond
	DialAttempts = 60
	DialBackoff  = 2 * time.Second
)

// Sink receives decoded rows. Satisfied by analytics.Writer.
type Sink interface {
	InsertEvents(ctx context.Context, rows []analytics.EventRow) error
	InsertSessions(ctx context.Context, rows []analytics.SessionRow) error
}

// Fetcher is the subset of kafka.Reader the consumer needs.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fetches from both topics in fixed-size cycles and bulk-inserts
// into the sink. Offsets are committed only after a successful insert, so
// delivery into ClickHouse is at least once.
type Consumer struct {
	readers []Fetcher
	sink    Sink
	log     *slog.Logger
}

// New builds a Consumer over the given readers.
func New(readers []Fetcher, sink Sink, log *slog.Logger) *Consumer {
	return &Consumer{readers: readers, sink: sink, log: log}
}

// NewReaders creates consumer-group readers for the events and sessions topics.
func NewReaders(cfg config.KafkaConfig) []Fetcher {
	newReader := func(topic string) Fetcher {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			Topic:   topic,
		})
	}
	return []Fetcher{newReader(cfg.EventsTopic), newReader(cfg.SessionsTopic)}
}

// Run cycles until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("consumer cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cycleSleep):
		}
	}
}

// Close closes all readers.
func (c *Consumer) Close() error {
	var firstErr error
	for _, r := range c.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Consumer) cycle(ctx context.Context) error {
	var events []analytics.EventRow
	var sessions []analytics.SessionRow
	var fetched []fetchedMessage

	for _, r := range c.readers {
		msgs := c.drain(ctx, r)
		for _, msg := range msgs {
			if strings.HasSuffix(msg.Topic, "sessions") {
				row, ok := c.decodeSession(msg.Value)
				if ok {
					sessions = append(sessions, row)
				}
			} else {
				row, ok := c.decodeEvent(msg.Value)
				if ok {
					events = append(events, row)
				}
			}
			fetched = append(fetched, fetchedMessage{reader: r, msg: msg})
		}
	}

	if err := c.sink.InsertEvents(ctx, events); err != nil {
		return err
	}
	if err := c.sink.InsertSessions(ctx, sessions); err != nil {
		return err
	}

	// Commit only after both inserts landed.
	for _, fm := range fetched {
		if err := fm.reader.CommitMessages(ctx, fm.msg); err != nil {
			return err
		}
	}

	if len(events) > 0 || len(sessions) > 0 {
		c.log.Info("flushed analytics batch", "events", len(events), "sessions", len(sessions))
	}
	return nil
}

type fetchedMessage struct {
	reader Fetcher
	msg    kafka.Message
}

// drain fetches up to maxBatch messages from one reader, stopping early when
// the poll window expires.
func (c *Consumer) drain(ctx context.Context, r Fetcher) []kafka.Message {
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	var msgs []kafka.Message
	for len(msgs) < maxBatch {
		msg, err := r.FetchMessage(pollCtx)
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				c.log.Warn("fetch message", "error", err)
			}
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// eventEnvelope mirrors broker.EventRecord but leaves the timestamp raw:
// producers have written both RFC3339 strings and bare epoch numbers, and
// a type mismatch must not drop the whole record.
type eventEnvelope struct {
	ID          int64           `json:"id"`
	Project     string          `json:"project"`
	Message     string          `json:"message"`
	Level       string          `json:"level"`
	Fingerprint string          `json:"fingerprint"`
	Title       string          `json:"title"`
	ReceivedAt  json.RawMessage `json:"received_at"`
}

type sessionEnvelope struct {
	Project     string          `json:"project"`
	Release     string          `json:"release"`
	Environment string          `json:"environment"`
	Status      string          `json:"status"`
	SessionID   string          `json:"session_id"`
	User        string          `json:"user"`
	DurationMS  int             `json:"duration_ms"`
	StartedAt   json.RawMessage `json:"started_at"`
}

func (c *Consumer) decodeEvent(value []byte) (analytics.EventRow, bool) {
	var rec eventEnvelope
	if err := json.Unmarshal(value, &rec); err != nil {
		c.log.Warn("skipping malformed event record", "error", err)
		return analytics.EventRow{}, false
	}
	return analytics.EventRow{
		ID:          uint64(rec.ID),
		Project:     rec.Project,
		Level:       rec.Level,
		Fingerprint: rec.Fingerprint,
		Title:       rec.Title,
		Message:     rec.Message,
		ReceivedAt:  parseTimestamp(rec.ReceivedAt),
	}, true
}

func (c *Consumer) decodeSession(value []byte) (analytics.SessionRow, bool) {
	var rec sessionEnvelope
	if err := json.Unmarshal(value, &rec); err != nil {
		c.log.Warn("skipping malformed session record", "error", err)
		return analytics.SessionRow{}, false
	}
	return analytics.SessionRow{
		Project:     rec.Project,
		Release:     rec.Release,
		Environment: rec.Environment,
		Status:      rec.Status,
		SessionID:   rec.SessionID,
		User:        rec.User,
		DurationMS:  uint32(rec.DurationMS),
		StartedAt:   parseTimestamp(rec.StartedAt),
	}, true
}

// parseTimestamp accepts RFC3339 strings or numeric epoch seconds, quoted
// or bare; anything else resolves to the current time rather than dropping
// the row.
func parseTimestamp(raw json.RawMessage) time.Time {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(secs)
		nsec := int64((secs - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	return time.Now().UTC()
}
