// Package broker publishes accepted events and sessions to Kafka for the
// analytics consumer. Publishing is best effort: a broker outage never
// fails an ingest request.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tracklight/tracklight/internal/config"
)

const publishTimeout = 2 * time.Second

// EventRecord is the wire shape of an event on the events topic.
type EventRecord struct {
	ID          int64  `json:"id"`
	EventID     string `json:"event_id"`
	Project     string `json:"project"`
	Message     string `json:"message"`
	Level       string `json:"level"`
	Environment string `json:"environment"`
	Fingerprint string `json:"fingerprint"`
	Title       string `json:"title"`
	ReceivedAt  string `json:"received_at"`
}

// SessionRecord is the wire shape of a session update on the sessions topic.
type SessionRecord struct {
	Project     string `json:"project"`
	Release     string `json:"release"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
	SessionID   string `json:"session_id"`
	User        string `json:"user"`
	DurationMS  int    `json:"duration_ms"`
	StartedAt   string `json:"started_at"`
}

// Producer writes records to the events and sessions topics.
type Producer struct {
	events   *kafka.Writer
	sessions *kafka.Writer
	log      *slog.Logger
}

// NewProducer builds a Producer from Kafka config. Topics are auto-created
// on first write so a fresh broker needs no provisioning step.
func NewProducer(cfg config.KafkaConfig, log *slog.Logger) *Producer {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		}
	}
	return &Producer{
		events:   newWriter(cfg.EventsTopic),
		sessions: newWriter(cfg.SessionsTopic),
		log:      log,
	}
}

// PublishEvent sends an event record keyed by project slug. Errors are
// logged and swallowed.
func (p *Producer) PublishEvent(ctx context.Context, rec EventRecord) {
	p.publish(ctx, p.events, rec.Project, rec)
}

// PublishSession sends a session record keyed by project slug. Errors are
// logged and swallowed.
func (p *Producer) PublishSession(ctx context.Context, rec SessionRecord) {
	p.publish(ctx, p.sessions, rec.Project, rec)
}

func (p *Producer) publish(ctx context.Context, w *kafka.Writer, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error("encode kafka record", "topic", w.Topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		p.log.Error("publish kafka record", "topic", w.Topic, "error", err)
	}
}

// Close flushes and closes both writers.
func (p *Producer) Close() error {
	errEvents := p.events.Close()
	errSessions := p.sessions.Close()
	if errEvents != nil {
		return errEvents
	}
	return errSessions
}
