package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/tracklight/tracklight/internal/config"
	"github.com/tracklight/tracklight/pkg/models"
)

const webhookTimeout = 3 * time.Second

// Notification is one formatted message bound for a single destination.
type Notification struct {
	Subject string
	Body    string
	Payload Payload
}

// Sink delivers notifications. The production implementation is Dispatcher;
// tests substitute a recorder.
type Sink interface {
	Deliver(ctx context.Context, kind models.TargetKind, destination string, n Notification) error
}

// sendFunc delivers one notification for a single target kind.
type sendFunc func(ctx context.Context, destination string, n Notification) error

// Dispatcher routes notifications to email or webhook sinks. The kind table
// is built at construction, so an unhandled TargetKind is impossible to
// reach without extending the table.
type Dispatcher struct {
	smtp    config.AlertsConfig
	client  *http.Client
	log     *slog.Logger
	senders map[models.TargetKind]sendFunc
}

// NewDispatcher creates a Dispatcher with both sinks wired.
func NewDispatcher(smtp config.AlertsConfig, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		smtp:   smtp,
		client: &http.Client{Timeout: webhookTimeout},
		log:    log,
	}
	d.senders = map[models.TargetKind]sendFunc{
		models.TargetEmail:   d.sendEmail,
		models.TargetWebhook: d.sendWebhook,
	}
	return d
}

// Deliver routes the notification through the kind table.
func (d *Dispatcher) Deliver(ctx context.Context, kind models.TargetKind, destination string, n Notification) error {
	send, ok := d.senders[kind]
	if !ok {
		return fmt.Errorf("unknown alert target kind %q", kind)
	}
	return send(ctx, destination, n)
}

func (d *Dispatcher) sendEmail(ctx context.Context, destination string, n Notification) error {
	if d.smtp.SMTPHost == "" {
		return fmt.Errorf("smtp not configured")
	}

	u := url.URL{
		Scheme: "smtp",
		Host:   fmt.Sprintf("%s:%d", d.smtp.SMTPHost, d.smtp.SMTPPort),
		Path:   "/",
	}
	if d.smtp.SMTPUser != "" {
		u.User = url.UserPassword(d.smtp.SMTPUser, d.smtp.SMTPPass)
	}
	q := u.Query()
	q.Set("from", d.smtp.From)
	q.Set("to", destination)
	u.RawQuery = q.Encode()

	sender, err := shoutrrr.CreateSender(u.String())
	if err != nil {
		return fmt.Errorf("create smtp sender: %w", err)
	}
	for _, err := range sender.Send(n.Body, &types.Params{"title": n.Subject}) {
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) sendWebhook(ctx context.Context, destination string, n Notification) error {
	body, err := json.Marshal(map[string]any{
		"subject":     n.Subject,
		"body":        n.Body,
		"project":     n.Payload.Project,
		"group":       n.Payload.GroupID,
		"title":       n.Payload.Title,
		"level":       n.Payload.Level,
		"message":     n.Payload.Message,
		"count":       n.Payload.Count,
		"received_at": n.Payload.ReceivedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
