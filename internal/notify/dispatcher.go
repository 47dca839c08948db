// Package notify delivers work events to the configured email and webhook
// targets.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wneessen/go-mail"

	"serialarr/pkg/models"
)

// Event kinds a notification target can subscribe to
const (
	EventNewEpisodes = "on_new_episodes"
	EventDownload    = "on_download"
	EventFailure     = "on_failure"
)

const sendAttempts = 3

// Payload describes one event to deliver
type Payload struct {
	Event        string
	WorkTitle    string
	EpisodeTitle string
	EpisodeCount int
	Detail       string
	FilePath     string
}

// TargetStore lists the delivery channels to fan out to
type TargetStore interface {
	ListEnabledNotificationTargets() ([]*models.NotificationTarget, error)
}

// EmailSettings holds SMTP credentials for the email channel. An empty Host
// disables the channel.
type EmailSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Dispatcher fans events out to all subscribed targets
type Dispatcher struct {
	store      TargetStore
	email      EmailSettings
	httpClient *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewDispatcher creates a dispatcher backed by the given target store
func NewDispatcher(store TargetStore, email EmailSettings) *Dispatcher {
	return &Dispatcher{
		store:      store,
		email:      email,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		retryDelay: 5 * time.Second,
	}
}

// Dispatch sends the payload to every enabled target subscribed to its event.
// Works that opted out of notifications are skipped, except for failures,
// which are always delivered. Delivery errors are logged per target and do
// not abort the fan-out.
func (d *Dispatcher) Dispatch(ctx context.Context, work *models.Work, payload Payload) error {
	if payload.Event != EventFailure && work != nil && !work.NotifyNewEpisodes {
		d.logger.Debug("notifications disabled for work, skipping",
			"work_id", work.ID, "event", payload.Event)
		return nil
	}

	targets, err := d.store.ListEnabledNotificationTargets()
	if err != nil {
		return fmt.Errorf("failed to list notification targets: %w", err)
	}

	for _, target := range targets {
		if !target.SubscribedTo(payload.Event) {
			continue
		}

		var sendErr error
		switch target.Kind {
		case "email":
			sendErr = d.sendEmail(ctx, target, payload)
		case "webhook":
			sendErr = d.sendWebhook(ctx, target, payload)
		default:
			d.logger.Warn("unknown notification target kind", "kind", target.Kind, "target_id", target.ID)
			continue
		}

		if sendErr != nil {
			d.logger.Error("failed to deliver notification",
				"kind", target.Kind, "target_id", target.ID, "event", payload.Event, "error", sendErr)
		}
	}

	return nil
}

// withRetry runs send up to sendAttempts times with a linearly growing delay
func (d *Dispatcher) withRetry(ctx context.Context, send func() error) error {
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = send(); err == nil {
			return nil
		}
		if attempt == sendAttempts {
			break
		}

		d.logger.Warn("notification attempt failed, retrying",
			"attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay * time.Duration(attempt)):
		}
	}
	return err
}

func (d *Dispatcher) sendEmail(ctx context.Context, target *models.NotificationTarget, payload Payload) error {
	if d.email.Host == "" {
		d.logger.Warn("email channel not configured, skipping", "target_id", target.ID)
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(d.email.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(target.Target); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(payload.subject())
	msg.SetBodyString(mail.TypeTextPlain, payload.body())
	if target.AttachFile && payload.FilePath != "" {
		msg.AttachFile(payload.FilePath)
	}

	opts := []mail.Option{
		mail.WithPort(d.email.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if d.email.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(d.email.User),
			mail.WithPassword(d.email.Password),
		)
	}

	client, err := mail.NewClient(d.email.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	return d.withRetry(ctx, func() error {
		return client.DialAndSendWithContext(ctx, msg)
	})
}

func (d *Dispatcher) sendWebhook(ctx context.Context, target *models.NotificationTarget, payload Payload) error {
	body, err := json.Marshal(map[string]any{
		"content": payload.subject(),
		"text":    payload.body(),
		"data": map[string]any{
			"event":         payload.Event,
			"work_title":    payload.WorkTitle,
			"episode_title": payload.EpisodeTitle,
			"episode_count": payload.EpisodeCount,
			"detail":        payload.Detail,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	// Webhooks are fire-and-forget: one POST, no retry. The receiving end
	// is expected to handle its own redelivery if it needs one.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (p Payload) subject() string {
	switch p.Event {
	case EventNewEpisodes:
		return fmt.Sprintf("serialarr: %d new episode(s) for %s", p.EpisodeCount, p.WorkTitle)
	case EventDownload:
		return fmt.Sprintf("serialarr: %s is complete", p.WorkTitle)
	case EventFailure:
		return fmt.Sprintf("serialarr: failure for %s", p.WorkTitle)
	default:
		return fmt.Sprintf("serialarr: %s", p.WorkTitle)
	}
}

func (p Payload) body() string {
	switch p.Event {
	case EventNewEpisodes:
		return fmt.Sprintf("Found %d new episode(s) for %s. They have been queued for download.",
			p.EpisodeCount, p.WorkTitle)
	case EventDownload:
		if p.FilePath != "" {
			return fmt.Sprintf("All episodes of %s have been downloaded.\nCompiled file: %s", p.WorkTitle, p.FilePath)
		}
		return fmt.Sprintf("All episodes of %s have been downloaded.", p.WorkTitle)
	case EventFailure:
		if p.EpisodeTitle != "" {
			return fmt.Sprintf("Episode %q of %s failed: %s", p.EpisodeTitle, p.WorkTitle, p.Detail)
		}
		return fmt.Sprintf("%s failed: %s", p.WorkTitle, p.Detail)
	default:
		return p.Detail
	}
}
