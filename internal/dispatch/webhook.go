package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// WebhookSender delivers a rendered message to the configured outbound hook.
type WebhookSender interface {
	Send(ctx context.Context, msg Message) error
}

// WebhookOptions parameterise the outbound webhook sink.
type WebhookOptions struct {
	URL      string
	Username string
	Timeout  time.Duration
}

// WebhookSink POSTs Discord-compatible embeds to a webhook URL. A circuit
// breaker sheds calls while the endpoint is failing, so a dead hook costs one
// timeout per open window instead of one per alert.
type WebhookSink struct {
	opts    WebhookOptions
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewWebhookSink constructs the webhook sink.
func NewWebhookSink(opts WebhookOptions, logger zerolog.Logger) *WebhookSink {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Username == "" {
		opts.Username = "pulsewatcher"
	}

	settings := gobreaker.Settings{
		Name:    "webhook",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &WebhookSink{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger.With().Str("component", "webhook_sink").Logger(),
	}
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Timestamp   string         `json:"timestamp"`
	Fields      []webhookField `json:"fields,omitempty"`
}

type webhookPayload struct {
	Username string         `json:"username"`
	Embeds   []webhookEmbed `json:"embeds"`
}

// Send POSTs one message. Non-2xx responses and transport errors are soft
// failures surfaced to the dispatcher; no retry here.
func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(s.opts.URL) == "" {
		return fmt.Errorf("webhook url not configured")
	}

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.post(ctx, msg)
	})
	return err
}

func (s *WebhookSink) post(ctx context.Context, msg Message) error {
	embed := webhookEmbed{
		Title:       fmt.Sprintf("[%s] %s", msg.Kind, msg.Title),
		Description: msg.Body,
		Timestamp:   msg.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, webhookField{Name: f.Name, Value: f.Value, Inline: true})
	}

	body, err := json.Marshal(webhookPayload{Username: s.opts.Username, Embeds: []webhookEmbed{embed}})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}

	s.logger.Debug().Str("kind", string(msg.Kind)).Str("channel", msg.Channel).Msg("webhook delivered")
	return nil
}

var _ WebhookSender = (*WebhookSink)(nil)
