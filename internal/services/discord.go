package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/repository"
)

// Embed colors, decimal Discord color values.
const (
	colorGreen  = 0x00ff00
	colorBlue   = 0x0099ff
	colorOrange = 0xffa500
	colorRed    = 0xff0000
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultMaxRetries     = 3
	transportBackoff      = time.Second
	defaultRetryAfter     = time.Second

	// maxResponseBody limits how much of a webhook response is read.
	maxResponseBody = 4096
)

// WebhookPayload is the Discord webhook message shape.
type WebhookPayload struct {
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatar_url"`
	Embeds    []Embed `json:"embeds"`
}

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// RateLimitError is returned when the webhook endpoint kept answering 429
// until the retry budget ran out.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discord webhook rate limited after %d attempts", e.Attempts)
}

// DiscordClient delivers formatted payloads to a Discord-compatible webhook
// endpoint. Rate-limit backoff follows the server's Retry-After hint;
// transport errors retry on a fixed short delay. No exponential backoff:
// the webhook is a best-effort side channel, not the record of truth.
type DiscordClient struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
	maxRetries int

	// wait is swapped out by tests to observe backoff without sleeping.
	wait func(ctx context.Context, d time.Duration) error
}

func NewDiscordClient(webhookURL string, timeout time.Duration, maxRetries int, logger *slog.Logger) *DiscordClient {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return &DiscordClient{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		maxRetries: maxRetries,
		wait:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SendUserRegistration posts the new-user embed.
func (c *DiscordClient) SendUserRegistration(ctx context.Context, reg *models.RegistrationPayload) error {
	embed := Embed{
		Title:       "New User Registration!",
		Description: fmt.Sprintf("Welcome to our platform, **%s**!", reg.Name),
		Color:       colorGreen,
		Fields: []EmbedField{
			{Name: "Name", Value: orNA(reg.Name), Inline: true},
			{Name: "Email", Value: orNA(reg.Email), Inline: true},
			{Name: "User ID", Value: strconv.FormatInt(reg.UserID, 10), Inline: true},
		},
		Footer:    &EmbedFooter{Text: "Notification Service"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload := WebhookPayload{
		Username:  "Registration Bot",
		AvatarURL: "https://cdn.discordapp.com/embed/avatars/0.png",
		Embeds:    []Embed{embed},
	}
	_, err := c.send(ctx, payload)
	return err
}

// SendWalletDeposit posts the wallet-deposit embed.
func (c *DiscordClient) SendWalletDeposit(ctx context.Context, dep *models.DepositPayload) error {
	embed := Embed{
		Title:       "Wallet Deposit",
		Description: fmt.Sprintf("**%s** topped up their wallet.", dep.Name),
		Color:       colorBlue,
		Fields: []EmbedField{
			{Name: "Name", Value: orNA(dep.Name), Inline: true},
			{Name: "Email", Value: orNA(dep.Email), Inline: true},
			{Name: "Amount", Value: fmt.Sprintf("%.2f", dep.Amount), Inline: true},
			{Name: "Wallet Balance", Value: fmt.Sprintf("%.2f", dep.WalletBalance), Inline: true},
		},
		Footer:    &EmbedFooter{Text: "Notification Service"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload := WebhookPayload{
		Username:  "Notification Bot",
		AvatarURL: "https://cdn.discordapp.com/embed/avatars/0.png",
		Embeds:    []Embed{embed},
	}
	_, err := c.send(ctx, payload)
	return err
}

// SendAdminSummary posts the periodic aggregate summary embed.
func (c *DiscordClient) SendAdminSummary(ctx context.Context, stats *repository.Stats) error {
	registrations := stats.ByType[models.TypeUserRegistration]
	embed := Embed{
		Title:       "Registration Summary",
		Description: fmt.Sprintf("**%d** users have registered!", registrations),
		Color:       colorOrange,
		Fields: []EmbedField{
			{Name: "Total Registrations", Value: strconv.FormatInt(registrations, 10), Inline: true},
			{Name: "Total Notifications", Value: strconv.FormatInt(stats.Total, 10), Inline: true},
			{Name: "Sent", Value: strconv.FormatInt(stats.Sent, 10), Inline: true},
			{Name: "Failed", Value: strconv.FormatInt(stats.Failed, 10), Inline: true},
			{Name: "Unread", Value: strconv.FormatInt(stats.Unread, 10), Inline: true},
		},
		Footer:    &EmbedFooter{Text: "Admin Summary | Notification Service"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload := WebhookPayload{
		Username:  "Admin Bot",
		AvatarURL: "https://cdn.discordapp.com/embed/avatars/1.png",
		Embeds:    []Embed{embed},
	}
	_, err := c.send(ctx, payload)
	return err
}

// SendError posts the system-error embed. Context is truncated to keep the
// payload inside Discord's field limits.
func (c *DiscordClient) SendError(ctx context.Context, cause error, eventContext map[string]interface{}) error {
	contextJSON := "no context"
	if len(eventContext) > 0 {
		if raw, err := json.Marshal(eventContext); err == nil {
			contextJSON = truncate(string(raw), 1000)
		}
	}
	embed := Embed{
		Title:       "System Error",
		Description: "An error occurred in the notification service",
		Color:       colorRed,
		Fields: []EmbedField{
			{Name: "Error Message", Value: truncate(cause.Error(), 1000)},
			{Name: "Context", Value: contextJSON},
		},
		Footer:    &EmbedFooter{Text: "Error Alert | Notification Service"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload := WebhookPayload{
		Username:  "Error Bot",
		AvatarURL: "https://cdn.discordapp.com/embed/avatars/2.png",
		Embeds:    []Embed{embed},
	}
	_, err := c.send(ctx, payload)
	return err
}

// SendCustom posts a caller-shaped embed.
func (c *DiscordClient) SendCustom(ctx context.Context, title, message string, color int, fields []EmbedField) error {
	if color == 0 {
		color = colorBlue
	}
	embed := Embed{
		Title:       title,
		Description: message,
		Color:       color,
		Fields:      fields,
		Footer:      &EmbedFooter{Text: "Custom Notification | Notification Service"},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	payload := WebhookPayload{
		Username:  "Notification Bot",
		AvatarURL: "https://cdn.discordapp.com/embed/avatars/0.png",
		Embeds:    []Embed{embed},
	}
	_, err := c.send(ctx, payload)
	return err
}

// send posts the payload with the retry policy: 2xx succeeds, 429 waits for
// the Retry-After hint, transport errors wait a fixed second, anything else
// fails immediately.
func (c *DiscordClient) send(ctx context.Context, payload WebhookPayload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &DeliveryError{Channel: models.ChannelWebhook, Err: err}
	}

	retries := c.maxRetries
	for {
		result, err := c.post(ctx, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, &DeliveryError{Channel: models.ChannelWebhook, Err: ctx.Err()}
			}
			if retries > 0 {
				retries--
				c.logger.Warn("discord webhook transport error, retrying",
					slog.Any("error", err),
					slog.Int("retries_left", retries))
				if werr := c.wait(ctx, transportBackoff); werr != nil {
					return nil, &DeliveryError{Channel: models.ChannelWebhook, Err: werr}
				}
				continue
			}
			return nil, &DeliveryError{Channel: models.ChannelWebhook, Err: err}

		case result.status >= 200 && result.status < 300:
			return result.body, nil

		case result.status == http.StatusTooManyRequests:
			if retries > 0 {
				retries--
				c.logger.Warn("discord webhook rate limited, retrying",
					slog.Duration("retry_after", result.retryAfter),
					slog.Int("retries_left", retries))
				if werr := c.wait(ctx, result.retryAfter); werr != nil {
					return nil, &DeliveryError{Channel: models.ChannelWebhook, Err: werr}
				}
				continue
			}
			return nil, &RateLimitError{Attempts: c.maxRetries + 1}

		default:
			return nil, &DeliveryError{
				Channel: models.ChannelWebhook,
				Err:     fmt.Errorf("discord webhook returned status %d: %s", result.status, truncate(string(result.body), 200)),
			}
		}
	}
}

type postResult struct {
	status     int
	body       []byte
	retryAfter time.Duration
}

func (c *DiscordClient) post(ctx context.Context, body []byte) (postResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return postResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "NotificationService/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return postResult{}, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return postResult{
		status:     resp.StatusCode,
		body:       respBody,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}, nil
}

// parseRetryAfter reads a Retry-After value in seconds, defaulting to one
// second when absent or invalid.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
