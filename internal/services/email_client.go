package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
)

// Email template slugs rendered by the mail service.
const (
	TemplateWelcome       = "welcome"
	TemplateWalletDeposit = "wallet-deposit"
)

type sendEmailRequest struct {
	Template  string                 `json:"template"`
	Recipient string                 `json:"recipient"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

type sendEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// EmailClient invokes the external mail service over HTTP. Templating and
// SMTP transport are the mail service's concern; this client only hands it
// a template slug, a recipient and the event data.
type EmailClient struct {
	baseURL string
	client  *http.Client
}

func NewEmailClient(baseURL string, timeout time.Duration) *EmailClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EmailClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *EmailClient) Send(ctx context.Context, template, recipient string, data map[string]interface{}) error {
	body, err := json.Marshal(sendEmailRequest{
		Template:  template,
		Recipient: recipient,
		Data:      data,
	})
	if err != nil {
		return &DeliveryError{Channel: models.ChannelEmail, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/emails/send", bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Channel: models.ChannelEmail, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: models.ChannelEmail, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{
			Channel: models.ChannelEmail,
			Err:     fmt.Errorf("email service returned status %d", resp.StatusCode),
		}
	}

	var envelope sendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &DeliveryError{Channel: models.ChannelEmail, Err: err}
	}
	if !envelope.Success {
		reason := envelope.Message
		if envelope.Error != "" {
			reason = envelope.Error
		}
		return &DeliveryError{
			Channel: models.ChannelEmail,
			Err:     fmt.Errorf("email service error: %s", reason),
		}
	}
	return nil
}
