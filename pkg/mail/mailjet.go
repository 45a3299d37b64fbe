package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lmasson/giftwise-api/pkg/config"
)

const sendURL = "https://api.mailjet.com/v3.1/send"

// Message is an outbound email payload produced by the token flows.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Client sends transactional email through the Mailjet v3.1 API.
// Sending is fire-and-forget from the caller's perspective: token rows are
// created whether or not the email is delivered.
type Client struct {
	apiKey    string
	apiSecret string
	fromEmail string
	fromName  string
	http      *http.Client
}

// NewClient builds a Mailjet client from configuration.
func NewClient(cfg config.MailConfig) *Client {
	return &Client{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

type mailjetParty struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type mailjetMessage struct {
	From     mailjetParty   `json:"From"`
	To       []mailjetParty `json:"To"`
	Subject  string         `json:"Subject"`
	HTMLPart string         `json:"HTMLPart"`
	TextPart string         `json:"TextPart,omitempty"`
}

type mailjetPayload struct {
	Messages []mailjetMessage `json:"Messages"`
}

// Send posts a single message to Mailjet.
func (c *Client) Send(ctx context.Context, msg Message) error {
	toName := msg.ToName
	if toName == "" {
		toName = msg.ToEmail
	}

	payload := mailjetPayload{Messages: []mailjetMessage{{
		From:     mailjetParty{Email: c.fromEmail, Name: c.fromName},
		To:       []mailjetParty{{Email: msg.ToEmail, Name: toName}},
		Subject:  msg.Subject,
		HTMLPart: msg.HTML,
		TextPart: msg.Text,
	}}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode mailjet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mailjet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send mailjet request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("mailjet responded with status %d", res.StatusCode)
	}

	return nil
}
