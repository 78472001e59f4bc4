package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"predictive_alerts/internal/models"
)

// SMSSender posts short messages to an HTTP SMS gateway.
type SMSSender struct {
	url    string
	token  string
	client *http.Client
}

func NewSMSSender(gatewayURL, token string, client *http.Client) *SMSSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &SMSSender{url: gatewayURL, token: token, client: client}
}

func (s *SMSSender) Channel() Channel { return ChannelSMS }

type smsRequest struct {
	To      []string `json:"to"`
	Message string   `json:"message"`
	AlertID string   `json:"alert_id"`
}

func (s *SMSSender) Send(ctx context.Context, a models.Alert, recipients []string) error {
	if len(recipients) == 0 {
		return errNoRecipients
	}
	payload, err := json.Marshal(smsRequest{To: recipients, Message: shortText(a), AlertID: a.ID})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sms gateway returned %s", resp.Status)
	}
	return nil
}
