package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// Sink dispatches one triggered alert to its configured channel. Sink
// failures never suppress the trigger record.
type Sink interface {
	Dispatch(ctx context.Context, rule *models.AlertRule, t *models.TriggeredAlert) error
}

// LogSink writes a structured warn-level record via zap.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Dispatch(_ context.Context, rule *models.AlertRule, t *models.TriggeredAlert) error {
	s.logger.Warn("alert triggered",
		zap.String("ruleId", rule.ID),
		zap.String("accountId", t.AccountID),
		zap.String("metric", t.Metric),
		zap.String("op", string(t.Op)),
		zap.Float64("threshold", t.Threshold),
		zap.Float64("actualValue", t.ActualValue))
	return nil
}

// EmailSink sends a plaintext notification via net/smtp. This is the one
// deliberate stdlib exception in this package — no pack dependency offers
// an SMTP client, and the protocol surface net/smtp covers is small enough
// that pulling in a third-party mailer for it isn't warranted.
type EmailSink struct {
	Addr string // smtp host:port
	From string
	Auth smtp.Auth
}

func NewEmailSink(addr, from string, auth smtp.Auth) *EmailSink {
	return &EmailSink{Addr: addr, From: from, Auth: auth}
}

func (s *EmailSink) Dispatch(_ context.Context, rule *models.AlertRule, t *models.TriggeredAlert) error {
	to, _ := rule.ChannelConfig["to"].(string)
	if to == "" {
		return fmt.Errorf("email sink: rule %s has no channelConfig.to", rule.ID)
	}
	subject := fmt.Sprintf("Subject: alert triggered for account %s\r\n", t.AccountID)
	body := fmt.Sprintf("metric %s %s %.2f, actual %.2f at %s\r\n",
		t.Metric, t.Op, t.Threshold, t.ActualValue, t.FiredAt.Format(time.RFC3339))
	msg := []byte(subject + "\r\n" + body)
	return smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, msg)
}

// WebhookSink POSTs the trigger as JSON to a configured URL.
type WebhookSink struct {
	client *http.Client
}

func NewWebhookSink(client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{client: client}
}

func (s *WebhookSink) Dispatch(ctx context.Context, rule *models.AlertRule, t *models.TriggeredAlert) error {
	url, _ := rule.ChannelConfig["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook sink: rule %s has no channelConfig.url", rule.ID)
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook sink: rule %s: remote returned %d", rule.ID, resp.StatusCode)
	}
	return nil
}
